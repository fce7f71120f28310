package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ParticipationStatus string

const (
	ParticipationStatusPending   ParticipationStatus = "pending"
	ParticipationStatusPaid      ParticipationStatus = "paid"
	ParticipationStatusCancelled ParticipationStatus = "cancelled"
)

// Participation is a user's claim on one seat of a ride.
type Participation struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	RideID            primitive.ObjectID  `json:"ride_id" bson:"ride_id"`
	UserID            string              `json:"user_id" bson:"user_id"`
	AmountDue         int64               `json:"amount_due" bson:"amount_due"`
	AmountPaid        int64               `json:"amount_paid" bson:"amount_paid"`
	Paid              bool                `json:"paid" bson:"paid"`
	Status            ParticipationStatus `json:"status" bson:"status"`
	PaymentReference  string              `json:"payment_reference,omitempty" bson:"payment_reference,omitempty"`
	CheckoutSessionID string              `json:"checkout_session_id,omitempty" bson:"checkout_session_id,omitempty"`
	// ActiveKey is set while the participation is not cancelled and backs the
	// one-active-participation-per-(ride, user) unique index.
	ActiveKey   *string    `json:"-" bson:"active_key,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

func (p *Participation) IsCancelled() bool {
	return p.Status == ParticipationStatusCancelled
}

func ActiveParticipationKey(rideID primitive.ObjectID, userID string) string {
	return rideID.Hex() + ":" + userID
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideStatus string
type ReconciliationReason string
type RideSort string

const (
	RideStatusActive    RideStatus = "active"
	RideStatusCancelled RideStatus = "cancelled"
	RideStatusCompleted RideStatus = "completed"

	ReconciliationOversell            ReconciliationReason = "oversell"
	ReconciliationDuplicatePayment    ReconciliationReason = "duplicate_payment"
	ReconciliationPaymentAfterRelease ReconciliationReason = "payment_after_release"
	ReconciliationInactiveRide        ReconciliationReason = "payment_on_inactive_ride"

	RideSortPriceLow  RideSort = "price_low"
	RideSortPriceHigh RideSort = "price_high"
	RideSortSeats     RideSort = "seats"
	RideSortDeparture RideSort = "departure"
)

type Ride struct {
	ID                    primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	OwnerID               string                 `json:"owner_id" bson:"owner_id"`
	Title                 string                 `json:"title" bson:"title"`
	Origin                string                 `json:"origin" bson:"origin"`
	Destination           string                 `json:"destination" bson:"destination"`
	DepartureTime         time.Time              `json:"departure_time" bson:"departure_time"`
	TotalSeats            int                    `json:"total_seats" bson:"total_seats"`
	SeatsLeft             int                    `json:"seats_left" bson:"seats_left"`
	PricePerSeat          int64                  `json:"price_per_seat" bson:"price_per_seat"` // minor currency units
	Currency              string                 `json:"currency" bson:"currency"`
	RideCode              string                 `json:"ride_code" bson:"ride_code"`
	Status                RideStatus             `json:"status" bson:"status"`
	NeedsReconciliation   bool                   `json:"needs_reconciliation" bson:"needs_reconciliation"`
	ReconciliationReasons []ReconciliationReason `json:"reconciliation_reasons,omitempty" bson:"reconciliation_reasons,omitempty"`
	CancelledAt           *time.Time             `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CompletedAt           *time.Time             `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CreatedAt             time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at" bson:"updated_at"`
}

func (r *Ride) IsActive() bool {
	return r.Status == RideStatusActive
}

func (r *Ride) IsOwnedBy(userID string) bool {
	return r.OwnerID == userID
}

// RideFilter narrows ListActive. Empty fields match everything.
type RideFilter struct {
	Origin      string
	Destination string
	Sort        RideSort
}

// RideDetailsUpdate holds the owner-editable fields of a ride. Nil fields
// are left untouched.
type RideDetailsUpdate struct {
	Title         *string    `bson:"title,omitempty"`
	Origin        *string    `bson:"origin,omitempty"`
	Destination   *string    `bson:"destination,omitempty"`
	DepartureTime *time.Time `bson:"departure_time,omitempty"`
}

func (u *RideDetailsUpdate) IsEmpty() bool {
	return u.Title == nil && u.Origin == nil && u.Destination == nil && u.DepartureTime == nil
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentTransaction tracks one hosted checkout session.
type PaymentTransaction struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ParticipationID primitive.ObjectID `json:"participation_id" bson:"participation_id"`
	RideID          primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	UserID          string             `json:"user_id" bson:"user_id"`
	Provider        string             `json:"provider" bson:"provider"`
	Amount          int64              `json:"amount" bson:"amount"`
	Currency        string             `json:"currency" bson:"currency"`
	SessionID       string             `json:"session_id" bson:"session_id"`
	PaymentIntentID string             `json:"payment_intent_id,omitempty" bson:"payment_intent_id,omitempty"`
	Status          PaymentStatus      `json:"status" bson:"status"`
	FailureReason   string             `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

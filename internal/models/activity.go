package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityKind string

const (
	ActivityRideCreated           ActivityKind = "ride_created"
	ActivityRideUpdated           ActivityKind = "ride_updated"
	ActivityRideCancelled         ActivityKind = "ride_cancelled"
	ActivityRideCompleted         ActivityKind = "ride_completed"
	ActivityRideJoined            ActivityKind = "ride_joined"
	ActivityRideLeft              ActivityKind = "ride_left"
	ActivityParticipationReleased ActivityKind = "participation_released"
	ActivityCheckoutStarted       ActivityKind = "checkout_started"
	ActivityPaymentCompleted      ActivityKind = "payment_completed"
	ActivityPaymentMismatch       ActivityKind = "payment_mismatch"
	ActivityDuplicatePayment      ActivityKind = "duplicate_payment"
	ActivityOversellDetected      ActivityKind = "oversell_detected"
	ActivityRideViewed            ActivityKind = "ride_viewed"
	ActivityRideSearched          ActivityKind = "ride_searched"
	ActivityChatJoined            ActivityKind = "chat_joined"
)

// ClientActivityKinds are the kinds a client may append directly; every
// other kind is written by the services as a side effect.
var ClientActivityKinds = map[ActivityKind]bool{
	ActivityRideViewed:   true,
	ActivityRideSearched: true,
	ActivityChatJoined:   true,
}

// ActivityEntry is write-once.
type ActivityEntry struct {
	ID        primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	UserID    string                 `json:"user_id" bson:"user_id"`
	RideID    *primitive.ObjectID    `json:"ride_id,omitempty" bson:"ride_id,omitempty"`
	Kind      ActivityKind           `json:"action" bson:"action"`
	Metadata  map[string]interface{} `json:"meta,omitempty" bson:"meta,omitempty"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
}

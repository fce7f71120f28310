package interfaces

import (
	"context"
	"time"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ParticipationRepository interface {
	// Create fails with a conflict error when the user already holds a
	// non-cancelled participation for the ride.
	Create(ctx context.Context, participation *models.Participation) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Participation, error)
	GetActive(ctx context.Context, rideID primitive.ObjectID, userID string) (*models.Participation, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*models.Participation, error)

	ListByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Participation, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.Participation, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]*models.Participation, error)

	SetCheckoutSession(ctx context.Context, id primitive.ObjectID, sessionID string) error

	// MarkPaid applies only while paid = false. It reports whether this call
	// performed the transition and returns the current document either way.
	// Reactivating a cancelled participation fails with a conflict error if
	// the user already holds another active one for the same ride.
	MarkPaid(ctx context.Context, id primitive.ObjectID, reference string, amount int64) (*models.Participation, bool, error)
	// RecordDetachedPayment records a payment without reactivating a
	// cancelled participation.
	RecordDetachedPayment(ctx context.Context, id primitive.ObjectID, reference string, amount int64) (*models.Participation, bool, error)

	// Cancel applies only to pending, unpaid participations.
	Cancel(ctx context.Context, id primitive.ObjectID) (*models.Participation, error)
}

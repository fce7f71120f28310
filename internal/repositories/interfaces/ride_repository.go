package interfaces

import (
	"context"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideRepository interface {
	// Basic operations
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Ride, error)

	// Search and filtering
	ListActive(ctx context.Context, filter *models.RideFilter) ([]*models.Ride, error)
	ListByOwner(ctx context.Context, ownerID string, status models.RideStatus) ([]*models.Ride, error)

	// Conditional mutations. Each applies only while the ride is in the
	// expected state and returns the updated document.
	UpdateDetails(ctx context.Context, id primitive.ObjectID, update *models.RideDetailsUpdate) (*models.Ride, error)
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.RideStatus) (*models.Ride, error)

	// DecrementSeat takes one seat off an active ride only if seats_left > 0.
	// It returns a state error when the ride is no longer active and a
	// capacity error when no seat is left.
	DecrementSeat(ctx context.Context, id primitive.ObjectID) (*models.Ride, error)
	FlagReconciliation(ctx context.Context, id primitive.ObjectID, reason models.ReconciliationReason) error
}

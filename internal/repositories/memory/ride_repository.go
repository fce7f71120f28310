package memory

import (
	"context"
	"strings"

	"carpool/internal/apperr"
	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type rideRepository struct {
	store *Store
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if ride.ID.IsZero() {
		ride.ID = primitive.NewObjectID()
	}
	if _, exists := s.rides[ride.ID]; exists {
		return apperr.Conflict("RIDE_EXISTS", "ride already exists")
	}
	now := s.now()
	ride.CreatedAt = now
	ride.UpdatedAt = now
	s.rides[ride.ID] = cloneRide(ride)
	return nil
}

func (r *rideRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, apperr.NotFound("ride")
	}
	return cloneRide(ride), nil
}

func (r *rideRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Ride, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rides := make([]*models.Ride, 0, len(ids))
	for _, id := range ids {
		if ride, ok := s.rides[id]; ok {
			rides = append(rides, cloneRide(ride))
		}
	}
	return rides, nil
}

func (r *rideRepository) ListActive(ctx context.Context, filter *models.RideFilter) ([]*models.Ride, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var origin, destination string
	if filter != nil {
		origin = strings.ToLower(filter.Origin)
		destination = strings.ToLower(filter.Destination)
	}

	rides := make([]*models.Ride, 0)
	for _, ride := range s.rides {
		if ride.Status != models.RideStatusActive || ride.SeatsLeft <= 0 {
			continue
		}
		if origin != "" && !strings.Contains(strings.ToLower(ride.Origin), origin) {
			continue
		}
		if destination != "" && !strings.Contains(strings.ToLower(ride.Destination), destination) {
			continue
		}
		rides = append(rides, cloneRide(ride))
	}
	return rides, nil
}

func (r *rideRepository) ListByOwner(ctx context.Context, ownerID string, status models.RideStatus) ([]*models.Ride, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rides := make([]*models.Ride, 0)
	for _, ride := range s.rides {
		if ride.OwnerID != ownerID {
			continue
		}
		if status != "" && ride.Status != status {
			continue
		}
		rides = append(rides, cloneRide(ride))
	}
	return rides, nil
}

func (r *rideRepository) UpdateDetails(ctx context.Context, id primitive.ObjectID, update *models.RideDetailsUpdate) (*models.Ride, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, apperr.NotFound("ride")
	}
	if ride.Status != models.RideStatusActive {
		return nil, apperr.State("RIDE_NOT_ACTIVE", "ride is no longer active")
	}

	if update.Title != nil {
		ride.Title = *update.Title
	}
	if update.Origin != nil {
		ride.Origin = *update.Origin
	}
	if update.Destination != nil {
		ride.Destination = *update.Destination
	}
	if update.DepartureTime != nil {
		ride.DepartureTime = *update.DepartureTime
	}
	ride.UpdatedAt = s.now()
	return cloneRide(ride), nil
}

func (r *rideRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from, to models.RideStatus) (*models.Ride, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, apperr.NotFound("ride")
	}
	if ride.Status != from {
		return nil, apperr.State("INVALID_RIDE_STATUS", "ride is "+string(ride.Status))
	}

	now := s.now()
	ride.Status = to
	ride.UpdatedAt = now
	switch to {
	case models.RideStatusCancelled:
		ride.CancelledAt = &now
	case models.RideStatusCompleted:
		ride.CompletedAt = &now
	}
	return cloneRide(ride), nil
}

func (r *rideRepository) DecrementSeat(ctx context.Context, id primitive.ObjectID) (*models.Ride, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, apperr.NotFound("ride")
	}
	if !ride.IsActive() {
		return nil, apperr.State("RIDE_NOT_ACTIVE", "ride is "+string(ride.Status))
	}
	if ride.SeatsLeft <= 0 {
		return nil, apperr.Capacity("NO_SEATS_LEFT", "no seats left on ride")
	}
	ride.SeatsLeft--
	ride.UpdatedAt = s.now()
	return cloneRide(ride), nil
}

func (r *rideRepository) FlagReconciliation(ctx context.Context, id primitive.ObjectID, reason models.ReconciliationReason) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[id]
	if !ok {
		return apperr.NotFound("ride")
	}
	ride.NeedsReconciliation = true
	for _, existing := range ride.ReconciliationReasons {
		if existing == reason {
			return nil
		}
	}
	ride.ReconciliationReasons = append(ride.ReconciliationReasons, reason)
	ride.UpdatedAt = s.now()
	return nil
}

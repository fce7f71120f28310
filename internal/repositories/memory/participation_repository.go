package memory

import (
	"context"
	"sort"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type participationRepository struct {
	store *Store
}

func (r *participationRepository) Create(ctx context.Context, participation *models.Participation) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if participation.ID.IsZero() {
		participation.ID = primitive.NewObjectID()
	}
	if participation.Status == "" {
		participation.Status = models.ParticipationStatusPending
	}

	if participation.Status != models.ParticipationStatusCancelled {
		key := models.ActiveParticipationKey(participation.RideID, participation.UserID)
		if _, exists := s.activeKeys[key]; exists {
			return apperr.Conflict("ALREADY_JOINED", "user already has an active participation for this ride")
		}
		participation.ActiveKey = &key
		s.activeKeys[key] = participation.ID
	}

	now := s.now()
	participation.CreatedAt = now
	participation.UpdatedAt = now
	s.participations[participation.ID] = cloneParticipation(participation)
	return nil
}

func (r *participationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Participation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participations[id]
	if !ok {
		return nil, apperr.NotFound("participation")
	}
	return cloneParticipation(p), nil
}

func (r *participationRepository) GetActive(ctx context.Context, rideID primitive.ObjectID, userID string) (*models.Participation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeKeys[models.ActiveParticipationKey(rideID, userID)]
	if !ok {
		return nil, apperr.NotFound("participation")
	}
	return cloneParticipation(s.participations[id]), nil
}

func (r *participationRepository) GetByCheckoutSession(ctx context.Context, sessionID string) (*models.Participation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.participations {
		if p.CheckoutSessionID == sessionID {
			return cloneParticipation(p), nil
		}
	}
	return nil, apperr.NotFound("participation")
}

func (r *participationRepository) ListByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Participation, error) {
	return r.list(func(p *models.Participation) bool {
		return p.RideID == rideID
	}), nil
}

func (r *participationRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Participation, error) {
	return r.list(func(p *models.Participation) bool {
		return p.UserID == userID && p.Status != models.ParticipationStatusCancelled
	}), nil
}

func (r *participationRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]*models.Participation, error) {
	return r.list(func(p *models.Participation) bool {
		return p.Status == models.ParticipationStatusPending && !p.Paid && p.CreatedAt.Before(createdBefore)
	}), nil
}

// list returns matches ordered by creation time, then id.
func (r *participationRepository) list(match func(*models.Participation) bool) []*models.Participation {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Participation, 0)
	for _, p := range s.participations {
		if match(p) {
			result = append(result, cloneParticipation(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.Hex() < result[j].ID.Hex()
	})
	return result
}

func (r *participationRepository) SetCheckoutSession(ctx context.Context, id primitive.ObjectID, sessionID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[id]
	if !ok {
		return apperr.NotFound("participation")
	}
	p.CheckoutSessionID = sessionID
	p.UpdatedAt = s.now()
	return nil
}

func (r *participationRepository) MarkPaid(ctx context.Context, id primitive.ObjectID, reference string, amount int64) (*models.Participation, bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[id]
	if !ok {
		return nil, false, apperr.NotFound("participation")
	}
	if p.Paid {
		return cloneParticipation(p), false, nil
	}

	key := models.ActiveParticipationKey(p.RideID, p.UserID)
	if holder, exists := s.activeKeys[key]; exists && holder != p.ID {
		return nil, false, apperr.Conflict("ALREADY_JOINED", "user already has an active participation for this ride")
	}

	now := s.now()
	s.activeKeys[key] = p.ID
	p.ActiveKey = &key
	p.Paid = true
	p.AmountPaid = amount
	p.PaymentReference = reference
	p.Status = models.ParticipationStatusPaid
	p.PaidAt = &now
	p.CancelledAt = nil
	p.UpdatedAt = now
	return cloneParticipation(p), true, nil
}

func (r *participationRepository) RecordDetachedPayment(ctx context.Context, id primitive.ObjectID, reference string, amount int64) (*models.Participation, bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[id]
	if !ok {
		return nil, false, apperr.NotFound("participation")
	}
	if p.Paid {
		return cloneParticipation(p), false, nil
	}

	now := s.now()
	p.Paid = true
	p.AmountPaid = amount
	p.PaymentReference = reference
	p.PaidAt = &now
	p.UpdatedAt = now
	return cloneParticipation(p), true, nil
}

func (r *participationRepository) Cancel(ctx context.Context, id primitive.ObjectID) (*models.Participation, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[id]
	if !ok {
		return nil, apperr.NotFound("participation")
	}
	if p.Paid || p.Status != models.ParticipationStatusPending {
		return nil, apperr.State("PARTICIPATION_NOT_PENDING", "participation is "+string(p.Status))
	}

	now := s.now()
	if p.ActiveKey != nil {
		delete(s.activeKeys, *p.ActiveKey)
		p.ActiveKey = nil
	}
	p.Status = models.ParticipationStatusCancelled
	p.CancelledAt = &now
	p.UpdatedAt = now
	return cloneParticipation(p), nil
}

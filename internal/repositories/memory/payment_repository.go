package memory

import (
	"context"

	"carpool/internal/apperr"
	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type paymentRepository struct {
	store *Store
}

func (r *paymentRepository) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[transaction.SessionID]; exists {
		return apperr.Conflict("SESSION_EXISTS", "payment session already recorded")
	}
	transaction.ID = primitive.NewObjectID()
	now := s.now()
	transaction.CreatedAt = now
	transaction.UpdatedAt = now
	c := *transaction
	s.payments[transaction.SessionID] = &c
	return nil
}

func (r *paymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.payments[sessionID]
	if !ok {
		return nil, apperr.NotFound("payment transaction")
	}
	c := *tx
	return &c, nil
}

func (r *paymentRepository) MarkCompleted(ctx context.Context, sessionID, paymentIntentID string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.payments[sessionID]
	if !ok {
		return false, apperr.NotFound("payment transaction")
	}
	if tx.Status != models.PaymentStatusPending {
		return false, nil
	}
	now := s.now()
	tx.Status = models.PaymentStatusCompleted
	tx.PaymentIntentID = paymentIntentID
	tx.CompletedAt = &now
	tx.UpdatedAt = now
	return true, nil
}

func (r *paymentRepository) MarkFailed(ctx context.Context, sessionID, reason string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.payments[sessionID]
	if !ok {
		return apperr.NotFound("payment transaction")
	}
	if tx.Status != models.PaymentStatusPending {
		return nil
	}
	tx.Status = models.PaymentStatusFailed
	tx.FailureReason = reason
	tx.UpdatedAt = s.now()
	return nil
}

package interfaces

import (
	"context"

	"carpool/internal/models"
)

type PaymentRepository interface {
	Create(ctx context.Context, transaction *models.PaymentTransaction) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error)
	// MarkCompleted applies only to pending transactions and reports whether
	// it performed the transition.
	MarkCompleted(ctx context.Context, sessionID, paymentIntentID string) (bool, error)
	MarkFailed(ctx context.Context, sessionID, reason string) error
}

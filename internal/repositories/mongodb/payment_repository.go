package mongodb

import (
	"context"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type paymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) interfaces.PaymentRepository {
	return &paymentRepository{
		collection: db.Collection(database.CollectionPayments),
	}
}

func (r *paymentRepository) Create(ctx context.Context, transaction *models.PaymentTransaction) error {
	transaction.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	transaction.CreatedAt = now
	transaction.UpdatedAt = now
	if transaction.Status == "" {
		transaction.Status = models.PaymentStatusPending
	}

	if _, err := r.collection.InsertOne(ctx, transaction); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Wrap(apperr.KindConflict, "SESSION_EXISTS", "checkout session already recorded", err)
		}
		return translate(err, "create payment transaction", "payment transaction")
	}
	return nil
}

func (r *paymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.PaymentTransaction, error) {
	var transaction models.PaymentTransaction
	if err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&transaction); err != nil {
		return nil, translate(err, "get payment transaction", "payment transaction")
	}
	return &transaction, nil
}

func (r *paymentRepository) MarkCompleted(ctx context.Context, sessionID, paymentIntentID string) (bool, error) {
	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": models.PaymentStatusPending},
		bson.M{"$set": bson.M{
			"status":            models.PaymentStatusCompleted,
			"payment_intent_id": paymentIntentID,
			"completed_at":      now,
			"updated_at":        now,
		}},
	)
	if err != nil {
		return false, translate(err, "complete payment transaction", "payment transaction")
	}
	return result.ModifiedCount > 0, nil
}

func (r *paymentRepository) MarkFailed(ctx context.Context, sessionID, reason string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": models.PaymentStatusPending},
		bson.M{"$set": bson.M{
			"status":         models.PaymentStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return translate(err, "fail payment transaction", "payment transaction")
	}
	return nil
}

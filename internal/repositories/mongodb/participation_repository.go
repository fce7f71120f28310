package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type participationRepository struct {
	collection *mongo.Collection
}

// NewParticipationRepository relies on the unique partial index over
// active_key to enforce one live participation per ride and user.
func NewParticipationRepository(db *mongo.Database) interfaces.ParticipationRepository {
	return &participationRepository{
		collection: db.Collection(database.CollectionParticipations),
	}
}

func alreadyJoined(err error) error {
	return apperr.Wrap(apperr.KindConflict, "ALREADY_JOINED", "user already has an active participation for this ride", err)
}

func (r *participationRepository) Create(ctx context.Context, participation *models.Participation) error {
	if participation.ID.IsZero() {
		participation.ID = primitive.NewObjectID()
	}
	if participation.Status == "" {
		participation.Status = models.ParticipationStatusPending
	}
	if participation.Status != models.ParticipationStatusCancelled {
		key := models.ActiveParticipationKey(participation.RideID, participation.UserID)
		participation.ActiveKey = &key
	}
	now := time.Now().UTC()
	participation.CreatedAt = now
	participation.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, participation); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return alreadyJoined(err)
		}
		return translate(err, "create participation", "participation")
	}
	return nil
}

func (r *participationRepository) findOne(ctx context.Context, filter bson.M, action string) (*models.Participation, error) {
	var participation models.Participation
	if err := r.collection.FindOne(ctx, filter).Decode(&participation); err != nil {
		return nil, translate(err, action, "participation")
	}
	return &participation, nil
}

func (r *participationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Participation, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "get participation")
}

func (r *participationRepository) GetActive(ctx context.Context, rideID primitive.ObjectID, userID string) (*models.Participation, error) {
	return r.findOne(ctx, bson.M{"active_key": models.ActiveParticipationKey(rideID, userID)}, "get active participation")
}

func (r *participationRepository) GetByCheckoutSession(ctx context.Context, sessionID string) (*models.Participation, error) {
	return r.findOne(ctx, bson.M{"checkout_session_id": sessionID}, "get participation by session")
}

func (r *participationRepository) ListByRide(ctx context.Context, rideID primitive.ObjectID) ([]*models.Participation, error) {
	return r.find(ctx, bson.M{"ride_id": rideID}, "list participations by ride")
}

func (r *participationRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Participation, error) {
	return r.find(ctx, bson.M{
		"user_id": userID,
		"status":  bson.M{"$ne": models.ParticipationStatusCancelled},
	}, "list participations by user")
}

func (r *participationRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]*models.Participation, error) {
	return r.find(ctx, bson.M{
		"status":     models.ParticipationStatusPending,
		"paid":       false,
		"created_at": bson.M{"$lt": createdBefore},
	}, "list stale participations")
}

func (r *participationRepository) find(ctx context.Context, filter bson.M, action string) ([]*models.Participation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, action, "participation")
	}
	defer cursor.Close(ctx)

	participations := make([]*models.Participation, 0)
	if err := cursor.All(ctx, &participations); err != nil {
		return nil, fmt.Errorf("failed to decode participations: %w", err)
	}
	return participations, nil
}

func (r *participationRepository) SetCheckoutSession(ctx context.Context, id primitive.ObjectID, sessionID string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"checkout_session_id": sessionID, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return translate(err, "set checkout session", "participation")
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("participation")
	}
	return nil
}

func (r *participationRepository) MarkPaid(ctx context.Context, id primitive.ObjectID, reference string, amount int64) (*models.Participation, bool, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Paid {
		return current, false, nil
	}

	now := time.Now().UTC()
	key := models.ActiveParticipationKey(current.RideID, current.UserID)
	update := bson.M{
		"$set": bson.M{
			"paid":              true,
			"amount_paid":       amount,
			"payment_reference": reference,
			"status":            models.ParticipationStatusPaid,
			"active_key":        key,
			"paid_at":           now,
			"updated_at":        now,
		},
		"$unset": bson.M{"cancelled_at": ""},
	}

	updated, err := r.applyPayment(ctx, id, update)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return nil, false, alreadyJoined(err)
	}
	return r.settle(ctx, id, updated, err)
}

func (r *participationRepository) RecordDetachedPayment(ctx context.Context, id primitive.ObjectID, reference string, amount int64) (*models.Participation, bool, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"paid":              true,
			"amount_paid":       amount,
			"payment_reference": reference,
			"paid_at":           now,
			"updated_at":        now,
		},
	}

	updated, err := r.applyPayment(ctx, id, update)
	return r.settle(ctx, id, updated, err)
}

// applyPayment runs the update only while paid = false.
func (r *participationRepository) applyPayment(ctx context.Context, id primitive.ObjectID, update bson.M) (*models.Participation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var participation models.Participation
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id, "paid": false}, update, opts).Decode(&participation)
	if err != nil {
		return nil, err
	}
	return &participation, nil
}

// settle turns a lost race on the paid flag into (current, false, nil).
func (r *participationRepository) settle(ctx context.Context, id primitive.ObjectID, updated *models.Participation, err error) (*models.Participation, bool, error) {
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, translate(err, "mark participation paid", "participation")
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}
	return current, false, nil
}

func (r *participationRepository) Cancel(ctx context.Context, id primitive.ObjectID) (*models.Participation, error) {
	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var participation models.Participation
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.ParticipationStatusPending, "paid": false},
		bson.M{
			"$set":   bson.M{"status": models.ParticipationStatusCancelled, "cancelled_at": now, "updated_at": now},
			"$unset": bson.M{"active_key": ""},
		},
		opts,
	).Decode(&participation)
	if err == nil {
		return &participation, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, translate(err, "cancel participation", "participation")
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, apperr.State("PARTICIPATION_NOT_PENDING", "participation is "+string(current.Status))
}

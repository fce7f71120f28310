package mongodb

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type activityRepository struct {
	collection *mongo.Collection
}

func NewActivityRepository(db *mongo.Database) interfaces.ActivityRepository {
	return &activityRepository{
		collection: db.Collection(database.CollectionActivity),
	}
}

func (r *activityRepository) Append(ctx context.Context, entry *models.ActivityEntry) error {
	entry.ID = primitive.NewObjectID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return translate(err, "append activity", "activity entry")
	}
	return nil
}

func (r *activityRepository) List(ctx context.Context, userID string, kind models.ActivityKind, limit int) ([]*models.ActivityEntry, error) {
	filter := bson.M{"user_id": userID}
	if kind != "" {
		filter["action"] = kind
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err, "list activity", "activity entry")
	}
	defer cursor.Close(ctx)

	entries := make([]*models.ActivityEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	return entries, nil
}

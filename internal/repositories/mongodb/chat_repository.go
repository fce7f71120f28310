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

type chatRepository struct {
	messagesCollection *mongo.Collection
}

func NewChatRepository(db *mongo.Database) interfaces.ChatRepository {
	return &chatRepository{
		messagesCollection: db.Collection(database.CollectionMessages),
	}
}

func (r *chatRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	message.ID = primitive.NewObjectID()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	if _, err := r.messagesCollection.InsertOne(ctx, message); err != nil {
		return translate(err, "create message", "message")
	}
	return nil
}

// ListByRide fetches the newest limit messages and returns them oldest first.
func (r *chatRepository) ListByRide(ctx context.Context, rideID primitive.ObjectID, limit int) ([]*models.ChatMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.messagesCollection.Find(ctx, bson.M{"ride_id": rideID}, opts)
	if err != nil {
		return nil, translate(err, "list messages", "message")
	}
	defer cursor.Close(ctx)

	messages := make([]*models.ChatMessage, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

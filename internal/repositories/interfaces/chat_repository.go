package interfaces

import (
	"context"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	ListByRide(ctx context.Context, rideID primitive.ObjectID, limit int) ([]*models.ChatMessage, error)
}

package memory

import (
	"context"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type chatRepository struct {
	store *Store
}

func (r *chatRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	message.ID = primitive.NewObjectID()
	message.CreatedAt = s.now()
	c := *message
	s.messages = append(s.messages, &c)
	return nil
}

func (r *chatRepository) ListByRide(ctx context.Context, rideID primitive.ObjectID, limit int) ([]*models.ChatMessage, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]*models.ChatMessage, 0)
	for _, m := range s.messages {
		if m.RideID != rideID {
			continue
		}
		c := *m
		messages = append(messages, &c)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

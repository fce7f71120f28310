package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageTypeText MessageType = "text"
)

type ChatMessage struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RideID    primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	SenderID  string             `json:"user_id" bson:"user_id"`
	Type      MessageType        `json:"type" bson:"type"`
	Content   string             `json:"content" bson:"content"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/events"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatService interface {
	PostMessage(ctx context.Context, rideID primitive.ObjectID, senderID, content string) (*models.ChatMessage, error)
	// ListMessages returns up to limit of the most recent messages, oldest first.
	ListMessages(ctx context.Context, rideID primitive.ObjectID, actor models.Principal, limit int) ([]*models.ChatMessage, error)
}

type chatService struct {
	chatRepo       interfaces.ChatRepository
	participations ParticipationService
	notifier       notifier
	historyLimit   int
	now            Clock
}

func NewChatService(
	chatRepo interfaces.ChatRepository,
	participations ParticipationService,
	publisher events.Publisher,
	historyLimit int,
	clock Clock,
	log *logger.Logger,
) ChatService {
	if historyLimit <= 0 {
		historyLimit = utils.DefaultChatLimit
	}
	return &chatService{
		chatRepo:       chatRepo,
		participations: participations,
		notifier:       newNotifier(publisher, logOrDiscard(log)),
		historyLimit:   historyLimit,
		now:            clockOrDefault(clock),
	}
}

func (s *chatService) PostMessage(ctx context.Context, rideID primitive.ObjectID, senderID, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("EMPTY_MESSAGE", "message content is required")
	}
	if utf8.RuneCountInString(content) > utils.MaxMessageLength {
		return nil, apperr.Validation("MESSAGE_TOO_LONG", fmt.Sprintf("message must be at most %d characters", utils.MaxMessageLength))
	}

	if err := s.participations.AuthorizeRideAccess(ctx, rideID, senderID); err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		RideID:    rideID,
		SenderID:  senderID,
		Type:      models.MessageTypeText,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.chatRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	s.notifier.publish(ctx, events.ChatMessagePosted, rideID, senderID, message)
	return message, nil
}

func (s *chatService) ListMessages(ctx context.Context, rideID primitive.ObjectID, actor models.Principal, limit int) ([]*models.ChatMessage, error) {
	if !actor.IsPrivileged() {
		if err := s.participations.AuthorizeRideAccess(ctx, rideID, actor.UserID); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	messages, err := s.chatRepo.ListByRide(ctx, rideID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

package services

import (
	"context"
	"fmt"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityService interface {
	// Record appends a server-side entry. Entries are never modified.
	Record(ctx context.Context, userID string, rideID *primitive.ObjectID, kind models.ActivityKind, meta map[string]interface{}) error
	// RecordClientAction appends one of the kinds clients may report themselves.
	RecordClientAction(ctx context.Context, userID string, rideID *primitive.ObjectID, kind models.ActivityKind, meta map[string]interface{}) (*models.ActivityEntry, error)
	// List returns the user's entries newest first. An empty kind matches all.
	List(ctx context.Context, userID string, kind models.ActivityKind, limit int) ([]*models.ActivityEntry, error)
}

type activityService struct {
	activityRepo interfaces.ActivityRepository
	defaultLimit int
	now          Clock
}

func NewActivityService(activityRepo interfaces.ActivityRepository, defaultLimit int, clock Clock) ActivityService {
	if defaultLimit <= 0 {
		defaultLimit = utils.DefaultActivityLimit
	}
	return &activityService{
		activityRepo: activityRepo,
		defaultLimit: defaultLimit,
		now:          clockOrDefault(clock),
	}
}

func (s *activityService) Record(ctx context.Context, userID string, rideID *primitive.ObjectID, kind models.ActivityKind, meta map[string]interface{}) error {
	if userID == "" {
		return apperr.Validation("MISSING_USER", "activity entry needs a user")
	}
	if kind == "" {
		return apperr.Validation("MISSING_ACTION", "activity entry needs an action")
	}

	entry := &models.ActivityEntry{
		UserID:    userID,
		RideID:    rideID,
		Kind:      kind,
		Metadata:  meta,
		CreatedAt: s.now().UTC(),
	}
	if err := s.activityRepo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (s *activityService) RecordClientAction(ctx context.Context, userID string, rideID *primitive.ObjectID, kind models.ActivityKind, meta map[string]interface{}) (*models.ActivityEntry, error) {
	if !models.ClientActivityKinds[kind] {
		return nil, apperr.Validation("ACTION_NOT_ALLOWED", fmt.Sprintf("action %q cannot be recorded by clients", kind))
	}

	entry := &models.ActivityEntry{
		UserID:    userID,
		RideID:    rideID,
		Kind:      kind,
		Metadata:  meta,
		CreatedAt: s.now().UTC(),
	}
	if err := s.activityRepo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append activity: %w", err)
	}
	return entry, nil
}

func (s *activityService) List(ctx context.Context, userID string, kind models.ActivityKind, limit int) ([]*models.ActivityEntry, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	entries, err := s.activityRepo.List(ctx, userID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return entries, nil
}

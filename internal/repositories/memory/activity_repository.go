package memory

import (
	"context"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type activityRepository struct {
	store *Store
}

func (r *activityRepository) Append(ctx context.Context, entry *models.ActivityEntry) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = primitive.NewObjectID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.activity = append(s.activity, cloneActivity(entry))
	return nil
}

// List walks the log backwards, so entries written later come first even
// when timestamps tie.
func (r *activityRepository) List(ctx context.Context, userID string, kind models.ActivityKind, limit int) ([]*models.ActivityEntry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*models.ActivityEntry, 0)
	for i := len(s.activity) - 1; i >= 0; i-- {
		entry := s.activity[i]
		if entry.UserID != userID {
			continue
		}
		if kind != "" && entry.Kind != kind {
			continue
		}
		entries = append(entries, cloneActivity(entry))
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

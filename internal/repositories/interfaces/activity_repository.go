package interfaces

import (
	"context"

	"carpool/internal/models"
)

// ActivityRepository is append-only: there is no update or delete.
type ActivityRepository interface {
	Append(ctx context.Context, entry *models.ActivityEntry) error
	// List returns the user's entries newest first. An empty kind matches all.
	List(ctx context.Context, userID string, kind models.ActivityKind, limit int) ([]*models.ActivityEntry, error)
}

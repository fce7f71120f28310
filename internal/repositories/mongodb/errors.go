package mongodb

import (
	"errors"
	"fmt"
	"strings"

	"carpool/internal/apperr"

	"go.mongodb.org/mongo-driver/mongo"
)

// translate maps driver errors onto the shared taxonomy. Anything else is
// wrapped and surfaces as an internal error.
func translate(err error, action, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(resource)
	}
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Wrap(apperr.KindConflict, "DUPLICATE_"+upper(resource), resource+" already exists", err)
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return apperr.Unavailable("store unavailable", err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func upper(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
}

package services

import (
	"context"
	"time"

	"carpool/internal/models"
	"carpool/pkg/events"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Clock supplies the current time. Tests pin it.
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

func logOrDiscard(log *logger.Logger) *logger.Logger {
	if log == nil {
		return logger.Discard()
	}
	return log
}

// notifier publishes change events after a write has committed. Delivery is
// best-effort: a failed publish is logged, never returned.
type notifier struct {
	publisher events.Publisher
	log       *logger.Logger
}

func newNotifier(publisher events.Publisher, log *logger.Logger) notifier {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return notifier{publisher: publisher, log: log}
}

func (n notifier) publish(ctx context.Context, eventType events.Type, rideID primitive.ObjectID, userID string, data interface{}) {
	event := events.New(eventType, rideID.Hex(), userID, data)
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.log.WithContext(ctx).WithError(err).WithField("event_type", eventType).Warn("Failed to publish change event")
	}
}

// recordActivity appends an entry after the main mutation has committed.
// The mutation already happened, so a failure here is logged, not returned.
func recordActivity(ctx context.Context, activity ActivityService, log *logger.Logger, userID string, rideID *primitive.ObjectID, kind models.ActivityKind, meta map[string]interface{}) {
	if err := activity.Record(ctx, userID, rideID, kind, meta); err != nil {
		entry := log.WithContext(ctx).WithError(err).WithField("action", kind).WithUserID(userID)
		if rideID != nil {
			entry = entry.WithRideID(*rideID)
		}
		entry.Error("Failed to append activity entry")
	}
}

func rideRef(id primitive.ObjectID) *primitive.ObjectID {
	return &id
}

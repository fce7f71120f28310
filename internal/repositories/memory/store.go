// Package memory holds mutex-guarded, table-per-entity repositories. It backs
// STORE_DRIVER=memory and the service tests.
package memory

import (
	"sync"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store keeps every table behind a single lock so conditional updates across
// rides and participations stay atomic.
type Store struct {
	mu sync.RWMutex

	rides          map[primitive.ObjectID]*models.Ride
	participations map[primitive.ObjectID]*models.Participation
	activeKeys     map[string]primitive.ObjectID
	activity       []*models.ActivityEntry
	messages       []*models.ChatMessage
	payments       map[string]*models.PaymentTransaction

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		rides:          make(map[primitive.ObjectID]*models.Ride),
		participations: make(map[primitive.ObjectID]*models.Participation),
		activeKeys:     make(map[string]primitive.ObjectID),
		payments:       make(map[string]*models.PaymentTransaction),
		now:            time.Now,
	}
}

// SetClock overrides the timestamp source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Rides() interfaces.RideRepository {
	return &rideRepository{store: s}
}

func (s *Store) Participations() interfaces.ParticipationRepository {
	return &participationRepository{store: s}
}

func (s *Store) Activity() interfaces.ActivityRepository {
	return &activityRepository{store: s}
}

func (s *Store) Chat() interfaces.ChatRepository {
	return &chatRepository{store: s}
}

func (s *Store) Payments() interfaces.PaymentRepository {
	return &paymentRepository{store: s}
}

func cloneRide(r *models.Ride) *models.Ride {
	c := *r
	if r.ReconciliationReasons != nil {
		c.ReconciliationReasons = append([]models.ReconciliationReason(nil), r.ReconciliationReasons...)
	}
	return &c
}

func cloneParticipation(p *models.Participation) *models.Participation {
	c := *p
	if p.ActiveKey != nil {
		key := *p.ActiveKey
		c.ActiveKey = &key
	}
	return &c
}

func cloneActivity(e *models.ActivityEntry) *models.ActivityEntry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

var _ interfaces.Store = (*Store)(nil)

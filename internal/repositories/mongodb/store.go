package mongodb

import (
	"time"

	"carpool/internal/repositories/interfaces"
	"carpool/pkg/cache"

	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	rides          interfaces.RideRepository
	participations interfaces.ParticipationRepository
	activity       interfaces.ActivityRepository
	chat           interfaces.ChatRepository
	payments       interfaces.PaymentRepository
}

// NewStore builds every repository on db. c may be nil to disable the ride
// cache.
func NewStore(db *mongo.Database, c cache.Cache, rideCacheTTL time.Duration) *Store {
	return &Store{
		rides:          NewRideRepository(db, c, rideCacheTTL),
		participations: NewParticipationRepository(db),
		activity:       NewActivityRepository(db),
		chat:           NewChatRepository(db),
		payments:       NewPaymentRepository(db),
	}
}

func (s *Store) Rides() interfaces.RideRepository                   { return s.rides }
func (s *Store) Participations() interfaces.ParticipationRepository { return s.participations }
func (s *Store) Activity() interfaces.ActivityRepository            { return s.activity }
func (s *Store) Chat() interfaces.ChatRepository                    { return s.chat }
func (s *Store) Payments() interfaces.PaymentRepository             { return s.payments }

var _ interfaces.Store = (*Store)(nil)

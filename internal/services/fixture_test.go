package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"carpool/internal/config"
	"carpool/internal/models"
	"carpool/internal/repositories/memory"
	"carpool/pkg/events"
	"carpool/pkg/logger"
	"carpool/pkg/payment"
	"carpool/pkg/payment/paymenttest"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(eventType events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	t              *testing.T
	ctx            context.Context
	clock          *testClock
	store          *memory.Store
	publisher      *recordingPublisher
	gateway        *paymenttest.Gateway
	activity       ActivityService
	rides          RideService
	participations ParticipationService
	reconciler     Reconciler
	chat           ChatService
	checkout       CheckoutService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	store.SetClock(clock.Now)
	publisher := &recordingPublisher{}
	gateway := paymenttest.NewGateway()
	log := logger.Discard()
	policy := &config.RidePolicyConfig{DefaultCurrency: "usd", PendingTTL: 30 * time.Minute}

	activity := NewActivityService(store.Activity(), 100, clock.Now)
	participations := NewParticipationService(store.Rides(), store.Participations(), activity, publisher, clock.Now, log)
	reconciler := NewReconciler(store.Rides(), store.Participations(), activity, publisher, log)

	return &fixture{
		t:              t,
		ctx:            context.Background(),
		clock:          clock,
		store:          store,
		publisher:      publisher,
		gateway:        gateway,
		activity:       activity,
		rides:          NewRideService(store.Rides(), store.Participations(), activity, publisher, policy, clock.Now, log),
		participations: participations,
		reconciler:     reconciler,
		chat:           NewChatService(store.Chat(), participations, publisher, 200, clock.Now, log),
		checkout: NewCheckoutService(
			store.Rides(), store.Participations(), store.Payments(), reconciler, activity,
			[]payment.Gateway{gateway}, NewMemoryDeduplicator(24*time.Hour, clock.Now),
			CheckoutOptions{SuccessURL: "https://app.test/success", CancelURL: "https://app.test/cancel"},
			clock.Now, log,
		),
	}
}

func (f *fixture) rideInput(seats int, price int64) *CreateRideInput {
	return &CreateRideInput{
		Title:         "Morning commute",
		Origin:        "Oakland",
		Destination:   "San Francisco",
		DepartureTime: f.clock.Now().Add(24 * time.Hour),
		TotalSeats:    seats,
		PricePerSeat:  price,
	}
}

func (f *fixture) createRide(owner string, seats int, price int64) *models.Ride {
	f.t.Helper()
	ride, err := f.rides.CreateRide(f.ctx, owner, f.rideInput(seats, price))
	if err != nil {
		f.t.Fatalf("create ride: %v", err)
	}
	return ride
}

func (f *fixture) join(rideID primitive.ObjectID, user string) *models.Participation {
	f.t.Helper()
	p, err := f.participations.JoinRide(f.ctx, rideID, user, nil)
	if err != nil {
		f.t.Fatalf("join %s: %v", user, err)
	}
	return p
}

func (f *fixture) ride(id primitive.ObjectID) *models.Ride {
	f.t.Helper()
	ride, err := f.store.Rides().GetByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get ride: %v", err)
	}
	checkSeatInvariant(f.t, ride)
	return ride
}

func (f *fixture) participation(id primitive.ObjectID) *models.Participation {
	f.t.Helper()
	p, err := f.store.Participations().GetByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get participation: %v", err)
	}
	return p
}

func (f *fixture) activityKinds(user string) []models.ActivityKind {
	f.t.Helper()
	entries, err := f.activity.List(f.ctx, user, "", 0)
	if err != nil {
		f.t.Fatalf("list activity: %v", err)
	}
	kinds := make([]models.ActivityKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func hasKind(kinds []models.ActivityKind, kind models.ActivityKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func hasReason(ride *models.Ride, reason models.ReconciliationReason) bool {
	for _, r := range ride.ReconciliationReasons {
		if r == reason {
			return true
		}
	}
	return false
}

func checkSeatInvariant(t *testing.T, ride *models.Ride) {
	t.Helper()
	if ride.SeatsLeft < 0 || ride.SeatsLeft > ride.TotalSeats {
		t.Fatalf("seat invariant broken: seats_left=%d total=%d", ride.SeatsLeft, ride.TotalSeats)
	}
}

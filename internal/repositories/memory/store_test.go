package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedRide(t *testing.T, s *Store, seats int) *models.Ride {
	t.Helper()
	ride := &models.Ride{
		OwnerID:      "owner-1",
		Origin:       "Lyon",
		Destination:  "Paris",
		TotalSeats:   seats,
		SeatsLeft:    seats,
		PricePerSeat: 2000,
		Currency:     "eur",
		Status:       models.RideStatusActive,
	}
	if err := s.Rides().Create(context.Background(), ride); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func TestOneActiveParticipationPerUser(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := seedRide(t, s, 2)
	repo := s.Participations()

	first := &models.Participation{RideID: ride.ID, UserID: "rider-1", AmountDue: 2000}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("first join: %v", err)
	}
	err := repo.Create(ctx, &models.Participation{RideID: ride.ID, UserID: "rider-1", AmountDue: 2000})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := repo.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := repo.Create(ctx, &models.Participation{RideID: ride.ID, UserID: "rider-1", AmountDue: 2000}); err != nil {
		t.Fatalf("rejoin after cancel: %v", err)
	}
}

func TestMarkPaidIsConditional(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := seedRide(t, s, 1)
	repo := s.Participations()

	p := &models.Participation{RideID: ride.ID, UserID: "rider-1", AmountDue: 2000}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	paid, applied, err := repo.MarkPaid(ctx, p.ID, "pi_1", 2000)
	if err != nil || !applied {
		t.Fatalf("expected first mark paid to apply, got %v %v", applied, err)
	}
	if paid.Status != models.ParticipationStatusPaid || paid.AmountPaid != 2000 {
		t.Fatalf("unexpected participation %+v", paid)
	}

	again, applied, err := repo.MarkPaid(ctx, p.ID, "pi_2", 2000)
	if err != nil || applied {
		t.Fatalf("expected second mark paid to be a no-op, got %v %v", applied, err)
	}
	if again.PaymentReference != "pi_1" {
		t.Fatalf("reference overwritten: %s", again.PaymentReference)
	}

	if _, err := repo.Cancel(ctx, p.ID); !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected paid participation to refuse cancel, got %v", err)
	}
}

func TestReactivationConflict(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := seedRide(t, s, 2)
	repo := s.Participations()

	released := &models.Participation{RideID: ride.ID, UserID: "rider-1", AmountDue: 2000}
	if err := repo.Create(ctx, released); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Cancel(ctx, released.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := repo.Create(ctx, &models.Participation{RideID: ride.ID, UserID: "rider-1", AmountDue: 2000}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	if _, _, err := repo.MarkPaid(ctx, released.ID, "pi_1", 2000); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on reactivation, got %v", err)
	}

	detached, applied, err := repo.RecordDetachedPayment(ctx, released.ID, "pi_1", 2000)
	if err != nil || !applied {
		t.Fatalf("detached payment: %v %v", applied, err)
	}
	if !detached.Paid || detached.Status != models.ParticipationStatusCancelled {
		t.Fatalf("expected paid but cancelled, got %+v", detached)
	}
}

func TestDecrementSeatNeverGoesNegative(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := seedRide(t, s, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, capacity := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Rides().DecrementSeat(ctx, ride.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.Is(err, apperr.KindCapacity):
				capacity++
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 || capacity != 7 {
		t.Fatalf("expected 3 decrements and 7 capacity errors, got %d and %d", succeeded, capacity)
	}
	got, _ := s.Rides().GetByID(ctx, ride.ID)
	if got.SeatsLeft != 0 {
		t.Fatalf("expected 0 seats left, got %d", got.SeatsLeft)
	}
}

func TestTransitionStatusRequiresExpectedState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := seedRide(t, s, 1)

	if _, err := s.Rides().TransitionStatus(ctx, ride.ID, models.RideStatusActive, models.RideStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := s.Rides().TransitionStatus(ctx, ride.ID, models.RideStatusActive, models.RideStatusCompleted)
	if !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error, got %v", err)
	}
	if _, err := s.Rides().GetByID(ctx, primitive.NewObjectID()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFlagReconciliationKeepsReasonsUnique(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ride := seedRide(t, s, 1)

	for _, reason := range []models.ReconciliationReason{models.ReconciliationOversell, models.ReconciliationOversell, models.ReconciliationDuplicatePayment} {
		if err := s.Rides().FlagReconciliation(ctx, ride.ID, reason); err != nil {
			t.Fatalf("flag: %v", err)
		}
	}
	got, _ := s.Rides().GetByID(ctx, ride.ID)
	if !got.NeedsReconciliation || len(got.ReconciliationReasons) != 2 {
		t.Fatalf("unexpected reconciliation state %+v", got)
	}
}

func TestListStalePending(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	ride := seedRide(t, s, 3)
	repo := s.Participations()

	old := &models.Participation{RideID: ride.ID, UserID: "rider-old", AmountDue: 2000}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.SetClock(func() time.Time { return base.Add(time.Hour) })
	fresh := &models.Participation{RideID: ride.ID, UserID: "rider-new", AmountDue: 2000}
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("create: %v", err)
	}

	stale, err := repo.ListStalePending(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("expected only the old participation, got %+v", stale)
	}
}

func TestActivityListNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	kinds := []models.ActivityKind{models.ActivityRideJoined, models.ActivityRideViewed, models.ActivityRideJoined}
	for i, kind := range kinds {
		entry := &models.ActivityEntry{UserID: "rider-1", Kind: kind, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Activity().Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Activity().Append(ctx, &models.ActivityEntry{UserID: "someone-else", Kind: models.ActivityRideJoined}); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, _ := s.Activity().List(ctx, "rider-1", "", 10)
	if len(all) != 3 || !all[0].CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("unexpected list %+v", all)
	}
	joined, _ := s.Activity().List(ctx, "rider-1", models.ActivityRideJoined, 1)
	if len(joined) != 1 || joined[0].Kind != models.ActivityRideJoined {
		t.Fatalf("unexpected filtered list %+v", joined)
	}
}

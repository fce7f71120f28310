package services

import (
	"context"
	"testing"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/pkg/events"
	"carpool/pkg/logger"
)

func TestJoinRideDefersSeatDecrement(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1500)

	p := f.join(ride.ID, "rider-1")

	if p.Paid || p.AmountDue != 1500 || p.Status != models.ParticipationStatusPending {
		t.Fatalf("unexpected participation %+v", p)
	}
	if got := f.ride(ride.ID); got.SeatsLeft != 2 {
		t.Fatalf("join must not take a seat, seats_left=%d", got.SeatsLeft)
	}
	if !hasKind(f.activityKinds("rider-1"), models.ActivityRideJoined) {
		t.Fatal("expected ride_joined activity")
	}
	if f.publisher.count(events.ParticipationCreated) != 1 {
		t.Fatal("expected participation.created event")
	}
}

func TestJoinRideRejections(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 1, 1500)

	if _, err := f.participations.JoinRide(f.ctx, ride.ID, "owner-1", nil); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected owner join to be an authorization error, got %v", err)
	}

	f.join(ride.ID, "rider-1")
	if _, err := f.participations.JoinRide(f.ctx, ride.ID, "rider-1", nil); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected duplicate join to conflict, got %v", err)
	}

	tooMuch, zero, fine := int64(1501), int64(0), int64(750)
	if _, err := f.participations.JoinRide(f.ctx, ride.ID, "rider-2", &tooMuch); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected split above price to be rejected, got %v", err)
	}
	if _, err := f.participations.JoinRide(f.ctx, ride.ID, "rider-2", &zero); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected zero split to be rejected, got %v", err)
	}
	split, err := f.participations.JoinRide(f.ctx, ride.ID, "rider-2", &fine)
	if err != nil || split.AmountDue != 750 {
		t.Fatalf("expected split join, got %v %v", split, err)
	}
}

func TestJoinFullRideNeverCreatesParticipation(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 1, 1500)
	p := f.join(ride.ID, "rider-1")
	if _, err := f.reconciler.MarkPaid(f.ctx, p.ID, "pi_1", 1500); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	_, err := f.participations.JoinRide(f.ctx, ride.ID, "rider-2", nil)
	if !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error on full ride, got %v", err)
	}

	all, err := f.participations.ListByRide(f.ctx, ride.ID, models.Principal{UserID: "owner-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected only the paid participation, got %d", len(all))
	}
}

func TestJoinInactiveRide(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1500)
	if _, err := f.rides.CancelRide(f.ctx, ride.ID, "owner-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.participations.JoinRide(f.ctx, ride.ID, "rider-1", nil); !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestLeaveRide(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1500)
	p := f.join(ride.ID, "rider-1")

	if _, err := f.participations.LeaveRide(f.ctx, p.ID, "rider-2"); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	left, err := f.participations.LeaveRide(f.ctx, p.ID, "rider-1")
	if err != nil || left.Status != models.ParticipationStatusCancelled {
		t.Fatalf("expected cancelled participation, got %v %v", left, err)
	}
	if _, err := f.participations.LeaveRide(f.ctx, p.ID, "rider-1"); !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error leaving twice, got %v", err)
	}

	paid := f.join(ride.ID, "rider-1")
	if _, err := f.reconciler.MarkPaid(f.ctx, paid.ID, "pi_1", 1500); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if _, err := f.participations.LeaveRide(f.ctx, paid.ID, "rider-1"); !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error leaving a paid participation, got %v", err)
	}
}

func TestListByRideRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1500)
	f.join(ride.ID, "rider-1")

	if _, err := f.participations.ListByRide(f.ctx, ride.ID, models.Principal{UserID: "rider-1"}); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	admin := models.Principal{UserID: "ops", UserType: models.UserTypeAdmin}
	if list, err := f.participations.ListByRide(f.ctx, ride.ID, admin); err != nil || len(list) != 1 {
		t.Fatalf("expected admin to list participants, got %v %v", list, err)
	}
}

func TestReleaseStalePending(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 3, 1500)

	stale := f.join(ride.ID, "rider-1")
	paid := f.join(ride.ID, "rider-2")
	if _, err := f.reconciler.MarkPaid(f.ctx, paid.ID, "pi_2", 1500); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	f.clock.Advance(45 * time.Minute)
	fresh := f.join(ride.ID, "rider-3")

	released, err := f.participations.ReleaseStalePending(f.ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 release, got %d", released)
	}

	if got := f.participation(stale.ID); got.Status != models.ParticipationStatusCancelled {
		t.Fatalf("expected stale participation to be cancelled, got %s", got.Status)
	}
	if got := f.participation(paid.ID); got.Status != models.ParticipationStatusPaid {
		t.Fatalf("paid participation changed to %s", got.Status)
	}
	if got := f.participation(fresh.ID); got.Status != models.ParticipationStatusPending {
		t.Fatalf("fresh participation changed to %s", got.Status)
	}
	if !hasKind(f.activityKinds("rider-1"), models.ActivityParticipationReleased) {
		t.Fatal("expected participation_released activity")
	}

	again, _ := f.participations.ReleaseStalePending(f.ctx, 30*time.Minute)
	if again != 0 {
		t.Fatalf("expected second sweep to release nothing, got %d", again)
	}
}

func TestAuthorizeRideAccess(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1500)
	f.join(ride.ID, "rider-1")

	if err := f.participations.AuthorizeRideAccess(f.ctx, ride.ID, "owner-1"); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	if err := f.participations.AuthorizeRideAccess(f.ctx, ride.ID, "rider-1"); err != nil {
		t.Fatalf("participant denied: %v", err)
	}
	if err := f.participations.AuthorizeRideAccess(f.ctx, ride.ID, "stranger"); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected stranger to be denied, got %v", err)
	}
}

func TestSweeperRunOnce(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1500)
	f.join(ride.ID, "rider-1")
	f.clock.Advance(time.Hour)

	sweeper := NewSweeper(f.participations, 30*time.Minute, time.Minute, nil)
	released, err := sweeper.RunOnce(f.ctx)
	if err != nil || released != 1 {
		t.Fatalf("expected one release, got %d %v", released, err)
	}
}

// unindexedParticipations accepts every insert, like a collection created
// without the active_key unique index.
type unindexedParticipations struct {
	interfaces.ParticipationRepository
	inserts int
}

func (r *unindexedParticipations) Create(ctx context.Context, participation *models.Participation) error {
	r.inserts++
	if err := r.ParticipationRepository.Create(ctx, participation); err != nil && !apperr.Is(err, apperr.KindConflict) {
		return err
	}
	return nil
}

func TestJoinRideRejectsSecondActiveJoinWithoutIndex(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 3, 1000)
	repo := &unindexedParticipations{ParticipationRepository: f.store.Participations()}
	participations := NewParticipationService(f.store.Rides(), repo, f.activity, f.publisher, f.clock.Now, logger.Discard())

	if _, err := participations.JoinRide(f.ctx, ride.ID, "rider-1", nil); err != nil {
		t.Fatalf("first join: %v", err)
	}
	_, err := participations.JoinRide(f.ctx, ride.ID, "rider-1", nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on second join, got %v", err)
	}
	if repo.inserts != 1 {
		t.Fatalf("second join reached the repository, inserts=%d", repo.inserts)
	}
}

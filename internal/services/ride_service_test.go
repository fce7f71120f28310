package services

import (
	"testing"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/utils"
	"carpool/pkg/events"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCreateRideValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(in *CreateRideInput)
		field  string
	}{
		{"zero seats", func(in *CreateRideInput) { in.TotalSeats = 0 }, "total_seats"},
		{"zero price", func(in *CreateRideInput) { in.PricePerSeat = 0 }, "price_per_seat"},
		{"past departure", func(in *CreateRideInput) { in.DepartureTime = f.clock.Now().Add(-time.Minute) }, "departure_time"},
		{"departure now", func(in *CreateRideInput) { in.DepartureTime = f.clock.Now() }, "departure_time"},
		{"blank origin", func(in *CreateRideInput) { in.Origin = "  " }, "origin"},
		{"unknown currency", func(in *CreateRideInput) { in.Currency = "xyz" }, "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.rideInput(3, 1000)
			tt.mutate(in)

			_, err := f.rides.CreateRide(f.ctx, "owner-1", in)
			appErr, ok := apperr.As(err)
			if !ok || appErr.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := appErr.Details[tt.field]; !ok {
				t.Fatalf("expected detail for %s, got %v", tt.field, appErr.Details)
			}
		})
	}
}

func TestCreateRideInitialState(t *testing.T) {
	f := newFixture(t)

	ride := f.createRide("owner-1", 3, 1250)

	if ride.SeatsLeft != 3 || ride.Status != models.RideStatusActive {
		t.Fatalf("unexpected initial state %+v", ride)
	}
	if len(ride.RideCode) != utils.RideCodeLength {
		t.Fatalf("unexpected ride code %q", ride.RideCode)
	}
	if ride.Currency != "usd" {
		t.Fatalf("expected default currency, got %q", ride.Currency)
	}
	if !hasKind(f.activityKinds("owner-1"), models.ActivityRideCreated) {
		t.Fatal("expected ride_created activity")
	}
	if f.publisher.count(events.RideCreated) != 1 {
		t.Fatal("expected ride.created event")
	}
}

func TestListActiveFiltersAndSorts(t *testing.T) {
	f := newFixture(t)

	cheap := f.createRide("owner-1", 2, 500)
	pricey := f.createRide("owner-2", 4, 900)
	tiedA := f.createRide("owner-3", 1, 700)
	tiedB := f.createRide("owner-4", 3, 700)

	cancelled := f.createRide("owner-1", 2, 100)
	if _, err := f.rides.CancelRide(f.ctx, cancelled.ID, "owner-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	full := f.createRide("owner-5", 1, 100)
	if _, err := f.store.Rides().DecrementSeat(f.ctx, full.ID); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	rides, err := f.rides.ListActive(f.ctx, &models.RideFilter{Sort: models.RideSortPriceLow})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rides) != 4 {
		t.Fatalf("expected 4 listed rides, got %d", len(rides))
	}

	firstTied, secondTied := tiedA, tiedB
	if tiedB.ID.Hex() < tiedA.ID.Hex() {
		firstTied, secondTied = tiedB, tiedA
	}
	want := []primitive.ObjectID{cheap.ID, firstTied.ID, secondTied.ID, pricey.ID}
	for i, id := range want {
		if rides[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id.Hex(), rides[i].ID.Hex())
		}
	}

	bySeats, _ := f.rides.ListActive(f.ctx, &models.RideFilter{Sort: models.RideSortSeats})
	if bySeats[0].ID != pricey.ID {
		t.Fatalf("expected ride with most seats first, got %s", bySeats[0].ID.Hex())
	}

	filtered, _ := f.rides.ListActive(f.ctx, &models.RideFilter{Origin: "oak", Destination: "FRANCISCO"})
	if len(filtered) != 4 {
		t.Fatalf("expected case-insensitive substring match, got %d", len(filtered))
	}
	none, _ := f.rides.ListActive(f.ctx, &models.RideFilter{Origin: "Seattle"})
	if len(none) != 0 {
		t.Fatalf("expected no match, got %d", len(none))
	}
}

func TestSortRidesIsStableOnTies(t *testing.T) {
	departure := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	a := &models.Ride{ID: primitive.NewObjectID(), PricePerSeat: 100, DepartureTime: departure}
	b := &models.Ride{ID: primitive.NewObjectID(), PricePerSeat: 100, DepartureTime: departure}
	c := &models.Ride{ID: primitive.NewObjectID(), PricePerSeat: 50, DepartureTime: departure.Add(time.Hour)}

	for _, by := range []models.RideSort{models.RideSortPriceHigh, models.RideSortDeparture, ""} {
		forward := []*models.Ride{a, b, c}
		backward := []*models.Ride{c, b, a}
		SortRides(forward, by)
		SortRides(backward, by)
		for i := range forward {
			if forward[i].ID != backward[i].ID {
				t.Fatalf("sort %q depends on input order", by)
			}
		}
		if forward[0].ID != a.ID || forward[1].ID != b.ID {
			t.Fatalf("sort %q did not break the tie by id", by)
		}
	}
}

func TestCancelRideAuthorizationAndState(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1000)

	_, err := f.rides.CancelRide(f.ctx, ride.ID, "intruder")
	if !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	cancelled, err := f.rides.CancelRide(f.ctx, ride.ID, "owner-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.RideStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled ride %+v", cancelled)
	}

	_, err = f.rides.CancelRide(f.ctx, ride.ID, "owner-1")
	if !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error on second cancel, got %v", err)
	}
	_, err = f.rides.CompleteRide(f.ctx, ride.ID, "owner-1")
	if !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error completing a cancelled ride, got %v", err)
	}
	if !hasKind(f.activityKinds("owner-1"), models.ActivityRideCancelled) {
		t.Fatal("expected ride_cancelled activity")
	}
}

func TestCompleteRide(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1000)

	completed, err := f.rides.CompleteRide(f.ctx, ride.ID, "owner-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.RideStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("unexpected completed ride %+v", completed)
	}
	if f.publisher.count(events.RideCompleted) != 1 {
		t.Fatal("expected ride.completed event")
	}
}

func TestUpdateRide(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide("owner-1", 2, 1000)

	title := "Evening commute"
	if _, err := f.rides.UpdateRide(f.ctx, ride.ID, "intruder", &models.RideDetailsUpdate{Title: &title}); !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := f.rides.UpdateRide(f.ctx, ride.ID, "owner-1", &models.RideDetailsUpdate{}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}
	past := f.clock.Now().Add(-time.Hour)
	if _, err := f.rides.UpdateRide(f.ctx, ride.ID, "owner-1", &models.RideDetailsUpdate{DepartureTime: &past}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for past departure, got %v", err)
	}

	updated, err := f.rides.UpdateRide(f.ctx, ride.ID, "owner-1", &models.RideDetailsUpdate{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.SeatsLeft != 2 || updated.PricePerSeat != 1000 {
		t.Fatalf("unexpected updated ride %+v", updated)
	}

	if _, err := f.rides.CancelRide(f.ctx, ride.ID, "owner-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.rides.UpdateRide(f.ctx, ride.ID, "owner-1", &models.RideDetailsUpdate{Title: &title}); !apperr.Is(err, apperr.KindState) {
		t.Fatalf("expected state error on cancelled ride, got %v", err)
	}
}

func TestListJoinedExcludesOwnAndLeftRides(t *testing.T) {
	f := newFixture(t)
	mine := f.createRide("owner-1", 2, 1000)
	other := f.createRide("owner-2", 2, 1000)
	left := f.createRide("owner-3", 2, 1000)

	f.join(other.ID, "owner-1")
	p := f.join(left.ID, "owner-1")
	if _, err := f.participations.LeaveRide(f.ctx, p.ID, "owner-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	owned, err := f.rides.ListOwned(f.ctx, "owner-1")
	if err != nil || len(owned) != 1 || owned[0].ID != mine.ID {
		t.Fatalf("unexpected owned rides %v %v", owned, err)
	}
	joined, err := f.rides.ListJoined(f.ctx, "owner-1")
	if err != nil || len(joined) != 1 || joined[0].ID != other.ID {
		t.Fatalf("unexpected joined rides %v %v", joined, err)
	}
}

func TestListOwnedAndJoined(t *testing.T) {
	f := newFixture(t)
	later := f.createRide("owner-1", 2, 1000)
	input := f.rideInput(2, 1000)
	input.DepartureTime = f.clock.Now().Add(2 * time.Hour)
	sooner, err := f.rides.CreateRide(f.ctx, "owner-1", input)
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	owned, err := f.rides.ListOwned(f.ctx, "owner-1")
	if err != nil {
		t.Fatalf("list owned: %v", err)
	}
	if len(owned) != 2 || owned[0].ID != sooner.ID || owned[1].ID != later.ID {
		t.Fatalf("expected owned rides by departure, got %v", rideIDs(owned))
	}

	f.join(later.ID, "rider-1")
	left := f.join(sooner.ID, "rider-1")
	if _, err := f.participations.LeaveRide(f.ctx, left.ID, "rider-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	joined, err := f.rides.ListJoined(f.ctx, "rider-1")
	if err != nil {
		t.Fatalf("list joined: %v", err)
	}
	if len(joined) != 1 || joined[0].ID != later.ID {
		t.Fatalf("expected only the ride still joined, got %v", rideIDs(joined))
	}

	if _, err := f.rides.CancelRide(f.ctx, later.ID, "owner-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if joined, _ := f.rides.ListJoined(f.ctx, "rider-1"); len(joined) != 0 {
		t.Fatalf("cancelled rides are not upcoming, got %v", rideIDs(joined))
	}
	if owned, _ := f.rides.ListOwned(f.ctx, "owner-1"); len(owned) != 1 || owned[0].ID != sooner.ID {
		t.Fatalf("expected one active owned ride, got %v", rideIDs(owned))
	}
	if joined, _ := f.rides.ListJoined(f.ctx, "nobody"); joined == nil {
		t.Fatal("expected empty slice, not nil")
	}
}

func rideIDs(rides []*models.Ride) []string {
	ids := make([]string, 0, len(rides))
	for _, r := range rides {
		ids = append(ids, r.ID.Hex())
	}
	return ids
}

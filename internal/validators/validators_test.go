package validators

import (
	"testing"
	"time"

	"carpool/internal/apperr"
)

func TestValidateCreateRide(t *testing.T) {
	valid := &CreateRideRequest{
		Origin:        "Oakland",
		Destination:   "Tahoe",
		DepartureTime: time.Now().Add(time.Hour),
		TotalSeats:    4,
		PricePerSeat:  2500,
		Currency:      "usd",
	}
	if err := ValidateCreateRide(valid); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	invalid := *valid
	invalid.TotalSeats = 0
	invalid.PricePerSeat = -1
	invalid.Origin = "   "
	invalid.Currency = "xyz"

	err := ValidateCreateRide(&invalid)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	for _, field := range []string{"total_seats", "price_per_seat", "origin", "currency"} {
		if _, ok := appErr.Details[field]; !ok {
			t.Errorf("missing detail for %s: %v", field, appErr.Details)
		}
	}
}

func TestDecodeUpdateRideRejectsImmutableFields(t *testing.T) {
	_, err := DecodeUpdateRide([]byte(`{"title":"new","seats_left":9,"price_per_seat":1}`))
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindValidation {
		t.Fatalf("err = %v", err)
	}
	if _, ok := appErr.Details["seats_left"]; !ok {
		t.Errorf("details = %v", appErr.Details)
	}
	if _, ok := appErr.Details["price_per_seat"]; !ok {
		t.Errorf("details = %v", appErr.Details)
	}
}

func TestDecodeUpdateRideAcceptsEditableFields(t *testing.T) {
	req, err := DecodeUpdateRide([]byte(`{"title":"Ski trip","origin":"  SF  "}`))
	if err != nil {
		t.Fatalf("DecodeUpdateRide: %v", err)
	}
	update := req.ToUpdate()
	if *update.Title != "Ski trip" || *update.Origin != "SF" || update.Destination != nil {
		t.Errorf("update = %+v", update)
	}
}

func TestDecodeUpdateRideEmpty(t *testing.T) {
	if _, err := DecodeUpdateRide([]byte(`{}`)); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestAppendActivityRestrictsKinds(t *testing.T) {
	if errs := ValidateStruct(&AppendActivityRequest{Action: "payment_completed"}); len(errs) == 0 {
		t.Fatal("server-only action accepted")
	}
	if errs := ValidateStruct(&AppendActivityRequest{Action: "ride_viewed"}); len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
}

func TestParseObjectID(t *testing.T) {
	if _, err := ParseObjectID("id", "nope"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v", err)
	}
}

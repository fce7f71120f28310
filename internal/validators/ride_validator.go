package validators

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/utils"
)

type CreateRideRequest struct {
	Title         string    `json:"title" validate:"omitempty,max=120"`
	Origin        string    `json:"origin" validate:"required,not_blank,max=200"`
	Destination   string    `json:"destination" validate:"required,not_blank,max=200"`
	DepartureTime time.Time `json:"departure_time" validate:"required"`
	TotalSeats    int       `json:"total_seats" validate:"required,min=1,max=8"`
	PricePerSeat  int64     `json:"price_per_seat" validate:"required,gt=0"`
	Currency      string    `json:"currency" validate:"omitempty,currency_code"`
}

// UpdateRideRequest carries the editable fields. Seat counts, price and
// status are immutable through this path.
type UpdateRideRequest struct {
	Title         *string    `json:"title" validate:"omitempty,max=120"`
	Origin        *string    `json:"origin" validate:"omitempty,not_blank,max=200"`
	Destination   *string    `json:"destination" validate:"omitempty,not_blank,max=200"`
	DepartureTime *time.Time `json:"departure_time" validate:"omitempty"`
}

// immutableRideFields may never be changed by an update.
var immutableRideFields = []string{
	"total_seats", "seats_left", "price_per_seat", "currency", "status",
	"owner_id", "ride_code", "needs_reconciliation", "reconciliation_reasons",
}

type JoinRideRequest struct {
	SplitAmount *int64 `json:"split_amount" validate:"omitempty,gt=0"`
}

type MarkPaidRequest struct {
	PaymentReference string `json:"payment_reference" validate:"required,not_blank,max=255"`
	Amount           int64  `json:"amount" validate:"required,gt=0"`
}

type AppendActivityRequest struct {
	Action   string                 `json:"action" validate:"required,oneof=ride_viewed ride_searched chat_joined"`
	RideID   string                 `json:"ride_id" validate:"omitempty,object_id"`
	Metadata map[string]interface{} `json:"meta"`
}

type PostMessageRequest struct {
	Content string `json:"content" validate:"required,not_blank,max=1000"`
}

type ListRidesQuery struct {
	Origin      string `form:"origin" json:"origin" validate:"omitempty,max=200"`
	Destination string `form:"destination" json:"destination" validate:"omitempty,max=200"`
	Sort        string `form:"sort" json:"sort" validate:"omitempty,oneof=price_low price_high seats departure"`
}

func (q *ListRidesQuery) Filter() *models.RideFilter {
	return &models.RideFilter{
		Origin:      strings.TrimSpace(q.Origin),
		Destination: strings.TrimSpace(q.Destination),
		Sort:        models.RideSort(q.Sort),
	}
}

func ValidateCreateRide(req *CreateRideRequest) error {
	return ValidateStruct(req).AsAppError()
}

// DecodeUpdateRide parses a PATCH body, rejecting immutable fields and
// unknown keys before struct validation.
func DecodeUpdateRide(body []byte) (*UpdateRideRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperr.Validation("INVALID_BODY", "request body must be a JSON object")
	}

	details := map[string]string{}
	for _, field := range immutableRideFields {
		if _, ok := raw[field]; ok {
			details[field] = field + " cannot be changed"
		}
	}
	allowed := map[string]bool{"title": true, "origin": true, "destination": true, "departure_time": true}
	var unknown []string
	for key := range raw {
		if _, flagged := details[key]; !flagged && !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		details[key] = "unknown field"
	}
	if len(details) > 0 {
		return nil, apperr.ValidationWithDetails(utils.ErrValidationFailed, details)
	}

	var req UpdateRideRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.Validation("INVALID_BODY", err.Error())
	}
	if err := ValidateStruct(&req).AsAppError(); err != nil {
		return nil, err
	}
	if req.Title == nil && req.Origin == nil && req.Destination == nil && req.DepartureTime == nil {
		return nil, apperr.Validation("EMPTY_UPDATE", "no editable fields supplied")
	}
	return &req, nil
}

func (r *UpdateRideRequest) ToUpdate() *models.RideDetailsUpdate {
	update := &models.RideDetailsUpdate{
		Title:         r.Title,
		Origin:        trimmed(r.Origin),
		Destination:   trimmed(r.Destination),
		DepartureTime: r.DepartureTime,
	}
	return update
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/config"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/events"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// rideCodeAttempts bounds regeneration when a ride code collides.
const rideCodeAttempts = 3

type RideService interface {
	// Ride lifecycle
	CreateRide(ctx context.Context, ownerID string, input *CreateRideInput) (*models.Ride, error)
	GetRide(ctx context.Context, rideID primitive.ObjectID) (*models.Ride, error)
	UpdateRide(ctx context.Context, rideID primitive.ObjectID, actorID string, update *models.RideDetailsUpdate) (*models.Ride, error)
	CancelRide(ctx context.Context, rideID primitive.ObjectID, actorID string) (*models.Ride, error)
	CompleteRide(ctx context.Context, rideID primitive.ObjectID, actorID string) (*models.Ride, error)

	// Listings
	ListActive(ctx context.Context, filter *models.RideFilter) ([]*models.Ride, error)
	ListOwned(ctx context.Context, ownerID string) ([]*models.Ride, error)
	ListJoined(ctx context.Context, userID string) ([]*models.Ride, error)
}

type CreateRideInput struct {
	Title         string
	Origin        string
	Destination   string
	DepartureTime time.Time
	TotalSeats    int
	PricePerSeat  int64
	Currency      string
}

type rideService struct {
	rideRepo          interfaces.RideRepository
	participationRepo interfaces.ParticipationRepository
	activity          ActivityService
	notifier          notifier
	defaultCurrency   string
	now               Clock
	log               *logger.Logger
}

func NewRideService(
	rideRepo interfaces.RideRepository,
	participationRepo interfaces.ParticipationRepository,
	activity ActivityService,
	publisher events.Publisher,
	policy *config.RidePolicyConfig,
	clock Clock,
	log *logger.Logger,
) RideService {
	currency := "usd"
	if policy != nil && policy.DefaultCurrency != "" {
		currency = utils.NormalizeCurrency(policy.DefaultCurrency)
	}
	log = logOrDiscard(log)
	return &rideService{
		rideRepo:          rideRepo,
		participationRepo: participationRepo,
		activity:          activity,
		notifier:          newNotifier(publisher, log),
		defaultCurrency:   currency,
		now:               clockOrDefault(clock),
		log:               log,
	}
}

func (s *rideService) CreateRide(ctx context.Context, ownerID string, input *CreateRideInput) (*models.Ride, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	currency := s.defaultCurrency
	if input.Currency != "" {
		currency = utils.NormalizeCurrency(input.Currency)
	}

	ride := &models.Ride{
		OwnerID:       ownerID,
		Title:         strings.TrimSpace(input.Title),
		Origin:        strings.TrimSpace(input.Origin),
		Destination:   strings.TrimSpace(input.Destination),
		DepartureTime: input.DepartureTime.UTC(),
		TotalSeats:    input.TotalSeats,
		SeatsLeft:     input.TotalSeats,
		PricePerSeat:  input.PricePerSeat,
		Currency:      currency,
		Status:        models.RideStatusActive,
	}
	if ride.Title == "" {
		ride.Title = ride.Origin + " to " + ride.Destination
	}

	var err error
	for attempt := 0; attempt < rideCodeAttempts; attempt++ {
		ride.ID = primitive.NilObjectID
		ride.RideCode = utils.GenerateRideCode()
		err = s.rideRepo.Create(ctx, ride)
		if !apperr.Is(err, apperr.KindConflict) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create ride: %w", err)
	}

	s.log.LogRideEvent(ride.ID, "created", map[string]interface{}{
		"owner_id":    ownerID,
		"total_seats": ride.TotalSeats,
		"ride_code":   ride.RideCode,
	})
	recordActivity(ctx, s.activity, s.log, ownerID, rideRef(ride.ID), models.ActivityRideCreated, map[string]interface{}{
		"ride_code": ride.RideCode,
	})
	s.notifier.publish(ctx, events.RideCreated, ride.ID, ownerID, ride)
	return ride, nil
}

func (s *rideService) validateCreate(input *CreateRideInput) error {
	if input == nil {
		return apperr.Validation("MISSING_RIDE", "ride details are required")
	}
	details := make(map[string]string)
	if input.TotalSeats < 1 || input.TotalSeats > utils.MaxTotalSeats {
		details["total_seats"] = fmt.Sprintf("must be between 1 and %d", utils.MaxTotalSeats)
	}
	if input.PricePerSeat <= 0 {
		details["price_per_seat"] = "must be greater than zero"
	}
	if !input.DepartureTime.After(s.now()) {
		details["departure_time"] = "must be in the future"
	}
	if strings.TrimSpace(input.Origin) == "" {
		details["origin"] = "is required"
	}
	if strings.TrimSpace(input.Destination) == "" {
		details["destination"] = "is required"
	}
	if input.Currency != "" && !utils.IsSupportedCurrency(input.Currency) {
		details["currency"] = "is not supported"
	}
	if len(details) > 0 {
		return apperr.ValidationWithDetails(utils.ErrValidationFailed, details)
	}
	return nil
}

func (s *rideService) GetRide(ctx context.Context, rideID primitive.ObjectID) (*models.Ride, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	return ride, nil
}

// ownedRide loads the ride and checks the actor owns it.
func (s *rideService) ownedRide(ctx context.Context, rideID primitive.ObjectID, actorID string) (*models.Ride, error) {
	ride, err := s.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ride.IsOwnedBy(actorID) {
		return nil, apperr.Authorization("NOT_RIDE_OWNER", "only the ride owner can do this")
	}
	return ride, nil
}

func (s *rideService) UpdateRide(ctx context.Context, rideID primitive.ObjectID, actorID string, update *models.RideDetailsUpdate) (*models.Ride, error) {
	if update == nil || update.IsEmpty() {
		return nil, apperr.Validation("EMPTY_UPDATE", "no editable fields supplied")
	}
	details := make(map[string]string)
	if update.Origin != nil && strings.TrimSpace(*update.Origin) == "" {
		details["origin"] = "cannot be blank"
	}
	if update.Destination != nil && strings.TrimSpace(*update.Destination) == "" {
		details["destination"] = "cannot be blank"
	}
	if update.DepartureTime != nil && !update.DepartureTime.After(s.now()) {
		details["departure_time"] = "must be in the future"
	}
	if len(details) > 0 {
		return nil, apperr.ValidationWithDetails(utils.ErrValidationFailed, details)
	}

	ride, err := s.ownedRide(ctx, rideID, actorID)
	if err != nil {
		return nil, err
	}
	if !ride.IsActive() {
		return nil, apperr.State("RIDE_NOT_ACTIVE", "ride is "+string(ride.Status))
	}

	updated, err := s.rideRepo.UpdateDetails(ctx, rideID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update ride: %w", err)
	}

	recordActivity(ctx, s.activity, s.log, actorID, rideRef(rideID), models.ActivityRideUpdated, nil)
	s.notifier.publish(ctx, events.RideUpdated, rideID, actorID, updated)
	return updated, nil
}

func (s *rideService) CancelRide(ctx context.Context, rideID primitive.ObjectID, actorID string) (*models.Ride, error) {
	return s.finish(ctx, rideID, actorID, models.RideStatusCancelled)
}

func (s *rideService) CompleteRide(ctx context.Context, rideID primitive.ObjectID, actorID string) (*models.Ride, error) {
	return s.finish(ctx, rideID, actorID, models.RideStatusCompleted)
}

// finish moves an active ride to a terminal status.
func (s *rideService) finish(ctx context.Context, rideID primitive.ObjectID, actorID string, to models.RideStatus) (*models.Ride, error) {
	ride, err := s.ownedRide(ctx, rideID, actorID)
	if err != nil {
		return nil, err
	}
	if !ride.IsActive() {
		return nil, apperr.State("RIDE_NOT_ACTIVE", "ride is already "+string(ride.Status))
	}

	updated, err := s.rideRepo.TransitionStatus(ctx, rideID, models.RideStatusActive, to)
	if err != nil {
		return nil, fmt.Errorf("failed to change ride status: %w", err)
	}

	kind, eventType := models.ActivityRideCancelled, events.RideCancelled
	if to == models.RideStatusCompleted {
		kind, eventType = models.ActivityRideCompleted, events.RideCompleted
	}

	s.log.LogRideEvent(rideID, string(to), map[string]interface{}{"actor_id": actorID})
	recordActivity(ctx, s.activity, s.log, actorID, rideRef(rideID), kind, nil)
	s.notifier.publish(ctx, eventType, rideID, actorID, updated)
	return updated, nil
}

func (s *rideService) ListActive(ctx context.Context, filter *models.RideFilter) ([]*models.Ride, error) {
	if filter == nil {
		filter = &models.RideFilter{}
	}
	rides, err := s.rideRepo.ListActive(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	SortRides(rides, filter.Sort)
	return rides, nil
}

func (s *rideService) ListOwned(ctx context.Context, ownerID string) ([]*models.Ride, error) {
	rides, err := s.rideRepo.ListByOwner(ctx, ownerID, models.RideStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned rides: %w", err)
	}
	SortRides(rides, models.RideSortDeparture)
	return rides, nil
}

func (s *rideService) ListJoined(ctx context.Context, userID string) ([]*models.Ride, error) {
	participations, err := s.participationRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	if len(participations) == 0 {
		return []*models.Ride{}, nil
	}

	ids := make([]primitive.ObjectID, 0, len(participations))
	for _, p := range participations {
		ids = append(ids, p.RideID)
	}
	rides, err := s.rideRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load joined rides: %w", err)
	}

	active := rides[:0]
	for _, ride := range rides {
		if ride.IsActive() {
			active = append(active, ride)
		}
	}
	SortRides(active, models.RideSortDeparture)
	return active, nil
}

// SortRides orders rides in place. Unknown or empty sort keys fall back to
// departure time. Ties are broken by id so the order is deterministic.
func SortRides(rides []*models.Ride, by models.RideSort) {
	var less func(a, b *models.Ride) bool
	switch by {
	case models.RideSortPriceLow:
		less = func(a, b *models.Ride) bool { return a.PricePerSeat < b.PricePerSeat }
	case models.RideSortPriceHigh:
		less = func(a, b *models.Ride) bool { return a.PricePerSeat > b.PricePerSeat }
	case models.RideSortSeats:
		less = func(a, b *models.Ride) bool { return a.SeatsLeft > b.SeatsLeft }
	default:
		less = func(a, b *models.Ride) bool { return a.DepartureTime.Before(b.DepartureTime) }
	}

	sort.SliceStable(rides, func(i, j int) bool {
		a, b := rides[i], rides[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.ID.Hex() < b.ID.Hex()
	})
}

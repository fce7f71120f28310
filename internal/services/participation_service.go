package services

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/pkg/events"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ParticipationService interface {
	// JoinRide books a pending, unpaid seat claim. Seats are only taken off
	// the inventory once the payment is reconciled.
	JoinRide(ctx context.Context, rideID primitive.ObjectID, userID string, splitAmount *int64) (*models.Participation, error)
	LeaveRide(ctx context.Context, participationID primitive.ObjectID, userID string) (*models.Participation, error)
	GetParticipation(ctx context.Context, participationID primitive.ObjectID) (*models.Participation, error)
	ListByRide(ctx context.Context, rideID primitive.ObjectID, actor models.Principal) ([]*models.Participation, error)

	// ReleaseStalePending cancels unpaid pending participations created more
	// than ttl ago and returns how many were released.
	ReleaseStalePending(ctx context.Context, ttl time.Duration) (int, error)

	// AuthorizeRideAccess succeeds for the ride owner and for users holding a
	// non-cancelled participation.
	AuthorizeRideAccess(ctx context.Context, rideID primitive.ObjectID, userID string) error
}

type participationService struct {
	rideRepo          interfaces.RideRepository
	participationRepo interfaces.ParticipationRepository
	activity          ActivityService
	notifier          notifier
	now               Clock
	log               *logger.Logger
}

func NewParticipationService(
	rideRepo interfaces.RideRepository,
	participationRepo interfaces.ParticipationRepository,
	activity ActivityService,
	publisher events.Publisher,
	clock Clock,
	log *logger.Logger,
) ParticipationService {
	log = logOrDiscard(log)
	return &participationService{
		rideRepo:          rideRepo,
		participationRepo: participationRepo,
		activity:          activity,
		notifier:          newNotifier(publisher, log),
		now:               clockOrDefault(clock),
		log:               log,
	}
}

func (s *participationService) JoinRide(ctx context.Context, rideID primitive.ObjectID, userID string, splitAmount *int64) (*models.Participation, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	if !ride.IsActive() {
		return nil, apperr.State("RIDE_NOT_ACTIVE", "ride is "+string(ride.Status))
	}
	if ride.SeatsLeft <= 0 {
		return nil, apperr.State("RIDE_FULL", "ride has no seats left")
	}
	if ride.IsOwnedBy(userID) {
		return nil, apperr.Authorization("OWNER_CANNOT_JOIN", "ride owners cannot join their own ride")
	}
	if _, err := s.participationRepo.GetActive(ctx, rideID, userID); err == nil {
		return nil, apperr.Conflict("ALREADY_JOINED", "user already has an active participation for this ride")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, fmt.Errorf("failed to check existing participation: %w", err)
	}

	amountDue := ride.PricePerSeat
	if splitAmount != nil {
		if *splitAmount <= 0 || *splitAmount > ride.PricePerSeat {
			return nil, apperr.ValidationWithDetails("Invalid split amount", map[string]string{
				"split_amount": fmt.Sprintf("must be greater than zero and at most %d", ride.PricePerSeat),
			})
		}
		amountDue = *splitAmount
	}

	participation := &models.Participation{
		RideID:    rideID,
		UserID:    userID,
		AmountDue: amountDue,
		Status:    models.ParticipationStatusPending,
	}
	if err := s.participationRepo.Create(ctx, participation); err != nil {
		return nil, fmt.Errorf("failed to create participation: %w", err)
	}

	recordActivity(ctx, s.activity, s.log, userID, rideRef(rideID), models.ActivityRideJoined, map[string]interface{}{
		"participation_id": participation.ID.Hex(),
		"amount_due":       amountDue,
	})
	s.notifier.publish(ctx, events.ParticipationCreated, rideID, userID, participation)
	return participation, nil
}

func (s *participationService) LeaveRide(ctx context.Context, participationID primitive.ObjectID, userID string) (*models.Participation, error) {
	participation, err := s.GetParticipation(ctx, participationID)
	if err != nil {
		return nil, err
	}
	if participation.UserID != userID {
		return nil, apperr.Authorization("NOT_PARTICIPANT", "participation belongs to another user")
	}
	if participation.Paid {
		return nil, apperr.State("PARTICIPATION_PAID", "paid participations cannot be cancelled")
	}
	if participation.IsCancelled() {
		return nil, apperr.State("PARTICIPATION_CANCELLED", "participation is already cancelled")
	}

	cancelled, err := s.participationRepo.Cancel(ctx, participationID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel participation: %w", err)
	}

	recordActivity(ctx, s.activity, s.log, userID, rideRef(cancelled.RideID), models.ActivityRideLeft, map[string]interface{}{
		"participation_id": cancelled.ID.Hex(),
	})
	s.notifier.publish(ctx, events.ParticipationReleased, cancelled.RideID, userID, cancelled)
	return cancelled, nil
}

func (s *participationService) GetParticipation(ctx context.Context, participationID primitive.ObjectID) (*models.Participation, error) {
	participation, err := s.participationRepo.GetByID(ctx, participationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	return participation, nil
}

func (s *participationService) ListByRide(ctx context.Context, rideID primitive.ObjectID, actor models.Principal) ([]*models.Participation, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	if !ride.IsOwnedBy(actor.UserID) && !actor.IsPrivileged() {
		return nil, apperr.Authorization("NOT_RIDE_OWNER", "only the ride owner can list participants")
	}

	participations, err := s.participationRepo.ListByRide(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	return participations, nil
}

func (s *participationService) ReleaseStalePending(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, apperr.Validation("INVALID_TTL", "pending ttl must be positive")
	}

	stale, err := s.participationRepo.ListStalePending(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale participations: %w", err)
	}

	released := 0
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		cancelled, err := s.participationRepo.Cancel(ctx, p.ID)
		if err != nil {
			// Paid or cancelled since the listing.
			if apperr.Is(err, apperr.KindState) {
				continue
			}
			return released, fmt.Errorf("failed to release participation %s: %w", p.ID.Hex(), err)
		}
		released++

		recordActivity(ctx, s.activity, s.log, cancelled.UserID, rideRef(cancelled.RideID), models.ActivityParticipationReleased, map[string]interface{}{
			"participation_id": cancelled.ID.Hex(),
			"ttl_seconds":      int64(ttl.Seconds()),
		})
		s.notifier.publish(ctx, events.ParticipationReleased, cancelled.RideID, cancelled.UserID, cancelled)
	}

	if released > 0 {
		s.log.WithField("released", released).Info("Released stale pending participations")
	}
	return released, nil
}

func (s *participationService) AuthorizeRideAccess(ctx context.Context, rideID primitive.ObjectID, userID string) error {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return fmt.Errorf("failed to get ride: %w", err)
	}
	if ride.IsOwnedBy(userID) {
		return nil
	}
	if _, err := s.participationRepo.GetActive(ctx, rideID, userID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Authorization("NOT_RIDE_MEMBER", "only the owner and participants can access this ride")
		}
		return fmt.Errorf("failed to check participation: %w", err)
	}
	return nil
}

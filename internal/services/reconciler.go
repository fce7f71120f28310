package services

import (
	"context"
	"fmt"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/pkg/events"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reconciler is the only writer of the unpaid to paid transition and the only
// caller of the seat decrement.
type Reconciler interface {
	MarkPaid(ctx context.Context, participationID primitive.ObjectID, reference string, amount int64) (*PaymentResult, error)
}

type PaymentResult struct {
	Participation *models.Participation `json:"participation"`
	Ride          *models.Ride          `json:"ride,omitempty"`
	// Replayed is true when the same payment had already been applied.
	Replayed bool `json:"replayed"`
}

type reconciler struct {
	rideRepo          interfaces.RideRepository
	participationRepo interfaces.ParticipationRepository
	activity          ActivityService
	notifier          notifier
	log               *logger.Logger
}

func NewReconciler(
	rideRepo interfaces.RideRepository,
	participationRepo interfaces.ParticipationRepository,
	activity ActivityService,
	publisher events.Publisher,
	log *logger.Logger,
) Reconciler {
	log = logOrDiscard(log)
	return &reconciler{
		rideRepo:          rideRepo,
		participationRepo: participationRepo,
		activity:          activity,
		notifier:          newNotifier(publisher, log),
		log:               log,
	}
}

func (r *reconciler) MarkPaid(ctx context.Context, participationID primitive.ObjectID, reference string, amount int64) (*PaymentResult, error) {
	if reference == "" {
		return nil, apperr.Validation("MISSING_REFERENCE", "payment reference is required")
	}

	participation, err := r.participationRepo.GetByID(ctx, participationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}

	if participation.Paid {
		return r.alreadyPaid(ctx, participation, reference)
	}

	if amount != participation.AmountDue {
		recordActivity(ctx, r.activity, r.log, participation.UserID, rideRef(participation.RideID), models.ActivityPaymentMismatch, map[string]interface{}{
			"participation_id":  participation.ID.Hex(),
			"payment_reference": reference,
			"amount_due":        participation.AmountDue,
			"amount_paid":       amount,
		})
		return nil, apperr.ValidationWithDetails("Payment amount does not match amount due", map[string]string{
			"amount": fmt.Sprintf("expected %d, got %d", participation.AmountDue, amount),
		})
	}

	ride, err := r.rideRepo.GetByID(ctx, participation.RideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}

	wasReleased := participation.IsCancelled()
	updated, applied, err := r.participationRepo.MarkPaid(ctx, participationID, reference, amount)
	if err != nil {
		if wasReleased && apperr.Is(err, apperr.KindConflict) {
			return r.detachedPayment(ctx, participation, ride, reference, amount)
		}
		return nil, fmt.Errorf("failed to mark participation paid: %w", err)
	}
	if !applied {
		// A concurrent call won the transition.
		return r.alreadyPaid(ctx, updated, reference)
	}

	r.log.LogPaymentEvent(updated.ID, "paid", amount, reference)
	recordActivity(ctx, r.activity, r.log, updated.UserID, rideRef(ride.ID), models.ActivityPaymentCompleted, map[string]interface{}{
		"participation_id":  updated.ID.Hex(),
		"payment_reference": reference,
		"amount":            amount,
		"reactivated":       wasReleased,
	})
	r.notifier.publish(ctx, events.ParticipationPaid, ride.ID, updated.UserID, updated)

	if !ride.IsActive() {
		r.flag(ctx, ride.ID, models.ReconciliationInactiveRide, updated)
		return nil, apperr.State("RIDE_NOT_ACTIVE", "payment recorded for a ride that is "+string(ride.Status))
	}

	seated, err := r.rideRepo.DecrementSeat(ctx, ride.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindCapacity) {
			r.flag(ctx, ride.ID, models.ReconciliationOversell, updated)
			recordActivity(ctx, r.activity, r.log, updated.UserID, rideRef(ride.ID), models.ActivityOversellDetected, map[string]interface{}{
				"participation_id":  updated.ID.Hex(),
				"payment_reference": reference,
			})
			return nil, apperr.Capacity("OVERSOLD", "payment recorded but no seat is left on the ride")
		}
		if apperr.Is(err, apperr.KindState) {
			// The ride left active after it was read above.
			r.flag(ctx, ride.ID, models.ReconciliationInactiveRide, updated)
			return nil, err
		}
		return nil, fmt.Errorf("failed to decrement seat: %w", err)
	}

	r.notifier.publish(ctx, events.RideUpdated, seated.ID, updated.UserID, seated)
	return &PaymentResult{Participation: updated, Ride: seated}, nil
}

// alreadyPaid treats a replay of the recorded payment as success and any
// other reference as a second payment.
func (r *reconciler) alreadyPaid(ctx context.Context, participation *models.Participation, reference string) (*PaymentResult, error) {
	if participation.PaymentReference == reference {
		return &PaymentResult{Participation: participation, Replayed: true}, nil
	}

	r.flag(ctx, participation.RideID, models.ReconciliationDuplicatePayment, participation)
	recordActivity(ctx, r.activity, r.log, participation.UserID, rideRef(participation.RideID), models.ActivityDuplicatePayment, map[string]interface{}{
		"participation_id":   participation.ID.Hex(),
		"payment_reference":  reference,
		"recorded_reference": participation.PaymentReference,
	})
	return nil, apperr.Conflict("DUPLICATE_PAYMENT", "participation was already paid with another reference")
}

// detachedPayment keeps the money on record when the released participation
// cannot be reactivated because the user joined the ride again.
func (r *reconciler) detachedPayment(ctx context.Context, participation *models.Participation, ride *models.Ride, reference string, amount int64) (*PaymentResult, error) {
	recorded, _, err := r.participationRepo.RecordDetachedPayment(ctx, participation.ID, reference, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to record detached payment: %w", err)
	}

	r.log.LogPaymentEvent(recorded.ID, "paid_detached", amount, reference)
	recordActivity(ctx, r.activity, r.log, recorded.UserID, rideRef(ride.ID), models.ActivityPaymentCompleted, map[string]interface{}{
		"participation_id":  recorded.ID.Hex(),
		"payment_reference": reference,
		"amount":            amount,
		"detached":          true,
	})
	r.flag(ctx, ride.ID, models.ReconciliationPaymentAfterRelease, recorded)
	return nil, apperr.Conflict("PAYMENT_AFTER_RELEASE", "payment recorded for a released participation while another one is active")
}

func (r *reconciler) flag(ctx context.Context, rideID primitive.ObjectID, reason models.ReconciliationReason, participation *models.Participation) {
	r.log.LogReconciliation(rideID, string(reason), map[string]interface{}{
		"participation_id": participation.ID.Hex(),
		"user_id":          participation.UserID,
	})
	if err := r.rideRepo.FlagReconciliation(ctx, rideID, reason); err != nil {
		r.log.WithContext(ctx).WithError(err).WithRideID(rideID).Error("Failed to flag ride for reconciliation")
	}
}

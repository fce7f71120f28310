package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carpool/internal/apperr"
	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/logger"
	"carpool/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CheckoutService interface {
	StartCheckout(ctx context.Context, participationID primitive.ObjectID, userID string) (*CheckoutResult, error)
	// HandleWebhook verifies and applies one gateway notification. Business
	// outcomes such as an oversell are acknowledged; only infrastructure
	// failures are returned so the gateway redelivers.
	HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*WebhookOutcome, error)
	VerifySession(ctx context.Context, sessionID string, actor models.Principal) (*SessionStatus, error)
}

type CheckoutOptions struct {
	DefaultProvider string
	SuccessURL      string
	CancelURL       string
}

type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Provider  string `json:"provider"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type WebhookOutcome struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
	// Result is "applied", "replayed" or the code of the recorded failure.
	Result string `json:"result,omitempty"`
}

type SessionStatus struct {
	SessionID     string                `json:"session_id"`
	Status        string                `json:"status"`
	Paid          bool                  `json:"paid"`
	Amount        int64                 `json:"amount"`
	Currency      string                `json:"currency"`
	RideID        primitive.ObjectID    `json:"ride_id"`
	RideCode      string                `json:"ride_code,omitempty"`
	Participation *models.Participation `json:"participation,omitempty"`
}

type checkoutService struct {
	rideRepo          interfaces.RideRepository
	participationRepo interfaces.ParticipationRepository
	paymentRepo       interfaces.PaymentRepository
	reconciler        Reconciler
	activity          ActivityService
	gateways          map[string]payment.Gateway
	dedup             Deduplicator
	options           CheckoutOptions
	now               Clock
	log               *logger.Logger
}

func NewCheckoutService(
	rideRepo interfaces.RideRepository,
	participationRepo interfaces.ParticipationRepository,
	paymentRepo interfaces.PaymentRepository,
	reconciler Reconciler,
	activity ActivityService,
	gateways []payment.Gateway,
	dedup Deduplicator,
	options CheckoutOptions,
	clock Clock,
	log *logger.Logger,
) CheckoutService {
	byName := make(map[string]payment.Gateway, len(gateways))
	for _, g := range gateways {
		byName[g.Name()] = g
	}
	if options.DefaultProvider == "" && len(gateways) > 0 {
		options.DefaultProvider = gateways[0].Name()
	}
	if dedup == nil {
		dedup = NewMemoryDeduplicator(24*time.Hour, clock)
	}
	return &checkoutService{
		rideRepo:          rideRepo,
		participationRepo: participationRepo,
		paymentRepo:       paymentRepo,
		reconciler:        reconciler,
		activity:          activity,
		gateways:          byName,
		dedup:             dedup,
		options:           options,
		now:               clockOrDefault(clock),
		log:               logOrDiscard(log),
	}
}

func (s *checkoutService) gateway(name string) (payment.Gateway, error) {
	g, ok := s.gateways[name]
	if !ok {
		return nil, apperr.NotFound("payment provider " + name)
	}
	return g, nil
}

func (s *checkoutService) StartCheckout(ctx context.Context, participationID primitive.ObjectID, userID string) (*CheckoutResult, error) {
	participation, err := s.participationRepo.GetByID(ctx, participationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	if participation.UserID != userID {
		return nil, apperr.Authorization("NOT_PARTICIPANT", "participation belongs to another user")
	}
	if participation.Paid {
		return nil, apperr.State("PARTICIPATION_PAID", "participation is already paid")
	}
	if participation.IsCancelled() {
		return nil, apperr.State("PARTICIPATION_CANCELLED", "participation was cancelled")
	}

	ride, err := s.rideRepo.GetByID(ctx, participation.RideID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ride: %w", err)
	}
	if !ride.IsActive() {
		return nil, apperr.State("RIDE_NOT_ACTIVE", "ride is "+string(ride.Status))
	}

	gateway, err := s.gateway(s.options.DefaultProvider)
	if err != nil {
		return nil, apperr.Unavailable("no payment provider configured", err)
	}

	session, err := gateway.CreateCheckout(ctx, &payment.CheckoutRequest{
		Amount:      participation.AmountDue,
		Currency:    ride.Currency,
		Description: fmt.Sprintf("Seat on %s (%s), %s", ride.Title, ride.RideCode, utils.FormatMinorUnits(participation.AmountDue, ride.Currency)),
		SuccessURL:  s.options.SuccessURL,
		CancelURL:   s.options.CancelURL,
		Metadata: map[string]string{
			payment.MetadataRideID:          ride.ID.Hex(),
			payment.MetadataUserID:          userID,
			payment.MetadataParticipationID: participation.ID.Hex(),
		},
	})
	if err != nil {
		return nil, apperr.Unavailable("payment provider unavailable", err)
	}

	transaction := &models.PaymentTransaction{
		ParticipationID: participation.ID,
		RideID:          ride.ID,
		UserID:          userID,
		Provider:        gateway.Name(),
		Amount:          participation.AmountDue,
		Currency:        ride.Currency,
		SessionID:       session.ID,
		Status:          models.PaymentStatusPending,
	}
	if err := s.paymentRepo.Create(ctx, transaction); err != nil {
		return nil, fmt.Errorf("failed to record payment transaction: %w", err)
	}
	if err := s.participationRepo.SetCheckoutSession(ctx, participation.ID, session.ID); err != nil {
		return nil, fmt.Errorf("failed to attach checkout session: %w", err)
	}

	s.log.LogPaymentEvent(participation.ID, "checkout_started", participation.AmountDue, session.ID)
	recordActivity(ctx, s.activity, s.log, userID, rideRef(ride.ID), models.ActivityCheckoutStarted, map[string]interface{}{
		"participation_id": participation.ID.Hex(),
		"session_id":       session.ID,
		"provider":         gateway.Name(),
	})

	return &CheckoutResult{
		SessionID: session.ID,
		URL:       session.URL,
		Provider:  gateway.Name(),
		Amount:    participation.AmountDue,
		Currency:  ride.Currency,
	}, nil
}

func (s *checkoutService) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*WebhookOutcome, error) {
	gateway, err := s.gateway(provider)
	if err != nil {
		return nil, err
	}

	event, err := gateway.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			return nil, apperr.Validation("INVALID_SIGNATURE", "webhook signature verification failed")
		}
		return nil, apperr.Wrap(apperr.KindValidation, "INVALID_WEBHOOK", "webhook payload could not be parsed", err)
	}

	outcome := &WebhookOutcome{EventID: event.EventID}
	if !event.Completed {
		outcome.Ignored = true
		return outcome, nil
	}

	dedupKey := provider + ":" + event.EventID
	claimed, err := s.dedup.Claim(ctx, dedupKey)
	if err != nil {
		return nil, apperr.Unavailable("webhook deduplication unavailable", err)
	}
	if !claimed {
		outcome.Duplicate = true
		return outcome, nil
	}

	log := s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"provider":   provider,
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"session_id": event.SessionID,
	})

	participationID, err := s.resolveParticipation(ctx, event)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindValidation) {
			log.WithError(err).Error("Webhook payment could not be matched to a participation")
			outcome.Result = "unresolved"
			return outcome, nil
		}
		s.forget(ctx, dedupKey)
		return nil, err
	}

	reference := event.PaymentReference
	if reference == "" {
		reference = event.SessionID
	}

	result, err := s.reconciler.MarkPaid(ctx, participationID, reference, event.Amount)
	outcome.Result = s.settleTransaction(ctx, event.SessionID, reference, result, err)
	if err != nil && !isRecordedOutcome(err) {
		s.forget(ctx, dedupKey)
		return nil, err
	}
	if err != nil {
		log.WithError(err).Warn("Webhook payment needs attention")
	}
	return outcome, nil
}

func (s *checkoutService) resolveParticipation(ctx context.Context, event *payment.WebhookEvent) (primitive.ObjectID, error) {
	if hex := event.Metadata[payment.MetadataParticipationID]; hex != "" {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return primitive.NilObjectID, apperr.Validation("INVALID_METADATA", "participation id in metadata is malformed")
		}
		return id, nil
	}
	if event.SessionID == "" {
		return primitive.NilObjectID, apperr.Validation("INVALID_METADATA", "webhook carries neither a participation id nor a session id")
	}
	participation, err := s.participationRepo.GetByCheckoutSession(ctx, event.SessionID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to resolve checkout session: %w", err)
	}
	return participation.ID, nil
}

// settleTransaction updates the recorded checkout after a reconcile attempt
// and returns a short label for the outcome.
func (s *checkoutService) settleTransaction(ctx context.Context, sessionID, reference string, result *PaymentResult, err error) string {
	label := "applied"
	switch {
	case err == nil && result != nil && result.Replayed:
		label = "replayed"
	case err != nil:
		label = string(apperr.KindOf(err))
		if appErr, ok := apperr.As(err); ok {
			label = appErr.Code
		}
	}
	if sessionID == "" || (err != nil && !isRecordedOutcome(err)) {
		return label
	}

	if apperr.Is(err, apperr.KindValidation) {
		if markErr := s.paymentRepo.MarkFailed(ctx, sessionID, "amount mismatch"); markErr != nil && !apperr.Is(markErr, apperr.KindNotFound) {
			s.log.WithContext(ctx).WithError(markErr).Error("Failed to mark payment transaction failed")
		}
		return label
	}
	if _, markErr := s.paymentRepo.MarkCompleted(ctx, sessionID, reference); markErr != nil && !apperr.Is(markErr, apperr.KindNotFound) {
		s.log.WithContext(ctx).WithError(markErr).Error("Failed to mark payment transaction completed")
	}
	return label
}

func (s *checkoutService) forget(ctx context.Context, key string) {
	if err := s.dedup.Forget(ctx, key); err != nil {
		s.log.WithContext(ctx).WithError(err).Error("Failed to release webhook claim")
	}
}

func (s *checkoutService) VerifySession(ctx context.Context, sessionID string, actor models.Principal) (*SessionStatus, error) {
	transaction, err := s.paymentRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	if transaction.UserID != actor.UserID && !actor.IsPrivileged() {
		return nil, apperr.Authorization("NOT_PAYER", "checkout session belongs to another user")
	}

	gateway, err := s.gateway(transaction.Provider)
	if err != nil {
		return nil, apperr.Unavailable("payment provider is no longer configured", err)
	}
	session, err := gateway.GetCheckout(ctx, sessionID)
	if err != nil {
		return nil, apperr.Unavailable("payment provider unavailable", err)
	}

	status := &SessionStatus{
		SessionID: sessionID,
		Status:    session.Status,
		Paid:      session.Paid,
		Amount:    transaction.Amount,
		Currency:  transaction.Currency,
		RideID:    transaction.RideID,
	}
	if ride, err := s.rideRepo.GetByID(ctx, transaction.RideID); err == nil {
		status.RideCode = ride.RideCode
	}

	if session.Paid {
		reference := session.PaymentReference
		if reference == "" {
			reference = sessionID
		}
		amount := session.Amount
		if amount == 0 {
			amount = transaction.Amount
		}
		result, err := s.reconciler.MarkPaid(ctx, transaction.ParticipationID, reference, amount)
		s.settleTransaction(ctx, sessionID, reference, result, err)
		if err != nil {
			return nil, err
		}
		status.Participation = result.Participation
		return status, nil
	}

	participation, err := s.participationRepo.GetByID(ctx, transaction.ParticipationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	status.Participation = participation
	return status, nil
}

// isRecordedOutcome reports reconcile errors that are final decisions rather
// than infrastructure failures. Redelivering them changes nothing.
func isRecordedOutcome(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict, apperr.KindCapacity, apperr.KindState, apperr.KindNotFound:
		return true
	}
	return false
}

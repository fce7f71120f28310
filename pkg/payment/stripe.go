package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeProvider{
		client:        sc,
		webhookSecret: webhookSecret,
	}
}

func (s *StripeProvider) Name() string {
	return "stripe"
}

func (s *StripeProvider) CreateCheckout(ctx context.Context, request *CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(request.SuccessURL),
		CancelURL:  stripe.String(request.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(request.Currency),
					UnitAmount: stripe.Int64(request.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(request.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: request.Metadata,
		},
	}
	params.Context = ctx
	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
	}

	session, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", classifyStripeError(err))
	}

	return convertStripeSession(session), nil
}

func (s *StripeProvider) GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := s.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", classifyStripeError(err))
	}

	return convertStripeSession(session), nil
}

func (s *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		CreatedAt: event.Created,
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		converted := convertStripeSession(&session)
		result.Completed = converted.Paid
		result.SessionID = converted.ID
		result.PaymentReference = converted.PaymentReference
		result.Amount = converted.Amount
		result.Metadata = converted.Metadata
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		result.Completed = true
		result.PaymentReference = intent.ID
		result.Amount = intent.AmountReceived
		if result.Amount == 0 {
			result.Amount = intent.Amount
		}
		result.Metadata = intent.Metadata
	}

	return result, nil
}

func convertStripeSession(session *stripe.CheckoutSession) *CheckoutSession {
	result := &CheckoutSession{
		ID:       session.ID,
		URL:      session.URL,
		Status:   string(session.Status),
		Paid:     session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Amount:   session.AmountTotal,
		Currency: string(session.Currency),
		Metadata: session.Metadata,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		result.PaymentReference = session.PaymentIntent.ID
	} else if result.Paid {
		result.PaymentReference = session.ID
	}
	return result
}

// classifyStripeError wraps retryable failures with ErrTransient.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}
	// No API response at all means the request never completed.
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

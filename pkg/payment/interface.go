package payment

import (
	"context"
	"errors"
)

// ErrTransient marks gateway failures worth retrying: network errors,
// 5xx responses and rate limiting.
var ErrTransient = errors.New("transient payment gateway error")

// ErrInvalidSignature is returned by ParseWebhook when the payload was not
// signed with the configured secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Gateway is a hosted-checkout payment provider.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, request *CheckoutRequest) (*CheckoutSession, error)
	GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// Metadata keys attached to every checkout so webhooks can be resolved
// back to a participation.
const (
	MetadataRideID          = "ride_id"
	MetadataUserID          = "user_id"
	MetadataParticipationID = "participation_id"
)

type CheckoutRequest struct {
	Amount      int64             `json:"amount"` // minor currency units
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
	Metadata    map[string]string `json:"metadata"`
}

type CheckoutSession struct {
	ID       string `json:"id"`
	URL      string `json:"url,omitempty"`
	Status   string `json:"status"`
	Paid     bool   `json:"paid"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// PaymentReference identifies the captured payment once Paid is set.
	PaymentReference string            `json:"payment_reference,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

type WebhookEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	// Completed is set for events that confirm a captured payment.
	Completed        bool              `json:"completed"`
	SessionID        string            `json:"session_id,omitempty"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	Amount           int64             `json:"amount"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        int64             `json:"created_at"`
}

// Package paymenttest provides an in-process payment.Gateway for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"carpool/pkg/payment"
)

// Gateway records checkouts in memory. Sessions start unpaid; tests flip
// them with Pay. Webhooks are accepted when the signature equals Secret.
type Gateway struct {
	Secret string

	mu       sync.Mutex
	sessions map[string]*payment.CheckoutSession
	seq      int
	// CreateErr, when set, is returned by the next CreateCheckout call.
	CreateErr error
	Calls     int
	// LastRequest is the most recent CreateCheckout request.
	LastRequest payment.CheckoutRequest
}

func NewGateway() *Gateway {
	return &Gateway{
		Secret:   "whsec_test",
		sessions: make(map[string]*payment.CheckoutSession),
	}
}

func (g *Gateway) Name() string {
	return "fake"
}

func (g *Gateway) CreateCheckout(ctx context.Context, request *payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Calls++
	g.LastRequest = *request
	if g.CreateErr != nil {
		err := g.CreateErr
		g.CreateErr = nil
		return nil, err
	}

	g.seq++
	id := fmt.Sprintf("cs_test_%d", g.seq)
	metadata := make(map[string]string, len(request.Metadata))
	for k, v := range request.Metadata {
		metadata[k] = v
	}
	session := &payment.CheckoutSession{
		ID:       id,
		URL:      "https://checkout.test/" + id,
		Status:   "open",
		Amount:   request.Amount,
		Currency: request.Currency,
		Metadata: metadata,
	}
	g.sessions[id] = session
	c := *session
	return &c, nil
}

func (g *Gateway) GetCheckout(ctx context.Context, sessionID string) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", sessionID)
	}
	c := *session
	return &c, nil
}

// Pay marks a session as paid with the given payment reference.
func (g *Gateway) Pay(sessionID, reference string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if session, ok := g.sessions[sessionID]; ok {
		session.Paid = true
		session.Status = "complete"
		session.PaymentReference = reference
	}
}

// Event builds the completed webhook event for a session, ready to be
// returned by ParseWebhook.
func (g *Gateway) Event(eventID, sessionID string) *payment.WebhookEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	session := g.sessions[sessionID]
	return &payment.WebhookEvent{
		EventID:          eventID,
		EventType:        "checkout.session.completed",
		Completed:        true,
		SessionID:        session.ID,
		PaymentReference: session.PaymentReference,
		Amount:           session.Amount,
		Metadata:         session.Metadata,
	}
}

// ParseWebhook treats the payload as "<event id>|<session id>".
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if signature != g.Secret {
		return nil, payment.ErrInvalidSignature
	}
	var eventID, sessionID string
	for i, b := range payload {
		if b == '|' {
			eventID, sessionID = string(payload[:i]), string(payload[i+1:])
			break
		}
	}
	g.mu.Lock()
	_, ok := g.sessions[sessionID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown session in payload %q", payload)
	}
	return g.Event(eventID, sessionID), nil
}

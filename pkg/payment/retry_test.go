package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type flakyGateway struct {
	failures int
	err      error
	calls    int
}

func (f *flakyGateway) Name() string { return "flaky" }

func (f *flakyGateway) CreateCheckout(ctx context.Context, request *CheckoutRequest) (*CheckoutSession, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &CheckoutSession{ID: "cs_1", Amount: request.Amount}, nil
}

func (f *flakyGateway) GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	return f.CreateCheckout(ctx, &CheckoutRequest{})
}

func (f *flakyGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return nil, ErrInvalidSignature
}

func fastRetry(next Gateway) *RetryingGateway {
	return NewRetryingGateway(next, time.Second, time.Second).WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
	})
}

func TestRetryingGatewayRetriesTransient(t *testing.T) {
	next := &flakyGateway{failures: 2, err: fmt.Errorf("%w: 503", ErrTransient)}
	session, err := fastRetry(next).CreateCheckout(context.Background(), &CheckoutRequest{Amount: 1500})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if session.Amount != 1500 {
		t.Errorf("Amount = %d", session.Amount)
	}
	if next.calls != 3 {
		t.Errorf("calls = %d, want 3", next.calls)
	}
}

func TestRetryingGatewayStopsOnPermanent(t *testing.T) {
	declined := errors.New("card declined")
	next := &flakyGateway{failures: 10, err: declined}
	_, err := fastRetry(next).CreateCheckout(context.Background(), &CheckoutRequest{})
	if !errors.Is(err, declined) {
		t.Fatalf("err = %v, want declined", err)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
}

func TestRetryingGatewayGivesUp(t *testing.T) {
	next := &flakyGateway{failures: 100, err: fmt.Errorf("%w: timeout", ErrTransient)}
	_, err := fastRetry(next).GetCheckout(context.Background(), "cs_1")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	if next.calls != 6 {
		t.Errorf("calls = %d, want 6", next.calls)
	}
}

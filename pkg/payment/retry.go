package payment

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingGateway retries CreateCheckout and GetCheckout while the wrapped
// gateway reports ErrTransient. Each attempt gets its own timeout.
type RetryingGateway struct {
	next           Gateway
	requestTimeout time.Duration
	newBackOff     func() backoff.BackOff
}

func NewRetryingGateway(next Gateway, requestTimeout, maxElapsed time.Duration) *RetryingGateway {
	return &RetryingGateway{
		next:           next,
		requestTimeout: requestTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}
}

// WithBackOff replaces the retry schedule. Used by tests.
func (g *RetryingGateway) WithBackOff(newBackOff func() backoff.BackOff) *RetryingGateway {
	g.newBackOff = newBackOff
	return g
}

func (g *RetryingGateway) Name() string {
	return g.next.Name()
}

func (g *RetryingGateway) CreateCheckout(ctx context.Context, request *CheckoutRequest) (*CheckoutSession, error) {
	return retrySession(ctx, g, func(attemptCtx context.Context) (*CheckoutSession, error) {
		return g.next.CreateCheckout(attemptCtx, request)
	})
}

func (g *RetryingGateway) GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	return retrySession(ctx, g, func(attemptCtx context.Context) (*CheckoutSession, error) {
		return g.next.GetCheckout(attemptCtx, sessionID)
	})
}

// ParseWebhook is local signature verification and is never retried.
func (g *RetryingGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return g.next.ParseWebhook(payload, signature)
}

func retrySession(ctx context.Context, g *RetryingGateway, call func(context.Context) (*CheckoutSession, error)) (*CheckoutSession, error) {
	var session *CheckoutSession
	operation := func() error {
		attemptCtx := ctx
		if g.requestTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.requestTimeout)
			defer cancel()
		}

		result, err := call(attemptCtx)
		if err != nil {
			if errors.Is(err, ErrTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		session = result
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(g.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return session, nil
}

package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/razorpay/razorpay-go"
)

// RazorpayOrders is the part of the razorpay order client used here.
type RazorpayOrders interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayProvider maps checkout sessions onto Razorpay orders. The order id
// is the session id and the client completes payment with Razorpay Checkout.
type RazorpayProvider struct {
	orders        RazorpayOrders
	webhookSecret string
}

func NewRazorpayProvider(keyID, keySecret, webhookSecret string) *RazorpayProvider {
	client := razorpay.NewClient(keyID, keySecret)
	return NewRazorpayProviderWithOrders(client.Order, webhookSecret)
}

func NewRazorpayProviderWithOrders(orders RazorpayOrders, webhookSecret string) *RazorpayProvider {
	return &RazorpayProvider{
		orders:        orders,
		webhookSecret: webhookSecret,
	}
}

func (r *RazorpayProvider) Name() string {
	return "razorpay"
}

func (r *RazorpayProvider) CreateCheckout(ctx context.Context, request *CheckoutRequest) (*CheckoutSession, error) {
	notes := make(map[string]interface{}, len(request.Metadata))
	for k, v := range request.Metadata {
		notes[k] = v
	}
	orderData := map[string]interface{}{
		"amount":   request.Amount,
		"currency": strings.ToUpper(request.Currency),
		"receipt":  request.Metadata[MetadataParticipationID],
		"notes":    notes,
	}

	order, err := r.orders.Create(orderData, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", classifyRazorpayError(err))
	}

	return convertRazorpayOrder(order), nil
}

func (r *RazorpayProvider) GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	order, err := r.orders.Fetch(sessionID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", classifyRazorpayError(err))
	}

	session := convertRazorpayOrder(order)
	if !session.Paid {
		return session, nil
	}

	// The webhook reports the payment id, so the poll must record the same one.
	payments, err := r.orders.Payments(sessionID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order payments: %w", classifyRazorpayError(err))
	}
	session.PaymentReference = capturedPaymentID(payments)
	if session.PaymentReference == "" {
		// Paid without a visible capture yet; the webhook settles it.
		session.Paid = false
	}
	return session, nil
}

func capturedPaymentID(collection map[string]interface{}) string {
	items, _ := collection["items"].([]interface{})
	for _, item := range items {
		payment, ok := item.(map[string]interface{})
		if ok && stringField(payment, "status") == "captured" {
			return stringField(payment, "id")
		}
	}
	return ""
}

type razorpayWebhook struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Amount  int64             `json:"amount"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (r *RazorpayProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	expectedSignature := r.generateSignature(payload)
	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return nil, ErrInvalidSignature
	}

	var event razorpayWebhook
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}

	payment := event.Payload.Payment.Entity
	createdAt := event.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}

	return &WebhookEvent{
		// Razorpay sends the event id as a header only; the payment id plus
		// event name is stable across redeliveries.
		EventID:          event.Event + ":" + payment.ID,
		EventType:        event.Event,
		Completed:        event.Event == "payment.captured" || event.Event == "order.paid",
		SessionID:        payment.OrderID,
		PaymentReference: payment.ID,
		Amount:           payment.Amount,
		Metadata:         payment.Notes,
		CreatedAt:        createdAt,
	}, nil
}

func (r *RazorpayProvider) generateSignature(payload []byte) string {
	h := hmac.New(sha256.New, []byte(r.webhookSecret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func convertRazorpayOrder(order map[string]interface{}) *CheckoutSession {
	session := &CheckoutSession{
		ID:       stringField(order, "id"),
		Status:   stringField(order, "status"),
		Amount:   intField(order, "amount"),
		Currency: strings.ToLower(stringField(order, "currency")),
		Metadata: map[string]string{},
	}
	session.Paid = session.Status == "paid"
	if notes, ok := order["notes"].(map[string]interface{}); ok {
		for k, v := range notes {
			session.Metadata[k] = fmt.Sprintf("%v", v)
		}
	}
	return session
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// intField accepts the float64 produced by encoding/json as well as ints.
func intField(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// classifyRazorpayError treats server and gateway errors as transient.
func classifyRazorpayError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "server error") || strings.Contains(msg, "gateway error") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

package config

import (
	"time"
)

const (
	ProviderStripe   = "stripe"
	ProviderRazorpay = "razorpay"
)

type PaymentConfig struct {
	DefaultProvider string          `yaml:"default_provider"`
	Stripe          *StripeConfig   `yaml:"stripe"`
	Razorpay        *RazorpayConfig `yaml:"razorpay"`
	SuccessURL      string          `yaml:"success_url"`
	CancelURL       string          `yaml:"cancel_url"`
	RequestTimeout  time.Duration   `yaml:"request_timeout"`
	MaxRetryTime    time.Duration   `yaml:"max_retry_time"`
	WebhookDedupTTL time.Duration   `yaml:"webhook_dedup_ttl"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type RazorpayConfig struct {
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
	Webhook   string `yaml:"webhook_secret"`
}

func loadPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		DefaultProvider: getEnv("PAYMENT_DEFAULT_PROVIDER", ProviderStripe),
		Stripe: &StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Razorpay: &RazorpayConfig{
			KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
			Webhook:   getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		SuccessURL:      getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:       getEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		RequestTimeout:  getEnvAsDuration("PAYMENT_REQUEST_TIMEOUT", 10*time.Second),
		MaxRetryTime:    getEnvAsDuration("PAYMENT_MAX_RETRY_TIME", 30*time.Second),
		WebhookDedupTTL: getEnvAsDuration("PAYMENT_WEBHOOK_DEDUP_TTL", 24*time.Hour),
	}
}

package config

import (
	"time"
)

// RidePolicyConfig holds the tunables of the ride lifecycle.
type RidePolicyConfig struct {
	DefaultCurrency string        `yaml:"default_currency"`
	PendingTTL      time.Duration `yaml:"pending_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	ActivityLimit   int           `yaml:"activity_limit"`
	ChatHistory     int           `yaml:"chat_history"`
}

func loadRidePolicyConfig() *RidePolicyConfig {
	return &RidePolicyConfig{
		DefaultCurrency: getEnv("RIDE_DEFAULT_CURRENCY", "usd"),
		PendingTTL:      getEnvAsDuration("RIDE_PENDING_TTL", 30*time.Minute),
		SweepInterval:   getEnvAsDuration("RIDE_SWEEP_INTERVAL", time.Minute),
		ActivityLimit:   getEnvAsInt("ACTIVITY_DEFAULT_LIMIT", 100),
		ChatHistory:     getEnvAsInt("CHAT_HISTORY_LIMIT", 200),
	}
}

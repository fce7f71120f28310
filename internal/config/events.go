package config

const (
	EventsDriverMemory = "memory"
	EventsDriverRedis  = "redis"
)

type EventsConfig struct {
	Driver string `yaml:"driver"`
	Topic  string `yaml:"topic"`
}

func loadEventsConfig() *EventsConfig {
	return &EventsConfig{
		Driver: getEnv("EVENTS_DRIVER", EventsDriverMemory),
		Topic:  getEnv("EVENTS_TOPIC", "carpool.changes"),
	}
}

package config

import (
	"time"
)

const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	URI            string        `yaml:"uri"`
	AppName        string        `yaml:"app_name"`
	Database       string        `yaml:"database"`
	MaxPoolSize    int           `yaml:"max_pool_size"`
	MinPoolSize    int           `yaml:"min_pool_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SocketTimeout  time.Duration `yaml:"socket_timeout"`
	SelectTimeout  time.Duration `yaml:"server_selection_timeout"`
	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `yaml:"auto_migrate"`
}

func loadStoreConfig() *StoreConfig {
	return &StoreConfig{
		Driver: getEnv("STORE_DRIVER", StoreDriverMongo),
	}
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		AppName:        getEnv("MONGODB_APP_NAME", "carpool"),
		Database:       getEnv("MONGODB_DATABASE", "carpool"),
		MaxPoolSize:    getEnvAsInt("MONGODB_MAX_POOL_SIZE", 100),
		MinPoolSize:    getEnvAsInt("MONGODB_MIN_POOL_SIZE", 5),
		ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		SocketTimeout:  getEnvAsDuration("MONGODB_SOCKET_TIMEOUT", 30*time.Second),
		SelectTimeout:  getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", 5*time.Second),
		AutoMigrate:    getEnvAsBool("MONGODB_AUTO_MIGRATE", true),
	}
}

// Package config loads server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr      string        `envconfig:"ADDR" default:":8080"`
	DBDSN     string        `envconfig:"DB_DSN" required:"true"`
	RedisAddr string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	LogLevel  string        `envconfig:"LOG_LEVEL" default:"info"`

	// Relay toggles cross-instance delivery over Redis pub/sub.
	RelayEnabled bool `envconfig:"RELAY_ENABLED" default:"true"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env file is fine

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

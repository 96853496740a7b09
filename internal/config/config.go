// Package config loads service configuration from a .env file, environment
// variables, and CLI overrides, in that order of increasing priority.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the focus arbiter.
type Config struct {
	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins string        `env:"CORS_ORIGINS"` // comma-separated; empty = allow all (*)

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	PolicyFile string `env:"POLICY_FILE,required"`

	// Automotive mode resolves session tokens to displays instead of
	// accepting an explicit displayId on every request.
	Automotive           bool   `env:"AUTOMOTIVE" envDefault:"false"`
	SessionMQTTBrokerURL string `env:"SESSION_MQTT_BROKER_URL"`
	SessionMQTTTopic     string `env:"SESSION_MQTT_TOPIC" envDefault:"vehicle/audiofocus/sessions"`
	SessionMQTTClientID  string `env:"SESSION_MQTT_CLIENT_ID" envDefault:"afengine-session-feed"`
	SessionMQTTUsername  string `env:"SESSION_MQTT_USERNAME"`
	SessionMQTTPassword  string `env:"SESSION_MQTT_PASSWORD"`

	// Audit log (optional — disabled when DatabaseURL is empty).
	DatabaseURL string `env:"DATABASE_URL"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Validate checks cross-field constraints Load's struct tags can't express.
func (c *Config) Validate() error {
	if c.Automotive && c.SessionMQTTBrokerURL == "" {
		return fmt.Errorf("SESSION_MQTT_BROKER_URL is required when AUTOMOTIVE=true")
	}
	return nil
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile    string
	HTTPAddr   string
	LogLevel   string
	PolicyFile string
}

// Load reads configuration from a .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.PolicyFile != "" {
		cfg.PolicyFile = overrides.PolicyFile
	}

	return cfg, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMemory = "memory"
	StoreDriverPebble = "pebble"
)

// Config holds all configuration for the chat server.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"support-chat"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"CHAT_PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Auth
	AuthSecret   string `env:"AUTH_SECRET"`
	AuthIssuer   string `env:"AUTH_ISSUER"`
	AuthAudience string `env:"AUTH_AUDIENCE"`

	// Persistence
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	StorePath   string `env:"STORE_PATH" envDefault:"data/chat"`

	// Sessions
	OutboundBuffer int           `env:"OUTBOUND_BUFFER" envDefault:"64"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"90s"`
	PingInterval   time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	EventRate      float64       `env:"EVENT_RATE" envDefault:"20"`
	EventBurst     int           `env:"EVENT_BURST" envDefault:"40"`

	// Messages
	MaxContentLength int `env:"MAX_CONTENT_LENGTH" envDefault:"4000"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}

	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPebble:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("STORE_PATH is required when STORE_DRIVER is %q", StoreDriverPebble)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.OutboundBuffer <= 0 {
		return fmt.Errorf("OUTBOUND_BUFFER must be positive")
	}
	if c.PingInterval <= 0 || c.IdleTimeout <= c.PingInterval {
		return fmt.Errorf("IDLE_TIMEOUT (%s) must exceed PING_INTERVAL (%s)", c.IdleTimeout, c.PingInterval)
	}
	if c.EventRate <= 0 || c.EventBurst <= 0 {
		return fmt.Errorf("EVENT_RATE and EVENT_BURST must be positive")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive")
	}
	return nil
}

// Addr returns the HTTP server address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
}

// environment mirrors the variables the original deployment used (PORT,
// ALLOWED_ORIGINS) plus the transport protection knobs.
type environment struct {
	Port                   string `env:"PORT,default=8080"`
	AllowedOrigins         string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize         int64  `env:"MAX_MESSAGE_SIZE,default=65536"`
	RateLimitBurst         int    `env:"RATE_LIMIT_BURST,default=200"`
	RateLimitRefillSeconds int    `env:"RATE_LIMIT_REFILL_INTERVAL,default=1"`
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 65536,
		RateLimit: RateLimitConfig{
			Burst:          200,
			RefillInterval: time.Second,
		},
	}
	return &cfg
}

// LoadConfig builds a Config from environment variables, falling back to
// defaults for anything unset. Origins default to "*" as the original
// deployment did when ALLOWED_ORIGINS was absent.
func LoadConfig() (*Config, error) {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := NewConfig()
	cfg.Addr = normalizeAddr(e.Port)
	if e.AllowedOrigins != "" {
		cfg.AllowedOrigins = parseOrigins(e.AllowedOrigins)
	}
	if e.MaxMessageSize > 0 {
		cfg.MaxMessageSize = e.MaxMessageSize
	}
	if e.RateLimitBurst > 0 {
		cfg.RateLimit.Burst = e.RateLimitBurst
	}
	if e.RateLimitRefillSeconds > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(e.RateLimitRefillSeconds) * time.Second
	}

	return sanitizeConfig(cfg), nil
}

func sanitizeConfig(cfg *Config) *Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 65536
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 200
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	return cfg
}

// normalizeAddr accepts both "8080" and ":8080" forms of PORT.
func normalizeAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ":8080"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	trimmed := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return trimmed
}

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                  int      `env:"PORT" envDefault:"8080"`
	DatabaseURL           string   `env:"DATABASE_URL,required"`
	RedisURL              string   `env:"REDIS_URL,required"`
	JWTSecret             string   `env:"JWT_SECRET,required"`
	LogLevel              string   `env:"LOG_LEVEL" envDefault:"info"`
	CallDurationSeconds   int      `env:"CALL_DURATION_SECONDS" envDefault:"60"`
	SignalRateLimitPerMin int      `env:"SIGNAL_RATE_LIMIT_PER_MIN" envDefault:"60"`
	CORSAllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) CallDuration() time.Duration {
	return time.Duration(c.CallDurationSeconds) * time.Second
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters (generate with: openssl rand -base64 32)")
	}
	if c.CallDurationSeconds < 30 || c.CallDurationSeconds > 180 {
		return fmt.Errorf("CALL_DURATION_SECONDS must be between 30 and 180, got %d", c.CallDurationSeconds)
	}
	if c.SignalRateLimitPerMin <= 0 {
		return fmt.Errorf("SIGNAL_RATE_LIMIT_PER_MIN must be positive, got %d", c.SignalRateLimitPerMin)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

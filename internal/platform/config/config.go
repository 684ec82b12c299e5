package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"4000"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// SessionSecret signs the login cookie and bearer tokens. A random key is
	// generated per process when it is empty outside production.
	SessionSecret      string        `env:"SESSION_SECRET"`
	SessionMaxAge      time.Duration `env:"SESSION_MAX_AGE" default:"168h"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000 http://localhost:5173"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"15s"`
	ReapInterval      time.Duration `env:"REAP_INTERVAL" default:"1h"`
	SinkWriteTimeout  time.Duration `env:"SINK_WRITE_TIMEOUT" default:"5s"`

	MaxTotemConnections      int     `env:"MAX_TOTEM_CONNECTIONS" default:"1000"`
	MaxTotemConnectionsPerIP int     `env:"MAX_TOTEM_CONNECTIONS_PER_IP" default:"20"`
	TotemConnectRate         float64 `env:"TOTEM_CONNECT_RATE" default:"2"`
	TotemConnectBurst        int     `env:"TOTEM_CONNECT_BURST" default:"10"`
	APIRateLimit             float64 `env:"API_RATE_LIMIT" default:"10"`
	APIRateBurst             int     `env:"API_RATE_BURST" default:"20"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.IsProduction() {
		required := map[string]string{
			"DATABASE_URL":   cfg.DatabaseURL,
			"SESSION_SECRET": cfg.SessionSecret,
		}
		for name, value := range required {
			if value == "" {
				return fmt.Errorf("%s is required in production", name)
			}
		}
	}

	if cfg.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if cfg.ReapInterval <= 0 {
		return errors.New("REAP_INTERVAL must be positive")
	}
	if cfg.SinkWriteTimeout <= 0 {
		return errors.New("SINK_WRITE_TIMEOUT must be positive")
	}
	if cfg.SessionMaxAge < time.Minute {
		return fmt.Errorf("SESSION_MAX_AGE must be at least 1m, got %s", cfg.SessionMaxAge)
	}
	if cfg.MaxTotemConnections < 1 || cfg.MaxTotemConnectionsPerIP < 1 {
		return errors.New("MAX_TOTEM_CONNECTIONS and MAX_TOTEM_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}

	return nil
}

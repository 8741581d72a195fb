package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	API     APIConfig
	Notify  NotifyConfig
	MockAPI MockAPIConfig
}

// APIConfig points the client at the users API.
type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL, default=http://localhost:8080"`
	Timeout time.Duration `env:"API_TIMEOUT,  default=0"` // 0 means no timeout
}

type NotifyConfig struct {
	Workers int `env:"NOTIFY_WORKERS, default=4"`
}

type MockAPIConfig struct {
	Port string `env:"MOCK_API_PORT, default=8080"`
	Seed bool   `env:"MOCK_API_SEED, default=true"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through l, which lets tests supply a map.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if cfg.Notify.Workers <= 0 {
		return nil, fmt.Errorf("config: NOTIFY_WORKERS must be positive, got %d", cfg.Notify.Workers)
	}
	if cfg.API.Timeout < 0 {
		return nil, fmt.Errorf("config: API_TIMEOUT must not be negative, got %s", cfg.API.Timeout)
	}
	return &cfg, nil
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

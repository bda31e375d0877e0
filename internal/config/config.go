// Package config loads service configuration from HODLXXI_ environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full runtime configuration of the API process.
type Config struct {
	Env        string `env:"HODLXXI_ENV" envDefault:"development"`
	ListenAddr string `env:"HODLXXI_LISTEN_ADDR" envDefault:":8080"`

	// BaseURL is the externally reachable origin; the LNURL callback
	// handed to wallets is derived from it.
	BaseURL string `env:"HODLXXI_BASE_URL" envDefault:"http://localhost:8080"`

	// SessionSecret signs web session tokens. Required outside
	// development.
	SessionSecret string        `env:"HODLXXI_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"HODLXXI_SESSION_TTL" envDefault:"720h"`

	PostgresDSN string `env:"HODLXXI_PG_DSN"`
	RedisURL    string `env:"HODLXXI_REDIS_URL"`

	CodeTTL           time.Duration `env:"HODLXXI_CODE_TTL" envDefault:"10m"`
	AccessTokenTTL    time.Duration `env:"HODLXXI_ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL   time.Duration `env:"HODLXXI_REFRESH_TOKEN_TTL" envDefault:"720h"`
	LoginChallengeTTL time.Duration `env:"HODLXXI_LOGIN_CHALLENGE_TTL" envDefault:"5m"`
	FundsChallengeTTL time.Duration `env:"HODLXXI_FUNDS_CHALLENGE_TTL" envDefault:"15m"`

	SweepInterval   time.Duration `env:"HODLXXI_SWEEP_INTERVAL" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"HODLXXI_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load parses configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production reports whether the process runs with production checks.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects configurations that would be unsafe to serve with.
func (c Config) Validate() error {
	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if c.CodeTTL <= 0 || c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 ||
		c.LoginChallengeTTL <= 0 || c.FundsChallengeTTL <= 0 || c.SessionTTL <= 0 {
		return errors.New("all TTLs must be positive")
	}
	if !c.Production() {
		return nil
	}
	if c.SessionSecret == "" {
		return errors.New("HODLXXI_SESSION_SECRET is required in production")
	}
	if base.Scheme != "https" {
		return errors.New("base url must be https in production")
	}
	if c.PostgresDSN == "" {
		return errors.New("HODLXXI_PG_DSN is required in production")
	}
	return nil
}

// Package config loads server configuration from the environment and the
// static network/contract-address file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const minSecretLen = 32

// Config holds server configuration.
type Config struct {
	Port          int           `env:"EM_PORT"           envDefault:"8080"`
	DBPath        string        `env:"EM_DB"`
	DevMode       bool          `env:"EM_DEV_MODE"`
	BaseURL       string        `env:"EM_BASE_URL"       envDefault:"http://localhost:8080"`
	Network       string        `env:"EM_NETWORK"        envDefault:"localhost"`
	NetworksFile  string        `env:"EM_NETWORKS_FILE"`
	RPCURL        string        `env:"EM_RPC_URL"`
	SessionSecret string        `env:"EM_SESSION_SECRET"`
	AMQPURL       string        `env:"EM_AMQP_URL"`
	AMQPExchange  string        `env:"EM_AMQP_EXCHANGE"  envDefault:"estate-market"`
	FluentHost    string        `env:"EM_FLUENT_HOST"`
	FluentPort    int           `env:"EM_FLUENT_PORT"    envDefault:"24224"`
	ChatDelay     time.Duration `env:"EM_CHAT_DELAY"     envDefault:"600ms"`
	TrustProxy    bool          `env:"EM_TRUST_PROXY"`
}

// Load reads an optional .env file and parses the environment into a Config.
// An empty envPath loads ./.env when present.
func Load(envPath string) (*Config, error) {
	if err := loadDotEnv(envPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	var err error
	if path != "" {
		err = godotenv.Load(path)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// finalize validates the parsed values and fills in derived defaults.
func (c *Config) finalize() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("EM_PORT must be 1-65535, got %d", c.Port)
	}
	if c.ChatDelay < 0 {
		return fmt.Errorf("EM_CHAT_DELAY must not be negative")
	}

	if c.SessionSecret == "" {
		if !c.DevMode {
			return fmt.Errorf("EM_SESSION_SECRET is required outside dev mode")
		}
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generating session secret: %w", err)
		}
		c.SessionSecret = secret
	}
	if len(c.SessionSecret) < minSecretLen {
		return fmt.Errorf("EM_SESSION_SECRET must be at least %d characters", minSecretLen)
	}

	return nil
}

// FluentEnabled reports whether log forwarding is configured.
func (c *Config) FluentEnabled() bool {
	return c.FluentHost != ""
}

// EventsEnabled reports whether sale events should be published to AMQP.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

func randomSecret() (string, error) {
	b := make([]byte, minSecretLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

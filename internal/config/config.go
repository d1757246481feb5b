package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultModelPath is used when FRAUD_MODEL_PATH is unset.
const DefaultModelPath = "fraud_model.pkl"

// Config holds all configuration for the scoring service.
type Config struct {
	ModelPath       string        `env:"FRAUD_MODEL_PATH" envDefault:"fraud_model.pkl"`
	ModelSHA256     string        `env:"FRAUD_MODEL_SHA256"`
	ModelRequired   bool          `env:"FRAUD_MODEL_REQUIRED" envDefault:"false"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8000"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want json or text", c.LogFormat)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read on top of the file (or the defaults).
// API_ID and API_SECRET are unprefixed so existing search deployments keep working.
const (
	EnvAPIID        = "API_ID"
	EnvAPISecret    = "API_SECRET"
	EnvAPIURL       = "CERTENRICH_API_URL"
	EnvAPITimeout   = "CERTENRICH_API_TIMEOUT"
	EnvLogLevel     = "CERTENRICH_LOG_LEVEL"
	EnvLogPath      = "CERTENRICH_LOG_PATH"
	EnvAddr         = "CERTENRICH_ADDR"
	EnvAuthToken    = "CERTENRICH_AUTH_TOKEN"
	EnvKafkaBrokers = "CERTENRICH_KAFKA_BROKERS"
)

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment
// variable overrides. An empty path behaves like FromEnv.
func LoadWithEnv(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = read(path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a Config from defaults and environment variables so main
// stays lean when no file is given.
func FromEnv() (Config, error) {
	return LoadWithEnv("")
}

func read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvAPIID); v != "" {
		cfg.API.ID = v
	}
	if v := os.Getenv(EnvAPISecret); v != "" {
		cfg.API.Secret = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.URL = v
	}
	if v := os.Getenv(EnvAPITimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s is invalid: %w", EnvAPITimeout, err)
		}
		cfg.API.Timeout = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogPath); v != "" {
		cfg.Logging.Path = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvAuthToken); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

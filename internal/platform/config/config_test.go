package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certenrich.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAPIID, EnvAPISecret, EnvAPIURL, EnvAPITimeout,
		EnvLogLevel, EnvLogPath, EnvAddr, EnvAuthToken, EnvKafkaBrokers,
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAPIURL, cfg.API.URL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Equal(t, 50, cfg.Enrichment.BatchSize)
	assert.Equal(t, 8, cfg.Enrichment.MaxConcurrentBatches)
	assert.Equal(t, "fingerprint", cfg.Enrichment.FingerprintField)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
api:
  url: http://lookup.internal/bulk
  id: abc
  secret: xyz
  timeout: 5s
  requests_per_second: 2.5
enrichment:
  batch_size: 20
  max_concurrent_batches: 3
  fingerprint_field: entity.sha256
logging:
  level: debug
  format: json
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "http://lookup.internal/bulk", cfg.API.URL)
		assert.Equal(t, "abc", cfg.API.ID)
		assert.Equal(t, "xyz", cfg.API.Secret)
		assert.Equal(t, 5*time.Second, cfg.API.Timeout)
		assert.InDelta(t, 2.5, cfg.API.RequestsPerSecond, 0.0001)
		assert.Equal(t, 20, cfg.Enrichment.BatchSize)
		assert.Equal(t, 3, cfg.Enrichment.MaxConcurrentBatches)
		assert.Equal(t, "entity.sha256", cfg.Enrichment.FingerprintField)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		// untouched sections keep defaults
		assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
		assert.Equal(t, int64(DefaultMaxResponseBytes), cfg.API.MaxResponseBytes)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "api: [unterminated"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("batch size above the endpoint limit is rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, "enrichment:\n  batch_size: 51\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "enrichment.batch_size")
	})
}

func TestLoadWithEnv(t *testing.T) {
	t.Run("env overrides file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvAPIID, "env-id")
		t.Setenv(EnvAPISecret, "env-secret")
		t.Setenv(EnvAPITimeout, "90s")
		t.Setenv(EnvLogLevel, "INFO")
		t.Setenv(EnvKafkaBrokers, "a:9092, b:9092,")
		t.Setenv(EnvAuthToken, "s3cret")

		cfg, err := LoadWithEnv(writeConfig(t, "api:\n  id: file-id\n"))
		require.NoError(t, err)

		assert.Equal(t, "env-id", cfg.API.ID)
		assert.Equal(t, "env-secret", cfg.API.Secret)
		assert.Equal(t, 90*time.Second, cfg.API.Timeout)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "s3cret", cfg.Server.AuthToken)
	})

	t.Run("empty path uses defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvAPIURL, "https://example.test/bulk")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, "https://example.test/bulk", cfg.API.URL)
		assert.Equal(t, DefaultBatchSize, cfg.Enrichment.BatchSize)
	})

	t.Run("invalid env duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvAPITimeout, "soon")

		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), EnvAPITimeout)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty url", func(c *Config) { c.API.URL = "" }, "api.url is required"},
		{"relative url", func(c *Config) { c.API.URL = "bulk/certificates" }, "api.url is invalid"},
		{"ftp url", func(c *Config) { c.API.URL = "ftp://example.test/bulk" }, "http or https"},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "api.timeout"},
		{"negative rate", func(c *Config) { c.API.RequestsPerSecond = -1 }, "requests_per_second"},
		{"zero batch size", func(c *Config) { c.Enrichment.BatchSize = 0 }, "batch_size"},
		{"zero workers", func(c *Config) { c.Enrichment.MaxConcurrentBatches = 0 }, "max_concurrent_batches"},
		{"no fingerprint field", func(c *Config) { c.Enrichment.FingerprintField = "" }, "fingerprint_field"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKafkaValidate(t *testing.T) {
	valid := Default().Kafka
	valid.Brokers = []string{"localhost:9092"}
	valid.InputTopic = "certs"
	valid.OutputTopic = "certs-enriched"
	require.NoError(t, valid.Validate())

	same := valid
	same.OutputTopic = same.InputTopic
	assert.Error(t, same.Validate())

	noBrokers := valid
	noBrokers.Brokers = nil
	assert.Error(t, noBrokers.Validate())

	create := valid
	create.CreateTopics = true
	create.Partitions = 0
	assert.Error(t, create.Validate())
}

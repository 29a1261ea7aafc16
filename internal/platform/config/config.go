package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Batch sizing. The bulk certificates endpoint accepts at most 50 fingerprints
// per call, so the batch size may be lowered but never raised.
const (
	DefaultBatchSize            = 50
	MaxBatchSize                = 50
	DefaultMaxConcurrentBatches = 8
)

const (
	DefaultAPIURL           = "https://censys.io/api/v1/bulk/certificates"
	DefaultAPITimeout       = 60 * time.Second
	DefaultMaxResponseBytes = 32 << 20
	DefaultFingerprintField = "fingerprint"
	DefaultServerAddr       = ":8080"
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultKafkaGroup       = "certenrich"
	DefaultMaxPollRecords   = 500
)

// Config is the process-wide configuration. It is read once at startup and
// passed by value into constructors; nothing mutates it afterwards.
type Config struct {
	API        API        `yaml:"api"`
	Enrichment Enrichment `yaml:"enrichment"`
	Logging    Logging    `yaml:"logging"`
	Server     Server     `yaml:"server"`
	Kafka      Kafka      `yaml:"kafka"`
}

// API configures the remote bulk-lookup service.
type API struct {
	URL               string        `yaml:"url"`
	ID                string        `yaml:"id"`
	Secret            string        `yaml:"secret"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables client-side limiting
	MaxResponseBytes  int64         `yaml:"max_response_bytes"`
}

// Enrichment configures batching and parallelism.
type Enrichment struct {
	BatchSize            int    `yaml:"batch_size"`
	MaxConcurrentBatches int    `yaml:"max_concurrent_batches"`
	FingerprintField     string `yaml:"fingerprint_field"` // record field holding the lookup key
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"` // empty writes to stderr
}

// Server configures the HTTP adapter.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AuthToken       string        `yaml:"auth_token"` // bearer token for /v1/enrich; empty disables the check
}

// Kafka configures the Kafka adapter. It is only validated when that adapter
// is selected.
type Kafka struct {
	Brokers           []string `yaml:"brokers"`
	InputTopic        string   `yaml:"input_topic"`
	OutputTopic       string   `yaml:"output_topic"`
	Group             string   `yaml:"group"`
	CreateTopics      bool     `yaml:"create_topics"`
	Partitions        int32    `yaml:"partitions"`
	ReplicationFactor int16    `yaml:"replication_factor"`
	MaxPollRecords    int      `yaml:"max_poll_records"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() Config {
	return Config{
		API: API{
			URL:              DefaultAPIURL,
			Timeout:          DefaultAPITimeout,
			MaxResponseBytes: DefaultMaxResponseBytes,
		},
		Enrichment: Enrichment{
			BatchSize:            DefaultBatchSize,
			MaxConcurrentBatches: DefaultMaxConcurrentBatches,
			FingerprintField:     DefaultFingerprintField,
		},
		Logging: Logging{
			Level:  "error",
			Format: "text",
		},
		Server: Server{
			Addr:            DefaultServerAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Kafka: Kafka{
			Group:             DefaultKafkaGroup,
			Partitions:        1,
			ReplicationFactor: 1,
			MaxPollRecords:    DefaultMaxPollRecords,
		},
	}
}

// Validate checks the settings every mode depends on.
func (c Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Enrichment.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Validate checks the lookup service settings.
func (a API) Validate() error {
	if a.URL == "" {
		return errors.New("api.url is required")
	}
	u, err := url.ParseRequestURI(a.URL)
	if err != nil {
		return fmt.Errorf("api.url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.url must use http or https, got %q", u.Scheme)
	}
	if a.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if a.RequestsPerSecond < 0 {
		return errors.New("api.requests_per_second must not be negative")
	}
	if a.MaxResponseBytes <= 0 {
		return errors.New("api.max_response_bytes must be positive")
	}
	return nil
}

// Validate checks batching settings.
func (e Enrichment) Validate() error {
	if e.BatchSize < 1 || e.BatchSize > MaxBatchSize {
		return fmt.Errorf("enrichment.batch_size must be between 1 and %d", MaxBatchSize)
	}
	if e.MaxConcurrentBatches < 1 {
		return errors.New("enrichment.max_concurrent_batches must be at least 1")
	}
	if e.FingerprintField == "" {
		return errors.New("enrichment.fingerprint_field is required")
	}
	return nil
}

// Validate checks logging settings.
func (l Logging) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return errors.New("logging.level must be one of: debug, info, warn, error")
	}
	if l.Format != "json" && l.Format != "text" {
		return errors.New("logging.format must be 'json' or 'text'")
	}
	return nil
}

// Validate checks the Kafka adapter settings.
func (k Kafka) Validate() error {
	if len(k.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if k.InputTopic == "" {
		return errors.New("kafka.input_topic is required")
	}
	if k.OutputTopic == "" {
		return errors.New("kafka.output_topic is required")
	}
	if k.InputTopic == k.OutputTopic {
		return errors.New("kafka.output_topic must differ from kafka.input_topic")
	}
	if k.Group == "" {
		return errors.New("kafka.group is required")
	}
	if k.MaxPollRecords < 1 {
		return errors.New("kafka.max_poll_records must be at least 1")
	}
	if k.CreateTopics && (k.Partitions < 1 || k.ReplicationFactor < 1) {
		return errors.New("kafka.partitions and kafka.replication_factor must be positive when create_topics is set")
	}
	return nil
}

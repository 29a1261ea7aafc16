// Package kafka runs the enrichment pipeline between two Kafka topics. Each
// poll is one invocation; offsets are committed only after the enriched
// records have been produced.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"certenrich/internal/enrichment/models"
	"certenrich/internal/platform/config"
	"certenrich/internal/platform/logger"
	"certenrich/internal/transport/stream"
	"certenrich/pkg/requestcontext"
)

// Client is the subset of *kgo.Client the consumer uses.
type Client interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// Runner runs one enrichment invocation.
type Runner interface {
	Run(ctx context.Context, records iter.Seq2[*models.Record, error]) ([]*models.Record, error)
}

// NewClient builds a group consumer for the input topic with auto-commit
// disabled. Extra options are appended.
func NewClient(cfg config.Kafka, opts ...kgo.Opt) (*kgo.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.InputTopic),
		kgo.DisableAutoCommit(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopics creates the input and output topics. Existing topics are left
// as they are.
func EnsureTopics(ctx context.Context, client *kgo.Client, cfg config.Kafka) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor, nil, cfg.InputTopic, cfg.OutputTopic)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for topic, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, r.Err)
		}
	}
	return nil
}

// Consumer moves records from the input topic through the runner to the
// output topic.
type Consumer struct {
	client      Client
	runner      Runner
	decoder     *stream.Decoder
	outputTopic string
	maxPoll     int
	logger      *slog.Logger
}

type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func New(client Client, runner Runner, cfg config.Kafka, fingerprintField string, opts ...Option) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("kafka client is required")
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fingerprintField == "" {
		return nil, errors.New("fingerprint field is required")
	}

	c := &Consumer{
		client:      client,
		runner:      runner,
		decoder:     stream.NewDecoder(fingerprintField),
		outputTopic: cfg.OutputTopic,
		maxPoll:     cfg.MaxPollRecords,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		return nil, errors.New("logger is required")
	}
	return c, nil
}

// Run polls until ctx is cancelled or the client is closed, which both
// return nil. A fetch, decode, enrichment, produce or commit error stops the
// loop; uncommitted records are redelivered on restart.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollRecords(ctx, c.maxPoll)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		if err := fetchError(fetches); err != nil {
			return err
		}
		if err := c.process(ctx, fetches.Records()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func fetchError(fetches kgo.Fetches) error {
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.Canceled) {
			continue
		}
		return fmt.Errorf("fetch %s[%d]: %w", fe.Topic, fe.Partition, fe.Err)
	}
	return nil
}

// process enriches one poll. Output record i keeps the key and headers of
// input record i.
func (c *Consumer) process(ctx context.Context, in []*kgo.Record) error {
	if len(in) == 0 {
		return nil
	}
	pollID := uuid.NewString()
	ctx = requestcontext.WithRequestID(ctx, pollID)

	out, err := c.runner.Run(ctx, c.records(in))
	if err != nil {
		return fmt.Errorf("enrich poll: %w", err)
	}

	produce := make([]*kgo.Record, len(out))
	for i, rec := range out {
		value, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encode %s[%d]@%d: %w", in[i].Topic, in[i].Partition, in[i].Offset, err)
		}
		produce[i] = &kgo.Record{
			Topic:   c.outputTopic,
			Key:     in[i].Key,
			Value:   value,
			Headers: in[i].Headers,
		}
	}
	if err := c.client.ProduceSync(ctx, produce...).FirstErr(); err != nil {
		return fmt.Errorf("produce enriched records: %w", err)
	}
	if err := c.client.CommitRecords(ctx, in...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}

	c.logger.DebugContext(ctx, "kafka poll enriched",
		"request_id", pollID,
		"records", len(out),
	)
	return nil
}

func (c *Consumer) records(in []*kgo.Record) iter.Seq2[*models.Record, error] {
	return func(yield func(*models.Record, error) bool) {
		for _, r := range in {
			rec, err := c.decoder.Decode(r.Value)
			if err != nil {
				yield(nil, fmt.Errorf("%s[%d]@%d: %w", r.Topic, r.Partition, r.Offset, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

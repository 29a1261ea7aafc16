// Package batcher partitions a record sequence into lookup batches, enriches
// them with bounded parallelism and returns the records in input order once
// every batch has finished.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"certenrich/internal/enrichment/metrics"
	"certenrich/internal/enrichment/models"
	"certenrich/internal/platform/config"
	"certenrich/internal/platform/logger"
	"certenrich/pkg/requestcontext"
)

const tracerName = "certenrich/batcher"

var (
	// ErrTaskPanicked wraps a panic recovered from a batch task.
	ErrTaskPanicked = errors.New("batch task panicked")

	// ErrRecordCount reports an enricher that did not return exactly the
	// records it was given.
	ErrRecordCount = errors.New("enricher returned wrong number of records")
)

// Enricher enriches a single batch.
type Enricher interface {
	Enrich(ctx context.Context, batch *models.Batch) ([]*models.Record, error)
}

// Batcher runs enrichment invocations. Each Run uses a fresh worker group;
// only configuration is shared between invocations.
type Batcher struct {
	enricher      Enricher
	batchSize     int
	maxConcurrent int
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type Option func(*Batcher)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Batcher) {
		b.metrics = m
	}
}

func New(enricher Enricher, cfg config.Enrichment, opts ...Option) (*Batcher, error) {
	if enricher == nil {
		return nil, errors.New("enricher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Batcher{
		enricher:      enricher,
		batchSize:     cfg.BatchSize,
		maxConcurrent: cfg.MaxConcurrentBatches,
		logger:        logger.Discard(),
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		return nil, errors.New("logger is required")
	}
	return b, nil
}

// result is written by exactly one task and read after the barrier.
type result struct {
	records []*models.Record
}

// Run consumes records lazily, schedules one enrichment task per full batch
// (and one for the trailing partial batch) and waits for all of them. The
// returned records are in input order. Any task error, input error or
// cancellation fails the whole invocation and no records are returned.
func (b *Batcher) Run(ctx context.Context, records iter.Seq2[*models.Record, error]) (out []*models.Record, err error) {
	invocationID := uuid.NewString()
	ctx = requestcontext.WithInvocationID(ctx, invocationID)
	ctx, span := b.tracer.Start(ctx, "batcher.Run", trace.WithAttributes(
		attribute.String("invocation.id", invocationID),
	))
	defer span.End()

	start := time.Now()
	var batches int
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invocation failed")
			b.metrics.ObserveInvocation(metrics.InvocationFailed)
			b.logger.ErrorContext(ctx, "enrichment invocation failed",
				"invocation_id", invocationID,
				"batches", batches,
				"error", err,
			)
			return
		}
		span.SetAttributes(attribute.Int("invocation.records", len(out)))
		b.metrics.ObserveInvocation(metrics.InvocationOK)
		b.logger.DebugContext(ctx, "enrichment invocation complete",
			"invocation_id", invocationID,
			"batches", batches,
			"records", len(out),
			"duration", time.Since(start),
		)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)

	var (
		pending  = make([]*models.Record, 0, b.batchSize)
		results  []*result
		total    int
		inputErr error
	)
	schedule := func() {
		batch := models.NewBatch(len(results), pending)
		res := &result{}
		results = append(results, res)
		total += batch.Len()
		pending = make([]*models.Record, 0, b.batchSize)
		// Blocks while maxConcurrent tasks are running.
		g.Go(func() error {
			return b.runTask(gctx, batch, res)
		})
	}

	for rec, recErr := range records {
		if recErr != nil {
			inputErr = recErr
			break
		}
		// A failed task cancels gctx; stop pulling input.
		if gctx.Err() != nil {
			break
		}
		pending = append(pending, rec)
		if len(pending) == b.batchSize {
			schedule()
		}
	}
	if inputErr == nil && gctx.Err() == nil && len(pending) > 0 {
		schedule()
	}
	batches = len(results)
	span.SetAttributes(attribute.Int("invocation.batches", batches))

	// Barrier.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if inputErr != nil {
		return nil, fmt.Errorf("read input: %w", inputErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out = make([]*models.Record, 0, total)
	for _, res := range results {
		out = append(out, res.records...)
	}
	return out, nil
}

func (b *Batcher) runTask(ctx context.Context, batch *models.Batch, res *result) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.metrics.BatchStarted()
	defer b.metrics.BatchFinished()
	defer func() {
		if p := recover(); p != nil {
			b.metrics.ObserveBatch(metrics.OutcomeFailed)
			err = fmt.Errorf("%w: batch %d: %v", ErrTaskPanicked, batch.Seq, p)
		}
	}()

	records, err := b.enricher.Enrich(ctx, batch)
	if err != nil {
		return err
	}
	if len(records) != batch.Len() {
		return fmt.Errorf("%w: batch %d: got %d, want %d", ErrRecordCount, batch.Seq, len(records), batch.Len())
	}
	res.records = records
	return nil
}

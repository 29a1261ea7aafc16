// Package enricher attaches bulk-lookup results to the records of one batch.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certenrich/internal/enrichment/metrics"
	"certenrich/internal/enrichment/models"
	"certenrich/internal/lookup"
	"certenrich/internal/platform/config"
	"certenrich/internal/platform/logger"
	"certenrich/pkg/fingerprint"
	"certenrich/pkg/requestcontext"
)

const tracerName = "certenrich/enricher"

// LookupClient performs one bulk lookup for a list of fingerprints.
type LookupClient interface {
	Lookup(ctx context.Context, fingerprints []string) (lookup.Response, error)
}

// Enricher enriches one batch per call. It holds no per-batch state and is
// safe for concurrent use.
type Enricher struct {
	client  LookupClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	timeout time.Duration
}

type Option func(*Enricher)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// WithTimeout bounds each remote call. Expiry degrades the batch.
func WithTimeout(d time.Duration) Option {
	return func(e *Enricher) {
		e.timeout = d
	}
}

func New(client LookupClient, opts ...Option) (*Enricher, error) {
	if client == nil {
		return nil, errors.New("lookup client is required")
	}

	e := &Enricher{
		client:  client,
		logger:  logger.Discard(),
		tracer:  otel.Tracer(tracerName),
		timeout: config.DefaultAPITimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		return nil, errors.New("logger is required")
	}
	if e.timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}
	return e, nil
}

// Enrich looks up the batch's fingerprints in one call and sets is_known on
// every record, plus the certificate fields on known ones. Records are
// returned in batch order. A failed lookup marks the whole batch unknown and
// is not an error; a malformed entry returns an error wrapping
// lookup.ErrSchemaViolation. Cancellation of ctx returns ctx.Err().
func (e *Enricher) Enrich(ctx context.Context, batch *models.Batch) ([]*models.Record, error) {
	ctx, span := e.tracer.Start(ctx, "enricher.Enrich", trace.WithAttributes(
		attribute.Int("batch.seq", batch.Seq),
		attribute.Int("batch.size", batch.Len()),
	))
	defer span.End()

	if batch.Len() == 0 {
		return batch.Records, nil
	}

	resp, ok := e.fetch(ctx, batch)
	if !ok && ctx.Err() != nil {
		// The invocation was cancelled under us; nothing to degrade.
		return nil, ctx.Err()
	}
	span.SetAttributes(attribute.Bool("batch.degraded", !ok))

	fail := func(i int, err error) ([]*models.Record, error) {
		err = fmt.Errorf("batch %d: fingerprint %s: %w", batch.Seq, batch.Fingerprints[i], err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema violation")
		e.metrics.ObserveBatch(metrics.OutcomeFailed)
		return nil, err
	}

	// Derive everything first so a violation leaves the batch untouched.
	derived := make([]map[string]any, batch.Len())
	for i := range batch.Records {
		entry, found, err := resp.Entry(batch.Fingerprints[i])
		if err != nil {
			return fail(i, err)
		}
		if !found || entry.IsError() {
			continue
		}
		fields, err := knownFields(entry)
		if err != nil {
			return fail(i, err)
		}
		derived[i] = fields
	}

	known := 0
	for i, rec := range batch.Records {
		if derived[i] == nil {
			markUnknown(rec)
			continue
		}
		apply(rec, derived[i])
		known++
	}

	outcome := metrics.OutcomeEnriched
	if !ok {
		outcome = metrics.OutcomeDegraded
	}
	e.metrics.ObserveBatch(outcome)
	e.metrics.ObserveRecords(known, batch.Len()-known)

	return batch.Records, nil
}

// fetch runs the remote call. On failure it logs once and reports false; the
// caller then treats the response as empty.
func (e *Enricher) fetch(ctx context.Context, batch *models.Batch) (lookup.Response, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.Lookup(callCtx, fingerprint.Dedupe(batch.Fingerprints))
	e.metrics.ObserveLookup(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			e.logger.DebugContext(ctx, "bulk lookup abandoned",
				"invocation_id", requestcontext.InvocationID(ctx),
				"batch_seq", batch.Seq,
				"error", err,
			)
			return nil, false
		}
		category := lookup.CategoryOf(err)
		e.metrics.IncLookupFailure(string(category))
		e.logger.ErrorContext(ctx, "bulk lookup failed",
			"invocation_id", requestcontext.InvocationID(ctx),
			"batch_seq", batch.Seq,
			"batch_size", batch.Len(),
			"category", category,
			"error", err,
		)
		return nil, false
	}
	return resp, true
}

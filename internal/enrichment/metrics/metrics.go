// Package metrics provides observability for the enrichment stage.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch outcomes.
const (
	OutcomeEnriched = "enriched" // lookup succeeded
	OutcomeDegraded = "degraded" // lookup failed, records marked unknown
	OutcomeFailed   = "failed"   // task error, invocation aborted
)

// Invocation outcomes.
const (
	InvocationOK     = "ok"
	InvocationFailed = "failed"
)

// Metrics holds Prometheus metrics for the enrichment stage.
type Metrics struct {
	Batches         *prometheus.CounterVec
	Records         *prometheus.CounterVec
	LookupFailures  *prometheus.CounterVec
	LookupDuration  prometheus.Histogram
	BatchesInFlight prometheus.Gauge
	Invocations     *prometheus.CounterVec
}

// New creates the enrichment metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates the enrichment metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certenrich_batches_total",
			Help: "Total number of lookup batches processed, by outcome",
		}, []string{"outcome"}),
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certenrich_records_total",
			Help: "Total number of records enriched, by whether the certificate was known",
		}, []string{"known"}),
		LookupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certenrich_lookup_failures_total",
			Help: "Total number of failed bulk lookup calls, by failure category",
		}, []string{"category"}),
		LookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certenrich_lookup_duration_seconds",
			Help:    "Latency of bulk lookup calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		BatchesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "certenrich_batches_in_flight",
			Help: "Number of batch tasks currently executing",
		}),
		Invocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certenrich_invocations_total",
			Help: "Total number of pipeline invocations, by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveBatch counts a finished batch.
func (m *Metrics) ObserveBatch(outcome string) {
	if m != nil {
		m.Batches.WithLabelValues(outcome).Inc()
	}
}

// ObserveRecords counts enriched records split by known/unknown.
func (m *Metrics) ObserveRecords(known, unknown int) {
	if m != nil {
		m.Records.WithLabelValues("true").Add(float64(known))
		m.Records.WithLabelValues("false").Add(float64(unknown))
	}
}

// ObserveLookup records the latency of one lookup call.
func (m *Metrics) ObserveLookup(d time.Duration) {
	if m != nil {
		m.LookupDuration.Observe(d.Seconds())
	}
}

// IncLookupFailure counts a failed lookup call.
func (m *Metrics) IncLookupFailure(category string) {
	if m != nil {
		m.LookupFailures.WithLabelValues(category).Inc()
	}
}

// BatchStarted increments the in-flight gauge.
func (m *Metrics) BatchStarted() {
	if m != nil {
		m.BatchesInFlight.Inc()
	}
}

// BatchFinished decrements the in-flight gauge.
func (m *Metrics) BatchFinished() {
	if m != nil {
		m.BatchesInFlight.Dec()
	}
}

// ObserveInvocation counts a finished invocation.
func (m *Metrics) ObserveInvocation(outcome string) {
	if m != nil {
		m.Invocations.WithLabelValues(outcome).Inc()
	}
}

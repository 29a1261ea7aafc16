package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"certenrich/internal/enrichment/batcher"
	"certenrich/internal/enrichment/enricher"
	enrichmetrics "certenrich/internal/enrichment/metrics"
	"certenrich/internal/lookup"
	"certenrich/internal/platform/config"
	"certenrich/internal/platform/logger"
)

// app holds the dependencies every mode shares.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	closer   io.Closer
	registry *prometheus.Registry
	batcher  *batcher.Batcher
}

// newApp loads configuration and wires the enrichment pipeline. An empty
// path configures from the environment only.
func newApp(configPath string) (*app, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := enrichmetrics.NewWithRegisterer(reg)

	client, err := lookup.New(cfg.API)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to build lookup client: %w", err)
	}
	e, err := enricher.New(client,
		enricher.WithLogger(log),
		enricher.WithMetrics(m),
		enricher.WithTimeout(cfg.API.Timeout),
	)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	b, err := batcher.New(e, cfg.Enrichment,
		batcher.WithLogger(log),
		batcher.WithMetrics(m),
	)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   log,
		closer:   closer,
		registry: reg,
		batcher:  b,
	}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

// Command certenrich enriches certificate records with bulk-lookup results.
//
//	certenrich [--config path] [stream|serve|kafka]
//
// stream (the default) reads NDJSON records on stdin and writes them to
// stdout, serve exposes POST /v1/enrich, and kafka enriches between two
// topics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"certenrich/internal/platform/httpserver"
	"certenrich/internal/platform/metrics"
	httptransport "certenrich/internal/transport/http"
	"certenrich/internal/transport/kafka"
	"certenrich/internal/transport/stream"
)

func newRootCmd() *cobra.Command {
	var configPath string

	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Enrich NDJSON records from stdin to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(configPath, func(a *app) error {
				dec := stream.NewDecoder(a.cfg.Enrichment.FingerprintField)
				return stream.Pipe(cmd.Context(), a.batcher, dec, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}

	rootCmd := &cobra.Command{
		Use:           "certenrich",
		Short:         "Certificate fingerprint enrichment",
		Long:          "Enriches certificate records with metadata and trust verdicts from a bulk certificate lookup service",
		Args:          cobra.NoArgs,
		RunE:          streamCmd.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (defaults and environment only when empty)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the enrichment HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(configPath, func(a *app) error {
				return serve(cmd.Context(), a)
			})
		},
	}

	kafkaCmd := &cobra.Command{
		Use:   "kafka",
		Short: "Enrich records between two Kafka topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(configPath, func(a *app) error {
				return consume(cmd.Context(), a)
			})
		},
	}

	rootCmd.AddCommand(streamCmd, serveCmd, kafkaCmd)
	return rootCmd
}

func withApp(configPath string, fn func(*app) error) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func serve(ctx context.Context, a *app) error {
	h, err := httptransport.New(a.batcher, a.cfg.Enrichment.FingerprintField, a.logger)
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(h, httptransport.RouterConfig{
		Logger:    a.logger,
		Metrics:   metrics.NewWithRegisterer(a.registry),
		Gatherer:  a.registry,
		AuthToken: a.cfg.Server.AuthToken,
	})
	srv := httpserver.New(a.cfg.Server.Addr, router)
	return httpserver.Run(ctx, srv, a.cfg.Server.ShutdownTimeout, a.logger)
}

func consume(ctx context.Context, a *app) error {
	client, err := kafka.NewClient(a.cfg.Kafka)
	if err != nil {
		return err
	}
	defer client.Close()

	if a.cfg.Kafka.CreateTopics {
		if err := kafka.EnsureTopics(ctx, client, a.cfg.Kafka); err != nil {
			return err
		}
	}

	consumer, err := kafka.New(client, a.batcher, a.cfg.Kafka, a.cfg.Enrichment.FingerprintField,
		kafka.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "kafka consumer started",
		"input_topic", a.cfg.Kafka.InputTopic,
		"output_topic", a.cfg.Kafka.OutputTopic,
		"group", a.cfg.Kafka.Group,
	)
	return consumer.Run(ctx)
}

// main wires the signal context and runs the selected mode. Business logic
// lives in internal packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "certenrich:", err)
		stop()
		os.Exit(1)
	}
}

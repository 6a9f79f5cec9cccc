// driftwatch consumes content-metric events from the data pipeline, compares
// them against statistical baselines, and publishes ranked anomaly alerts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/baseline"
	"github.com/driftwatch/driftwatch/internal/conf"
	"github.com/driftwatch/driftwatch/internal/datastore"
	"github.com/driftwatch/driftwatch/internal/datastore/repository"
	"github.com/driftwatch/driftwatch/internal/detector"
	"github.com/driftwatch/driftwatch/internal/errors"
	"github.com/driftwatch/driftwatch/internal/ingest"
	"github.com/driftwatch/driftwatch/internal/kibana"
	"github.com/driftwatch/driftwatch/internal/kvstore"
	"github.com/driftwatch/driftwatch/internal/logger"
	"github.com/driftwatch/driftwatch/internal/telemetry"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "driftwatch",
		Short:   "Content-metric anomaly detection service",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:  settings.Logging.Level,
		Format: settings.Logging.Format,
	})

	if err := errors.Init(settings.Telemetry.SentryDSN, "driftwatch@"+version); err != nil {
		log.Warn("error telemetry disabled", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := datastore.Open(settings.Database.DSN)
	if err != nil {
		return err
	}
	repo := repository.NewBaselineRepository(db)

	cache, err := baseline.New(ctx, repo, baseline.ConfigFromSettings(settings), log)
	if err != nil {
		return fmt.Errorf("failed to warm baseline caches: %w", err)
	}

	countries := kvstore.New(&settings.Redis)
	defer countries.Close() //nolint:errcheck // shutdown path
	if err := countries.Ping(ctx); err != nil {
		return err
	}

	var links detector.LinkResolver
	if settings.Kibana.BaseURL != "" {
		objects := kibana.NewObjectCache(
			settings.Kibana.BaseURL,
			settings.Kibana.APIKey,
			settings.Kibana.CacheTTL.Std(),
			log)
		links = kibana.NewLinkGenerator(settings.Kibana.BaseURL, objects)
	} else {
		log.Warn("kibana base URL not configured, alerts will carry no deep links")
	}

	agg := detector.NewAggregator(
		[]detector.Detector{
			detector.NewEngagementDetector(cache),
			detector.NewRepostDetector(countries),
		},
		links,
		log)

	if settings.Telemetry.ListenAddr != "" {
		metricsSrv := telemetry.NewServer(settings.Telemetry.ListenAddr, log)
		go metricsSrv.Start()
		defer metricsSrv.Stop()
	}

	consumer := ingest.NewConsumer(settings.Broker, agg, log)
	log.Info("driftwatch starting", logger.String("version", version))
	return consumer.Run(ctx)
}

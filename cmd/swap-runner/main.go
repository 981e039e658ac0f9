package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/config"
	"github.com/platinummonkey/tenantcart/pkg/observability"
	"github.com/platinummonkey/tenantcart/pkg/storage"
	"github.com/platinummonkey/tenantcart/pkg/swaps"
)

var (
	runOnce     = flag.Bool("run-once", false, "Apply due swaps once and exit")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	metricsAddr = flag.String("metrics-addr", ":9091", "Address serving /metrics, empty to disable")
)

// Swap runner applies scheduled plan swaps once they fall due
func main() {
	flag.Parse()
	logger := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	opts := []swaps.Option{
		swaps.WithLogger(logger),
		swaps.WithWorkers(cfg.Billing.SwapRunnerWorkers),
		swaps.WithBatchSize(cfg.Billing.SwapRunnerBatchSize),
	}
	if *metricsAddr != "" && !*runOnce {
		registry := prometheus.NewRegistry()
		opts = append(opts, swaps.WithMetrics(observability.NewMetrics(registry)))

		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler(registry))
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		defer server.Close()
	}

	runner := swaps.NewRunner(swaps.NewPostgresStore(db), billing.NewPostgresStore(db), opts...)

	if *runOnce {
		applied, err := runner.RunOnce(ctx)
		if err != nil {
			logger.Fatalf("Swap run failed: %v", err)
		}
		logger.Infof("Applied %d swaps", applied)
		return
	}

	if err := runner.Start(ctx, cfg.Billing.SwapRunnerSchedule); err != nil {
		logger.Fatalf("Failed to start swap runner: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	<-runner.Stop().Done()
	logger.Info("Swap runner stopped")
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart"
	"github.com/platinummonkey/tenantcart/pkg/catalog"
	"github.com/platinummonkey/tenantcart/pkg/checkout"
	"github.com/platinummonkey/tenantcart/pkg/config"
	"github.com/platinummonkey/tenantcart/pkg/httputil"
	"github.com/platinummonkey/tenantcart/pkg/observability"
	"github.com/platinummonkey/tenantcart/pkg/sites"
	"github.com/platinummonkey/tenantcart/pkg/storage"
	"github.com/platinummonkey/tenantcart/pkg/tax"
)

var version = "dev"

const (
	productCacheSize = 1024
	productCacheTTL  = 5 * time.Minute
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("tenantcart stopped with an error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := storage.OpenPostgres(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if cfg.Storage.MigrateOnStart {
		if err := storage.Migrate(db); err != nil {
			db.Close()
			return err
		}
		logger.Info("Database migrations applied")
	}

	var redisClient *redis.Client
	var drafts checkout.DraftStore
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.OpenRedis(ctx, cfg.Storage)
		if err != nil {
			db.Close()
			return err
		}
		drafts = checkout.NewRedisDraftStore(redisClient, cfg.Billing.DraftTTL)
	}

	taxes, err := taxResolver(ctx, cfg.Billing, logger)
	if err != nil {
		db.Close()
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	opts := []checkout.Option{
		checkout.WithLogger(logger),
		checkout.WithMetrics(metrics),
		checkout.WithEmailVerification(cfg.Billing.RequireEmailVerification),
	}
	if drafts != nil {
		opts = append(opts, checkout.WithDrafts(drafts))
	}
	if cfg.Observability.OTelEnabled {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			logger.WithError(err).Warn("OpenTelemetry metrics unavailable")
		} else {
			opts = append(opts, checkout.WithOTelMetrics(otelMetrics))
		}
	}

	gateways := checkout.NewRegistry()
	if cfg.Billing.ManualGatewayInstructions != "" {
		gateways.Register(checkout.ManualGateway{Instructions: cfg.Billing.ManualGatewayInstructions})
	}
	logger.Infof("Payment gateways: %v", gateways.IDs())

	processor := checkout.NewProcessor(cartDeps(db, taxes, cfg, logger), checkout.NewPostgresTxRunner(db), gateways, opts...)

	router := mux.NewRouter()
	checkout.NewHandlers(processor, drafts).RegisterRoutes(router)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		observability.HTTPMetricsMiddleware(metrics),
	)(router)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(handler, "tenantcart"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthRouter(db, redisClient, registry, cfg.Observability.MetricsEnabled),
		ReadTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.Register(func(ctx context.Context) error { return observability.ShutdownOTel(ctx, providers, logger) })
	shutdown.Register(func(ctx context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.Register(func(ctx context.Context) error { return redisClient.Close() })
	}
	shutdown.Register(healthServer.Shutdown)

	serverErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			logger.Infof("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
		}(srv)
	}

	signalled := make(chan error, 1)
	go func() { signalled <- shutdown.WaitForSignal() }()

	select {
	case err := <-serverErr:
		if shutdownErr := shutdown.Shutdown(context.Background()); shutdownErr != nil {
			logger.WithError(shutdownErr).Error("Shutdown after server failure was incomplete")
		}
		return err
	case err := <-signalled:
		return err
	}
}

func cartDeps(db *sql.DB, taxes tax.Resolver, cfg *config.Config, logger *observability.Logger) cart.Deps {
	billingStore := billing.NewPostgresStore(db)
	siteStore := sites.NewPostgresStore(db)
	return cart.Deps{
		Products:     catalog.NewCachedRepository(catalog.NewPostgresRepository(db), productCacheSize, productCacheTTL),
		Customers:    billingStore,
		Memberships:  billingStore,
		Payments:     billingStore,
		Discounts:    billingStore,
		Taxes:        taxes,
		Sites:        siteStore,
		Entitlements: sites.NewChecker(siteStore),
		Settings:     cfg.Billing.CartSettings(),
		Logger:       logger,
	}
}

// taxResolver loads the rate file and keeps it fresh until ctx ends.
func taxResolver(ctx context.Context, cfg config.BillingConfig, logger *observability.Logger) (tax.Resolver, error) {
	if cfg.TaxRatesFile == "" {
		return tax.NewStaticResolver(nil), nil
	}
	resolver, err := tax.NewFileResolver(cfg.TaxRatesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load tax rates: %w", err)
	}
	go func() {
		defer observability.RecoverPanic(logger, "tax rate watcher")
		if err := resolver.Watch(ctx); err != nil {
			logger.WithError(err).Warn("Tax rate file is no longer watched")
		}
	}()
	return resolver, nil
}

func healthRouter(db *sql.DB, redisClient *redis.Client, registry *prometheus.Registry, metricsEnabled bool) http.Handler {
	health := observability.NewHealthChecker(db, redisClient, version)
	router := mux.NewRouter()
	router.HandleFunc("/health/live", health.Liveness).Methods("GET")
	router.HandleFunc("/health/ready", health.Readiness).Methods("GET")
	if metricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")
	}
	return router
}

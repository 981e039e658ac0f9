// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown for the cart
// engine binaries.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithCustomer(42).WithField("cart_type", "upgrade").Info("cart built")
//
// Loggers travel on the request context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("gateway slow")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordCartBuild("new", nil)
//	metrics.RecordOrder("manual", "pending")
//
// # Tracing
//
// InitOTel installs OTLP trace and metric exporters when enabled. Spans are
// started through Tracer():
//
//	ctx, span := observability.Tracer().Start(ctx, "checkout.process")
//	defer span.End()
//
// # Panics
//
// NewPanicError captures a recovered value together with its stack so callers
// can surface it as an ordinary error.
package observability

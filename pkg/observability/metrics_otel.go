package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds the OpenTelemetry instruments exported over OTLP
type OTelMetrics struct {
	ordersTotal   metric.Int64Counter
	orderDuration metric.Float64Histogram
	cartTotal     metric.Float64Histogram
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(instrumentationName)

	m := &OTelMetrics{}
	var err error

	m.ordersTotal, err = meter.Int64Counter(
		"tenantcart.orders",
		metric.WithDescription("Submitted orders"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders counter: %w", err)
	}

	m.orderDuration, err = meter.Float64Histogram(
		"tenantcart.order.duration",
		metric.WithDescription("Order submission duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order duration histogram: %w", err)
	}

	m.cartTotal, err = meter.Float64Histogram(
		"tenantcart.cart.total",
		metric.WithDescription("Amount due on submitted carts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart total histogram: %w", err)
	}

	return m, nil
}

// RecordOrder records one submission. A nil receiver is a no-op.
func (m *OTelMetrics) RecordOrder(ctx context.Context, gateway, cartType, result string, total float64, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("gateway", gateway),
		attribute.String("cart_type", cartType),
		attribute.String("result", result),
	)
	m.ordersTotal.Add(ctx, 1, attrs)
	m.orderDuration.Record(ctx, duration.Seconds(), attrs)
	if result == "ok" {
		m.cartTotal.Record(ctx, total, attrs)
	}
}

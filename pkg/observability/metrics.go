package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the cart engine
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cart and checkout metrics
	CartBuildsTotal          *prometheus.CounterVec
	CartBuildDuration        *prometheus.HistogramVec
	OrdersTotal              *prometheus.CounterVec
	ProrationCredit          prometheus.Histogram
	PendingPaymentsCancelled prometheus.Counter

	// Scheduled swap metrics
	SwapsAppliedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantcart_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantcart_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CartBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantcart_cart_builds_total",
				Help: "Total number of cart builds by classification and outcome",
			},
			[]string{"cart_type", "result"},
		),
		CartBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantcart_cart_build_duration_seconds",
				Help:    "Cart build duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"cart_type"},
		),
		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantcart_orders_total",
				Help: "Total number of submitted orders by gateway and result",
			},
			[]string{"gateway", "result"},
		),
		ProrationCredit: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantcart_proration_credit",
				Help:    "Credit granted for the unused part of a previous membership",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		PendingPaymentsCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantcart_pending_payments_cancelled_total",
				Help: "Pending payments cancelled because a newer cart superseded them",
			},
		),
		SwapsAppliedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantcart_scheduled_swaps_total",
				Help: "Scheduled membership swaps processed by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CartBuildsTotal,
		m.CartBuildDuration,
		m.OrdersTotal,
		m.ProrationCredit,
		m.PendingPaymentsCancelled,
		m.SwapsAppliedTotal,
	)

	return m
}

// RecordCartBuild counts one cart build. A nil receiver is a no-op so callers
// can run without metrics.
func (m *Metrics) RecordCartBuild(cartType string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	if cartType == "" {
		cartType = "unknown"
	}
	m.CartBuildsTotal.WithLabelValues(cartType, result).Inc()
	m.CartBuildDuration.WithLabelValues(cartType).Observe(duration.Seconds())
}

// RecordOrder counts one order submission.
func (m *Metrics) RecordOrder(gateway, result string) {
	if m == nil {
		return
	}
	if gateway == "" {
		gateway = "none"
	}
	m.OrdersTotal.WithLabelValues(gateway, result).Inc()
}

// RecordProrationCredit observes a granted credit amount.
func (m *Metrics) RecordProrationCredit(amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.ProrationCredit.Observe(amount)
}

// RecordCancelledPayments adds to the superseded payments counter.
func (m *Metrics) RecordCancelledPayments(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PendingPaymentsCancelled.Add(float64(n))
}

// RecordSwap counts one processed scheduled swap.
func (m *Metrics) RecordSwap(result string) {
	if m == nil {
		return
	}
	m.SwapsAppliedTotal.WithLabelValues(result).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Package metrics provides Prometheus instrumentation for the ledger engine.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmx/ledger-engine/internal/model"
)

var (
	// OperationsTotal counts engine calls, partitioned by outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Total number of engine operations",
	}, []string{"engine", "operation", "result"})

	// OperationLatency tracks engine call latency.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine", "operation"})

	// EventsTotal counts committed events.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_total",
		Help: "Total number of committed ledger events",
	}, []string{"engine", "type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// RateLimitRejections counts requests refused by the API rate limiter.
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter",
	})

	// RiskLimitRejections counts position opens rejected by the risk limiter.
	RiskLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_risk_limit_rejections_total",
		Help: "Perpetual opens rejected by the risk limiter",
	})

	// SwapVolume tracks cumulative swap volume per asset.
	SwapVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_swap_volume_total",
		Help: "Cumulative swapped amount in base units",
	}, []string{"asset"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe records the outcome and latency of one engine call.
func Observe(engine, operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(engine, operation, result).Inc()
	OperationLatency.WithLabelValues(engine, operation).Observe(time.Since(start).Seconds())
}

// Emitter counts committed events. It implements events.Emitter.
type Emitter struct{}

func (Emitter) Emit(_ context.Context, ev model.Event) {
	EventsTotal.WithLabelValues(ev.Engine, ev.Type).Inc()

	if ev.Type != model.EventBought && ev.Type != model.EventSold {
		return
	}
	// Float precision is acceptable for a monitoring counter.
	for _, leg := range [][2]string{{"sell_asset", "sell_amount"}, {"buy_asset", "buy_amount"}} {
		amount, err := strconv.ParseFloat(ev.Attributes[leg[1]], 64)
		if err != nil || amount < 0 {
			continue
		}
		SwapVolume.WithLabelValues(ev.Attributes[leg[0]]).Add(amount)
	}
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

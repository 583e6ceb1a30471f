// Package metrics provides Prometheus instrumentation for the position engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PlansTotal counts computed plans, partitioned by kind (open, rebalance).
	PlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnv_plans_total",
		Help: "Total number of plans computed",
	}, []string{"kind"})

	// PlanLatency tracks time from request decode to stored plan.
	PlanLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dnv_plan_latency_seconds",
		Help:    "Plan computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// VaultsRegistered tracks the number of vaults in the registry.
	VaultsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnv_vaults_registered",
		Help: "Number of registered delta-neutral vaults",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnv_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnv_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dnv_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// LimitRejections counts deposits rejected by the exposure limiter.
	LimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnv_limit_rejections_total",
		Help: "Deposits rejected by the exposure limiter",
	}, []string{"limit"})

	// StalePriceRejections counts plans refused because a price was too old.
	StalePriceRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dnv_stale_price_rejections_total",
		Help: "Plans rejected because an oracle price was stale",
	})

	// PlannedBorrow tracks cumulative planned borrow per vault and leg, in
	// whole tokens.
	PlannedBorrow = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnv_planned_borrow_total",
		Help: "Cumulative borrow amount in planned positions",
	}, []string{"vault", "leg"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern so vault symbols and plan ids
// don't explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
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

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

// Package metrics provides Prometheus instrumentation for the wager engine.
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
	// BetsTotal counts accepted bets.
	BetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_bets_total",
		Help: "Total number of accepted bets",
	})

	// StakeVolume tracks cumulative staked amount in whole token units.
	StakeVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_stake_volume_total",
		Help: "Cumulative staked amount",
	})

	// PayoutVolume tracks cumulative amounts paid out, partitioned by kind
	// (refund, reward, commission, treasury).
	PayoutVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_payout_volume_total",
		Help: "Cumulative amount transferred out of events",
	}, []string{"kind"})

	// SettlementsTotal counts events closed, partitioned by result.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_settlements_total",
		Help: "Total number of events closed",
	}, []string{"result"})

	// RejectionsTotal counts operations refused by the ledger or registry.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_rejections_total",
		Help: "Operations rejected, by operation",
	}, []string{"op"})

	// OperationLatency tracks registry transaction latency.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wager_operation_latency_seconds",
		Help:    "Registry operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// OpenEvents tracks the number of events still accepting a result.
	OpenEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_open_events",
		Help: "Number of currently open events",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// PublishFailures counts record batches that could not be broadcast.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_publish_failures_total",
		Help: "Record batches that failed to publish",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wager_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
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

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

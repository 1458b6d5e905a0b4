// Package metrics provides Prometheus instrumentation for the betting engine.
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
	// BetsTotal counts bets placed, partitioned by option index.
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_bets_total",
		Help: "Total number of bets placed",
	}, []string{"option"})

	// BetLatency tracks PlaceBet latency, including the market lock wait.
	BetLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oddspool_bet_latency_seconds",
		Help:    "Bet execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"option"})

	// BetRejections counts bets rejected before commit, by reason.
	BetRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_bet_rejections_total",
		Help: "Bets rejected before commit",
	}, []string{"reason"})

	// CashoutsTotal counts early exits.
	CashoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddspool_cashouts_total",
		Help: "Total number of early exits",
	})

	// SettlementsTotal counts closed markets by outcome (settled, canceled).
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_settlements_total",
		Help: "Markets settled or canceled",
	}, []string{"outcome"})

	// ClaimsTotal counts claimed bets by resulting status.
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_claims_total",
		Help: "Bets closed by claimWinnings",
	}, []string{"status"})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddspool_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddspool_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oddspool_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// MarketVolume tracks cumulative staked amount per market and option.
	// Amounts above float64 precision are approximated.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_market_volume_total",
		Help: "Cumulative staked amount in base units",
	}, []string{"market_id", "option"})
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

		// Route pattern, not the raw path, to bound label cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
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

// Hijack lets the WebSocket upgrader take over connections that pass
// through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

// Package observability holds the Prometheus metrics for the ledger,
// friendship and transaction engines and the HTTP layer.
//
// Metrics are registered on the default registry via promauto and exposed
// by the API server at /metrics when enabled.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerRecomputes counts full balance recomputations.
var LedgerRecomputes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "ledger",
	Name:      "recomputes_total",
	Help:      "Total wholesale balance recomputations.",
})

// LiveSubscribers tracks open live balance streams.
var LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "splitpal",
	Subsystem: "ledger",
	Name:      "live_subscribers",
	Help:      "Number of connected live balance streams.",
})

// ─── Friendship Metrics ─────────────────────────────────────────────────────

// FriendRequestsSent counts persisted friend requests.
var FriendRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "friends",
	Name:      "requests_sent_total",
	Help:      "Total friend requests created.",
})

// FriendRequestsDuplicate counts sends rejected because a pending request existed.
var FriendRequestsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "friends",
	Name:      "requests_duplicate_total",
	Help:      "Total friend requests rejected as duplicates.",
})

// FriendRequestsAccepted counts committed accept batches.
var FriendRequestsAccepted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "friends",
	Name:      "requests_accepted_total",
	Help:      "Total friend requests accepted.",
})

// ProfilesHealed counts placeholder profiles synthesized during accept.
var ProfilesHealed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "friends",
	Name:      "profiles_healed_total",
	Help:      "Total missing profiles restored with placeholders, by role.",
}, []string{"role"})

// ─── Transaction Metrics ────────────────────────────────────────────────────

// TransactionsCreated counts new transactions by type.
var TransactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "transactions",
	Name:      "created_total",
	Help:      "Total transactions created, by type.",
}, []string{"type"})

// TransactionsUpdated counts edits.
var TransactionsUpdated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "transactions",
	Name:      "updated_total",
	Help:      "Total transaction edits.",
})

// ─── Identity Metrics ───────────────────────────────────────────────────────

// SignIns counts successful sign-ins and sign-ups by provider.
var SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "account",
	Name:      "sign_ins_total",
	Help:      "Total successful sign-ins, by provider and kind.",
}, []string{"provider", "kind"})

// ─── HTTP Metrics ───────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "splitpal",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests, by method, route and status.",
}, []string{"method", "route", "status"})

// HTTPLatency tracks request latency by route.
var HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "splitpal",
	Subsystem: "http",
	Name:      "latency_ms",
	Help:      "HTTP request latency in milliseconds.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
}, []string{"route"})

// HTTPMetrics records HTTPRequests and HTTPLatency for every request.
// The chi route pattern is used as the label to keep cardinality bounded.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPLatency.WithLabelValues(route).Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}

// Package metrics holds the Prometheus collectors exported by the server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "xenova"

var (
	// HTTPRequestsTotal counts API requests by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled by the API.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks API latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration observed at the API layer.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})

	// EntitlementDenials counts locked-module and role rejections.
	EntitlementDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlements",
		Name:      "denials_total",
		Help:      "Requests rejected by module entitlement or role visibility.",
	}, []string{"module", "reason"})

	// AIRequestsTotal counts AI attempts by action and outcome.
	AIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "requests_total",
		Help:      "AI action attempts by action and outcome (success, failure, quota_exhausted, locked).",
	}, []string{"action", "outcome"})

	// AITokensTotal counts tokens consumed by successful AI attempts.
	AITokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "tokens_total",
		Help:      "Tokens consumed by successful AI attempts.",
	}, []string{"action"})

	// AIRequestDuration tracks provider latency.
	AIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "AI provider call duration in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	}, []string{"action"})

	// AIQuotaConsumeRaces counts successful attempts whose quota unit was
	// taken by a concurrent request.
	AIQuotaConsumeRaces = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "quota_consume_races_total",
		Help:      "Successful AI attempts that found the quota exhausted at consume time.",
	})

	// UsageFeedEvents counts usage feed publications by outcome.
	UsageFeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "usage_feed",
		Name:      "events_total",
		Help:      "AI usage feed events by outcome (published, dropped, failed).",
	}, []string{"outcome"})

	// RateLimitRejections counts requests refused by a rate limiter.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Requests rejected by rate limiting.",
	}, []string{"scope"})

	// TenantsByTier tracks active tenants per tier.
	TenantsByTier = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tenants_active",
		Help:      "Number of active tenants by tier.",
	}, []string{"tier"})
)

// RecordHTTPRequest records one completed API request.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordAIAttempt records one AI attempt.
func RecordAIAttempt(action, outcome string, tokens int64, elapsed time.Duration) {
	AIRequestsTotal.WithLabelValues(action, outcome).Inc()
	if tokens > 0 {
		AITokensTotal.WithLabelValues(action).Add(float64(tokens))
	}
	if elapsed > 0 {
		AIRequestDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}

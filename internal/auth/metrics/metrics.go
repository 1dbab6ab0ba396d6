package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storygate/internal/platform/circuit"
)

// Metrics provides observability for the auth module: authentication and
// refresh outcomes, session lifecycle, and circuit breaker activity.
type Metrics struct {
	AuthAttempts    *prometheus.CounterVec
	RefreshAttempts *prometheus.CounterVec
	SessionsEvicted prometheus.Counter
	SessionsRevoked prometheus.Counter
	AuthDuration    *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	BreakerRejects  *prometheus.CounterVec
	BreakerCalls    *prometheus.CounterVec
	KeyCacheFetches *prometheus.CounterVec
}

// New creates a Metrics instance with all auth module metrics registered.
func New() *Metrics {
	return &Metrics{
		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storygate_auth_attempts_total",
			Help: "Authentication attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		RefreshAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storygate_refresh_attempts_total",
			Help: "Token refresh attempts by outcome",
		}, []string{"outcome"}),
		SessionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storygate_sessions_evicted_total",
			Help: "Sessions revoked by the per-user cap",
		}),
		SessionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "storygate_sessions_revoked_total",
			Help: "Sessions revoked by explicit client request",
		}),
		AuthDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storygate_auth_duration_seconds",
			Help:    "Duration of authentication operations by provider",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storygate_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"breaker"}),
		BreakerRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storygate_circuit_breaker_rejections_total",
			Help: "Calls rejected by an open circuit breaker",
		}, []string{"breaker"}),
		BreakerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storygate_circuit_breaker_calls_total",
			Help: "Guarded calls by breaker and outcome (success, failure, timeout, rejected)",
		}, []string{"breaker", "outcome"}),
		KeyCacheFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "storygate_key_cache_fetches_total",
			Help: "JWKS fetches by provider and outcome",
		}, []string{"provider", "outcome"}),
	}
}

// RecordAuthAttempt records an authentication outcome for a provider.
func (m *Metrics) RecordAuthAttempt(provider, outcome string) {
	m.AuthAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordRefreshAttempt records a token refresh outcome.
func (m *Metrics) RecordRefreshAttempt(outcome string) {
	m.RefreshAttempts.WithLabelValues(outcome).Inc()
}

// ObserveAuthDuration records the duration of an authentication operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAuthDuration(provider string, start time.Time) {
	m.AuthDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// BreakerStateChanged implements circuit.Sink.
func (m *Metrics) BreakerStateChanged(name string, _, to circuit.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

// BreakerRejected implements circuit.Sink.
func (m *Metrics) BreakerRejected(name string) {
	m.BreakerRejects.WithLabelValues(name).Inc()
}

// BreakerCallOutcome implements circuit.Sink.
func (m *Metrics) BreakerCallOutcome(name, outcome string) {
	m.BreakerCalls.WithLabelValues(name, outcome).Inc()
}

// RecordKeyCacheFetch records a JWKS fetch outcome for a provider.
func (m *Metrics) RecordKeyCacheFetch(provider, outcome string) {
	m.KeyCacheFetches.WithLabelValues(provider, outcome).Inc()
}

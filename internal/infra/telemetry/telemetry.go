package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/atymri/Promptino/internal/core/port"
)

const metricsNamespace = "promptino"

// AuthMetrics records authentication outcomes as Prometheus collectors.
type AuthMetrics struct {
	logins   *prometheus.CounterVec
	refresh  *prometheus.CounterVec
	lockouts prometheus.Counter
	duration prometheus.Histogram
}

// NewAuthMetrics registers the auth collectors with reg, or the default registerer when reg is nil.
func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &AuthMetrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Login attempts partitioned by outcome.",
		}, []string{"outcome"}),
		refresh: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh token exchanges partitioned by outcome.",
		}, []string{"outcome"}),
		lockouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Accounts locked out after repeated password failures.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "lockout_minutes",
			Help:      "Length of applied lockouts in minutes.",
			Buckets:   []float64{5, 10, 20, 40, 80, 160, 320, 640, 1280},
		}),
	}
}

// ObserveLogin counts a login attempt.
func (m *AuthMetrics) ObserveLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// ObserveRefresh counts a refresh exchange.
func (m *AuthMetrics) ObserveRefresh(outcome string) {
	m.refresh.WithLabelValues(outcome).Inc()
}

// ObserveLockout counts a lockout and records its length.
func (m *AuthMetrics) ObserveLockout(minutes int) {
	m.lockouts.Inc()
	m.duration.Observe(float64(minutes))
}

var _ port.AuthObserver = (*AuthMetrics)(nil)

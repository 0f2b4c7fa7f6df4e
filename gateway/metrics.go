package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics carries the gateway's Prometheus instruments. A nil *metrics
// is valid and records nothing, so instrumentation stays optional.
type metrics struct {
	openConnections prometheus.Gauge
	requests        *prometheus.CounterVec
	pushes          *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	sessionsEnded   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	factory := promauto.With(reg)
	return &metrics{
		openConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ethgate_open_connections",
			Help: "Current number of open client connections",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ethgate_requests_total",
			Help: "Total number of requests by outcome",
		}, []string{"outcome"}),
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ethgate_pushes_total",
			Help: "Total number of executor push events by outcome",
		}, []string{"outcome"}),
		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ethgate_active_subscriptions",
			Help: "Current number of routed subscriptions",
		}),
		sessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ethgate_sessions_ended_total",
			Help: "Total number of sessions ended by idle expiry",
		}),
	}
}

const (
	outcomeForwarded   = "forwarded"
	outcomeFastPath    = "fast_path"
	outcomeRejected    = "rejected"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"

	outcomeRouted  = "routed"
	outcomeDropped = "dropped"
)

func (m *metrics) connOpened() {
	if m == nil {
		return
	}
	m.openConnections.Inc()
}

func (m *metrics) connClosed() {
	if m == nil {
		return
	}
	m.openConnections.Dec()
}

func (m *metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *metrics) push(outcome string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(outcome).Inc()
}

func (m *metrics) subscriptionAdded() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

func (m *metrics) subscriptionRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.subscriptions.Sub(float64(n))
}

func (m *metrics) sessionEnded() {
	if m == nil {
		return
	}
	m.sessionsEnded.Inc()
}

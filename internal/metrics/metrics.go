// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "walldraft"

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	collabSessions   prometheus.Gauge
	collabBroadcasts prometheus.Counter
	collabDropped    prometheus.Counter
	quotaDenials     *prometheus.CounterVec
	shareOperations  *prometheus.CounterVec
	upgradeResolved  *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		collabSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "sessions",
			Help:      "Number of open collaboration sessions.",
		}),
		collabBroadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "broadcasts_total",
			Help:      "Total number of wall updates fanned out to sessions.",
		}),
		collabDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a session queue was full.",
		}),
		quotaDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "denials_total",
			Help:      "Creation requests denied by plan limits.",
		}, []string{"kind"}),
		shareOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "share",
			Name:      "operations_total",
			Help:      "Share link and grant operations.",
		}, []string{"op"}),
		upgradeResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upgrade",
			Name:      "resolved_total",
			Help:      "Plan upgrade requests moved to a terminal status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.collabSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.collabSessions.Dec()
	}
}

func (m *Metrics) Broadcast(delivered int) {
	if m != nil {
		m.collabBroadcasts.Add(float64(delivered))
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.collabDropped.Inc()
	}
}

func (m *Metrics) QuotaDenied(kind string) {
	if m != nil {
		m.quotaDenials.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ShareOperation(op string) {
	if m != nil {
		m.shareOperations.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) UpgradeResolved(status string) {
	if m != nil {
		m.upgradeResolved.WithLabelValues(status).Inc()
	}
}

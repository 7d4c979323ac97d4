// ABOUTME: Prometheus collectors describing autopilot sessions and decisions
// ABOUTME: A nil *Metrics is valid and records nothing
package autopilot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "leadpilot"

// Metrics exposes Prometheus collectors that report autopilot activity.
type Metrics struct {
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	actionsQueued   *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	oracleDuration  *prometheus.HistogramVec
}

// NewMetrics registers the autopilot collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "autopilot",
			Name:      "sessions_started_total",
			Help:      "Autopilot sessions started.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "autopilot",
			Name:      "sessions_ended_total",
			Help:      "Autopilot sessions that reached a terminal status.",
		}, []string{"status"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "autopilot",
			Name:      "sessions_active",
			Help:      "Autopilot sessions that are running or paused.",
		}),
		actionsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "autopilot",
			Name:      "actions_queued_total",
			Help:      "Actions added to session queues by type and compliance status.",
		}, []string{"type", "compliance"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "autopilot",
			Name:      "decisions_total",
			Help:      "Audited decisions by user decision and source.",
		}, []string{"decision", "source"}),
		oracleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Duration of individual reasoning oracle attempts.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"outcome"}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.sessionsStarted, m.sessionsEnded, m.sessionsActive,
			m.actionsQueued, m.decisions, m.oracleDuration,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionEnded(status string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(status).Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) actionQueued(actionType, compliance string) {
	if m == nil {
		return
	}
	m.actionsQueued.WithLabelValues(actionType, compliance).Inc()
}

func (m *Metrics) decision(decision, source string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision, source).Inc()
}

// ObserveOracleCall matches oracle.AttemptFunc.
func (m *Metrics) ObserveOracleCall(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.oracleDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

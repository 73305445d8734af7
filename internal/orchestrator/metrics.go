package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts polls and outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	polls    *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	attempts prometheus.Histogram
	active   prometheus.Gauge
}

// NewMetrics creates the orchestrator collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstudio",
				Name:      "status_polls_total",
				Help:      "Status checks sent to the backend, by result",
			},
			[]string{"result"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genstudio",
				Name:      "generation_outcomes_total",
				Help:      "Terminal generation outcomes, by media type and kind",
			},
			[]string{"type", "kind"},
		),
		attempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "genstudio",
				Name:      "poll_attempts",
				Help:      "Status checks needed per long-running generation",
				Buckets:   prometheus.LinearBuckets(1, 3, 10),
			},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "genstudio",
				Name:      "active_poll_loops",
				Help:      "Poll loops currently waiting on the backend",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.polls, m.outcomes, m.attempts, m.active)
	}
	return m
}

func (m *Metrics) poll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

func (m *Metrics) outcome(o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o.Request.Type), string(o.Kind)).Inc()
	if o.Attempts > 0 {
		m.attempts.Observe(float64(o.Attempts))
	}
}

func (m *Metrics) loopStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) loopStopped() {
	if m == nil {
		return
	}
	m.active.Dec()
}

package compiler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments compile runs. Stage timings use one histogram with a
// stage label so dashboards can stack the pipeline.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
	nodesTotal    prometheus.Gauge
	violations    *prometheus.CounterVec
}

// NewMetrics registers the compiler collectors against reg. A nil registerer
// leaves the collectors unregistered, which keeps tests quiet.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "foodgraph",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each compile stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foodgraph",
			Name:      "runs_total",
			Help:      "Compile runs by outcome.",
		}, []string{"outcome"}),
		nodesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "foodgraph",
			Name:      "graph_nodes",
			Help:      "Node count of the most recent successful compile.",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "foodgraph",
			Name:      "violations_total",
			Help:      "Diagnostics emitted by category.",
		}, []string{"category"}),
	}
	if reg != nil {
		reg.MustRegister(m.stageDuration, m.runsTotal, m.nodesTotal, m.violations)
	}
	return m
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordOutcome(outcome string) {
	m.runsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordGraph(nodes int) {
	m.nodesTotal.Set(float64(nodes))
}

func (m *Metrics) recordViolations(byCategory map[string]int) {
	for category, n := range byCategory {
		m.violations.WithLabelValues(category).Add(float64(n))
	}
}

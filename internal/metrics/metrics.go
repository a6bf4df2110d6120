// Package metrics holds the Prometheus instruments for the engine. A nil
// *Metrics is valid and records nothing, so components can run unmetered.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rendis/adaptflow/pkg/schema"
)

const namespace = "adaptflow"

// Learner task results.
const (
	LearnReady   = "ready"
	LearnRetry   = "retry"
	LearnFailed  = "failed"
	LearnDropped = "dropped"
)

// Metrics holds all instruments.
type Metrics struct {
	// SelectionsTotal counts collapses by selected variant.
	// Labels: variant
	SelectionsTotal *prometheus.CounterVec

	// TransitionsTotal counts lifecycle transitions.
	// Labels: from, to
	TransitionsTotal *prometheus.CounterVec

	// OutcomesTotal counts recorded execution outcomes.
	// Labels: success (true, false)
	OutcomesTotal *prometheus.CounterVec

	// Fitness is the distribution of recomputed fitness scores.
	Fitness prometheus.Histogram

	// LearnerTasksTotal counts derivation attempts by kind and result.
	// Labels: kind (temporal, trigger, user), result (ready, retry, failed, dropped)
	LearnerTasksTotal *prometheus.CounterVec

	// SimulationsTotal counts environments built and evicted.
	// Labels: event (built, evicted)
	SimulationsTotal *prometheus.CounterVec

	// Workflows is the number of live workflows.
	Workflows prometheus.Gauge
}

// New creates and registers all instruments on reg. Pass
// prometheus.NewRegistry() in tests to avoid global collisions.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SelectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "selections_total",
			Help:      "Variant selections by variant type",
		}, []string{"variant"}),
		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by source and target state",
		}, []string{"from", "to"}),
		OutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "outcomes_total",
			Help:      "Execution outcomes recorded",
		}, []string{"success"}),
		Fitness: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "fitness",
			Help:      "Distribution of recomputed fitness scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		LearnerTasksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learner",
			Name:      "tasks_total",
			Help:      "Pattern derivation attempts by kind and result",
		}, []string{"kind", "result"}),
		SimulationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "environments_total",
			Help:      "Simulation environments built and evicted",
		}, []string{"event"}),
		Workflows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows",
			Help:      "Live workflows in the registry",
		}),
	}
}

func (m *Metrics) RecordSelection(v schema.VariantType) {
	if m == nil {
		return
	}
	m.SelectionsTotal.WithLabelValues(string(v)).Inc()
}

func (m *Metrics) RecordTransition(from, to schema.LifecycleState) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// RecordOutcome counts the outcome and observes the fitness it produced.
func (m *Metrics) RecordOutcome(success bool, fitness float64) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
	m.Fitness.Observe(fitness)
}

func (m *Metrics) RecordLearnerTask(kind schema.PatternKind, result string) {
	if m == nil {
		return
	}
	m.LearnerTasksTotal.WithLabelValues(string(kind), result).Inc()
}

// RecordSimulations adds n to the built or evicted counter.
func (m *Metrics) RecordSimulations(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SimulationsTotal.WithLabelValues(event).Add(float64(n))
}

func (m *Metrics) SetWorkflows(n int) {
	if m == nil {
		return
	}
	m.Workflows.Set(float64(n))
}

// Package telemetry exposes Prometheus metrics for model runs. A
// disabled Metrics value is a no-op and is safe to pass around.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Enabled   bool
	Namespace string
	Buckets   []float64
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "ecosim",
	}
}

type Metrics struct {
	config Config

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	steps            prometheus.Counter
	stepDuration     prometheus.Histogram
	evaluations      *prometheus.CounterVec
	solverSubsteps   *prometheus.CounterVec
	solverRejections *prometheus.CounterVec
	errorsByKind     *prometheus.CounterVec

	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors. With cfg.Enabled unset every recording
// method does nothing.
func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return &Metrics{config: cfg}
	}

	ns := cfg.Namespace
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "runs_started_total",
				Help:      "Total number of model runs started",
			},
			[]string{"model"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "runs_finished_total",
				Help:      "Total number of model runs finished, by final phase",
			},
			[]string{"model", "phase"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "run_duration_seconds",
				Help:      "Wall time of model runs in seconds",
				Buckets:   buckets,
			},
			[]string{"model"},
		),
		steps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "steps_total",
				Help:      "Total number of timesteps executed",
			},
		),
		stepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "step_duration_seconds",
				Help:      "Wall time of single timesteps in seconds",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "equation_evaluations_total",
				Help:      "Total number of equation body evaluations",
			},
			[]string{"equation"},
		),
		solverSubsteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "solver_substeps_total",
				Help:      "Total number of accepted solver substeps",
			},
			[]string{"solver", "method"},
		),
		solverRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "solver_rejections_total",
				Help:      "Total number of substeps rejected by adaptive solvers",
			},
			[]string{"solver", "method"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "errors_total",
				Help:      "Total number of run failures by error kind",
			},
			[]string{"kind"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "active_runs",
				Help:      "Current number of runs in progress",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.steps,
		m.stepDuration,
		m.evaluations,
		m.solverSubsteps,
		m.solverRejections,
		m.errorsByKind,
		m.activeRuns,
	)
	return m
}

func (m *Metrics) enabled() bool { return m != nil && m.registry != nil }

func (m *Metrics) RunStarted(model string) {
	if !m.enabled() {
		return
	}
	m.runsStarted.WithLabelValues(model).Inc()
	m.activeRuns.Inc()
}

func (m *Metrics) RunFinished(model, phase string, d time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(model, phase).Inc()
	m.runDuration.WithLabelValues(model).Observe(d.Seconds())
	m.activeRuns.Dec()
}

func (m *Metrics) Step(d time.Duration) {
	if !m.enabled() {
		return
	}
	m.steps.Inc()
	m.stepDuration.Observe(d.Seconds())
}

// Evaluations adds n body evaluations of one equation.
func (m *Metrics) Evaluations(equation string, n int) {
	if !m.enabled() || n == 0 {
		return
	}
	m.evaluations.WithLabelValues(equation).Add(float64(n))
}

func (m *Metrics) Substeps(solver, method string, accepted, rejected int) {
	if !m.enabled() {
		return
	}
	if accepted > 0 {
		m.solverSubsteps.WithLabelValues(solver, method).Add(float64(accepted))
	}
	if rejected > 0 {
		m.solverRejections.WithLabelValues(solver, method).Add(float64(rejected))
	}
}

func (m *Metrics) Error(kind string) {
	if !m.enabled() {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Gatherer returns the registry, or nil when disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if !m.enabled() {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// WriteFile writes the current values in the node-exporter textfile
// format. It does nothing when disabled.
func (m *Metrics) WriteFile(path string) error {
	if !m.enabled() {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

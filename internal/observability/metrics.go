// Package observability holds the Prometheus metrics for the analysis service.
//
// Metrics are registered against an explicit registry so tests and the
// serve command can each own one. All methods are nil-safe: a nil *Metrics
// records nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "remote_engine"

// Analysis outcomes.
const (
	OutcomeComplete   = "complete"
	OutcomeSuperseded = "superseded"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
)

// Metrics holds the counters and histograms for analysis and configuration.
type Metrics struct {
	// AnalysesTotal counts analysis requests by outcome.
	AnalysesTotal *prometheus.CounterVec

	// AnalysisSeconds measures time spent holding the engine per analysis.
	AnalysisSeconds *prometheus.HistogramVec

	// LockWaitSeconds measures time spent waiting for the engine lock.
	LockWaitSeconds prometheus.Histogram

	// Generation is the latest request generation handed out.
	Generation prometheus.Gauge

	// ConfigureTotal counts option updates by whether they were forwarded.
	ConfigureTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AnalysesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "analysis",
				Name:      "requests_total",
				Help:      "Analysis requests by outcome",
			},
			[]string{"outcome"},
		),
		AnalysisSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "analysis",
				Name:      "engine_seconds",
				Help:      "Time an analysis held the engine",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		LockWaitSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "analysis",
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for exclusive engine access",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		),
		Generation: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "analysis",
				Name:      "generation",
				Help:      "Latest analysis request generation",
			},
		),
		ConfigureTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "config",
				Name:      "updates_total",
				Help:      "Option updates by whether they were sent to the engine",
			},
			[]string{"forwarded"},
		),
	}
}

// ObserveAnalysis records one finished analysis.
func (m *Metrics) ObserveAnalysis(outcome string, held time.Duration) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
	if held > 0 {
		m.AnalysisSeconds.WithLabelValues(outcome).Observe(held.Seconds())
	}
}

// ObserveLockWait records time spent waiting for the engine lock.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitSeconds.Observe(d.Seconds())
}

// SetGeneration publishes the latest generation.
func (m *Metrics) SetGeneration(gen uint64) {
	if m == nil {
		return
	}
	m.Generation.Set(float64(gen))
}

// ObserveConfigure records one option update.
func (m *Metrics) ObserveConfigure(forwarded bool) {
	if m == nil {
		return
	}
	label := "false"
	if forwarded {
		label = "true"
	}
	m.ConfigureTotal.WithLabelValues(label).Inc()
}

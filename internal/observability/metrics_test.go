package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveAnalysis(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAnalysis(OutcomeComplete, 100*time.Millisecond)
	m.ObserveAnalysis(OutcomeComplete, 200*time.Millisecond)
	m.ObserveAnalysis(OutcomeSuperseded, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(OutcomeComplete)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(OutcomeSuperseded)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(OutcomeError)))
}

func TestMetrics_GenerationAndConfigure(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetGeneration(7)
	m.ObserveConfigure(true)
	m.ObserveConfigure(false)
	m.ObserveConfigure(false)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.Generation))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigureTotal.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConfigureTotal.WithLabelValues("false")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAnalysis(OutcomeError, time.Second)
		m.ObserveLockWait(time.Second)
		m.SetGeneration(1)
		m.ObserveConfigure(true)
	})
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

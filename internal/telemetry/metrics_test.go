package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddRows("read", 10)
	m.AddRows("dropped", 2)
	m.AddRows("written", 0)
	m.AddRecoveries("coerced_score", 3)
	m.RunFinished("SUCCESS")
	m.ObserveStep("transform", 120*time.Millisecond)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.Rows.WithLabelValues("read")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Rows.WithLabelValues("dropped")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Recoveries.WithLabelValues("coerced_score")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues("SUCCESS")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fraud_features_step_duration_seconds"])
	assert.True(t, names["fraud_features_rows_total"])
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddRows("read", 1)
		m.AddRecoveries("coerced_score", 1)
		m.RunFinished("FAILED")
		m.ObserveStep("read", time.Second)
	})
}

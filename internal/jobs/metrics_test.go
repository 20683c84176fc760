package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	require.NoError(t, m.Track("mail:send").End(nil))
	boom := errors.New("smtp down")
	require.ErrorIs(t, m.Track("mail:send").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("mail:send", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("mail:send")))
}

func TestSetOverdue(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetOverdue(4)
	require.Equal(t, 4.0, testutil.ToFloat64(m.overdue))
	m.SetOverdue(-1)
	require.Equal(t, 4.0, testutil.ToFloat64(m.overdue))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.SetOverdue(3)
}

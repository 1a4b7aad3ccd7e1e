package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.TriggerRegistered()
		m.TriggerFailed()
		m.TriggerCancelled()
		m.AlarmFired(true)
		m.AdherenceRecorded("TAKEN", nil)
		m.PlanSyncRun(errors.New("boom"))
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.TriggerRegistered()
	m.TriggerRegistered()
	m.TriggerFailed()
	m.AlarmFired(true)
	m.AdherenceRecorded("TAKEN", nil)
	m.AdherenceRecorded("SKIPPED", errors.New("store down"))
	m.PlanSyncRun(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.triggersRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggerFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.triggersCancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alarmsFired.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adherenceEvents.WithLabelValues("TAKEN", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adherenceEvents.WithLabelValues("SKIPPED", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.planSyncRuns.WithLabelValues("ok")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.TriggerCancelled()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dosebot_triggers_cancelled_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

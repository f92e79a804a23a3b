package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTask(t *testing.T) {
	m := New()
	m.ObserveTask("styles", 20*time.Millisecond, 4, nil)
	m.ObserveTask("styles", 10*time.Millisecond, 0, errors.New("sass failed"))
	m.ObserveTask("scripts", time.Millisecond, 2, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskRuns.WithLabelValues("styles", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskRuns.WithLabelValues("styles", OutcomeFailure)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.filesWritten.WithLabelValues("styles")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.taskDuration))
}

func TestReloadMetrics(t *testing.T) {
	m := New()
	m.SetReloadClients(3)
	m.ObserveReload("css_update")
	m.ObserveReload("css_update")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.reloadClients))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reloadMessages.WithLabelValues("css_update")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTask("fonts", time.Second, 1, nil)
		m.SetReloadClients(1)
		m.ObserveReload("full_reload")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveTask("images", time.Second, 1, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `assetforge_task_runs_total{category="images",outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

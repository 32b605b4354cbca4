package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, r *Recorder, name string) *PrintableMetric {
	t.Helper()
	metrics, err := r.Gather()
	require.NoError(t, err)
	for _, m := range metrics {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func TestRecorder_Counter(t *testing.T) {
	r := NewRecorder()

	r.IncCounter("rows_migrated_total", 100)
	r.IncCounter("rows_migrated_total", 50)

	m := findMetric(t, r, "rows_migrated_total")
	require.NotNil(t, m)
	assert.Equal(t, 150.0, m.Value)
}

func TestRecorder_CounterIgnoresNegativeDelta(t *testing.T) {
	r := NewRecorder()

	r.IncCounter("rows_migrated_total", 10)
	r.IncCounter("rows_migrated_total", -5)

	m := findMetric(t, r, "rows_migrated_total")
	require.NotNil(t, m)
	assert.Equal(t, 10.0, m.Value)
}

func TestRecorder_Gauge(t *testing.T) {
	r := NewRecorder()

	r.SetGauge("quality_score", 72.5)
	r.SetGauge("quality_score", 85.0)

	m := findMetric(t, r, "quality_score")
	require.NotNil(t, m)
	assert.Equal(t, 85.0, m.Value)
}

func TestRecorder_Histogram(t *testing.T) {
	r := NewRecorder()

	r.ObserveDuration("batch_seconds", 120*time.Millisecond)
	r.ObserveDuration("batch_seconds", 80*time.Millisecond)

	m := findMetric(t, r, "batch_seconds")
	require.NotNil(t, m)
	// Gather flattens histograms to their sample count.
	assert.Equal(t, 2.0, m.Value)
}

func TestRecorder_SanitizesNames(t *testing.T) {
	r := NewRecorder()

	r.IncCounter("rows migrated (total)", 1)

	m := findMetric(t, r, "rows_migrated__total_")
	require.NotNil(t, m)
	assert.Equal(t, 1.0, m.Value)
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.IncCounter("rows_migrated_total", 3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rows_migrated_total 3")
}

func TestProgressTracker(t *testing.T) {
	pt := NewProgressTracker(nil, "copy orders", 1000)

	assert.Equal(t, 0.0, pt.Percent())
	assert.Equal(t, int64(0), pt.Completed())

	pt.Update(250)
	assert.Equal(t, 25.0, pt.Percent())
	assert.Equal(t, int64(250), pt.Completed())

	pt.Update(1000)
	assert.Equal(t, 100.0, pt.Percent())
}

func TestProgressTracker_PercentCapped(t *testing.T) {
	pt := NewProgressTracker(nil, "copy", 100)
	pt.Update(150)
	assert.Equal(t, 100.0, pt.Percent())
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	pt := NewProgressTracker(nil, "copy", 0)
	pt.Update(10)
	assert.Equal(t, 0.0, pt.Percent())
	assert.Equal(t, time.Duration(0), pt.ETA())
}

func TestProgressTracker_Throughput(t *testing.T) {
	pt := NewProgressTracker(nil, "copy", 10000)

	// No second sample yet beyond the initial one.
	pt.Update(100)
	time.Sleep(20 * time.Millisecond)
	pt.Update(300)

	rate := pt.Throughput()
	assert.Greater(t, rate, 0.0)

	eta := pt.ETA()
	assert.Greater(t, eta, time.Duration(0))
}

func TestProgressTracker_ETAZeroWhenDone(t *testing.T) {
	pt := NewProgressTracker(nil, "copy", 100)
	pt.Update(50)
	time.Sleep(5 * time.Millisecond)
	pt.Update(100)
	assert.Equal(t, time.Duration(0), pt.ETA())
}

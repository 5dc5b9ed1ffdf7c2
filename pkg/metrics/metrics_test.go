package metrics

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder(quietLogger())

	r.RecordRows("CDR", "loaded", 10)
	r.RecordRows("CDR", "loaded", 5)
	r.RecordRows("CDR", "malformed", 0)
	r.RecordExceptions("CMR", "red", 2)
	r.RecordPublish("cdr-exceptions", "ok")

	assert.Equal(t, 15.0, testutil.ToFloat64(r.RowsTotal.WithLabelValues("CDR", "loaded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.RowsTotal.WithLabelValues("CDR", "malformed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ExceptionsTotal.WithLabelValues("CMR", "red")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PublishedTotal.WithLabelValues("cdr-exceptions", "ok")))
}

func TestRecordersAreIndependent(t *testing.T) {
	a := NewRecorder(quietLogger())
	b := NewRecorder(quietLogger())

	a.RecordBuckets("CDR", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.BucketsTotal.WithLabelValues("CDR")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BucketsTotal.WithLabelValues("CDR")))
}

func TestFinishRun(t *testing.T) {
	r := NewRecorder(quietLogger())

	r.FinishRun(time.Now().Add(-time.Second), nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.LastRunSuccess))

	r.FinishRun(time.Now(), errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.LastRunSuccess))
	assert.Greater(t, testutil.ToFloat64(r.LastRunTime), 0.0)

	families, err := r.Registry().Gather()
	require.NoError(t, err)

	var histogram *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "cdr_analyser_run_duration_seconds" {
			histogram = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
}

func TestObserveStage(t *testing.T) {
	r := NewRecorder(quietLogger())
	done := r.ObserveStage("aggregate")
	done()

	assert.Equal(t, 1, testutil.CollectAndCount(r.StageDuration))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder(quietLogger())
	r.RecordQuality("fallback", 4)

	path := filepath.Join(t.TempDir(), "cdr.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cdr_analyser_quality_reports_total{outcome="fallback"} 4`)

	assert.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "cdr.prom")))
}

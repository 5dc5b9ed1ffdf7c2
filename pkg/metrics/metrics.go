package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const namespace = "cdr_analyser"

// Recorder holds the metrics of analysis runs in its own registry, so several
// recorders can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry
	logger   *logrus.Logger

	RowsTotal       *prometheus.CounterVec
	FilesTotal      *prometheus.CounterVec
	QualityTotal    *prometheus.CounterVec
	BucketsTotal    *prometheus.CounterVec
	ExceptionsTotal *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	LastRunSuccess  prometheus.Gauge
	LastRunTime     prometheus.Gauge
	PublishedTotal  *prometheus.CounterVec
}

// NewRecorder creates and registers all run metrics
func NewRecorder(logger *logrus.Logger) *Recorder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		logger:   logger,

		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_total",
				Help:      "Input rows by record kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		FilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Input files by record kind and status",
			},
			[]string{"kind", "status"},
		),

		QualityTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quality_reports_total",
				Help:      "CMR rows by predicate or correlation outcome",
			},
			[]string{"outcome"},
		),

		BucketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buckets_total",
				Help:      "Exception buckets formed before classification",
			},
			[]string{"kind"},
		),

		ExceptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exceptions_total",
				Help:      "Classified exceptions by record kind and severity",
			},
			[]string{"kind", "severity"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a complete analysis run",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall time of each pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"stage"},
		),

		LastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_success",
				Help:      "1 if the last run completed, 0 if it failed",
			},
		),

		LastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),

		PublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summaries_published_total",
				Help:      "Run summaries published to the broker",
			},
			[]string{"queue", "status"},
		),
	}

	r.registry.MustRegister(
		r.RowsTotal,
		r.FilesTotal,
		r.QualityTotal,
		r.BucketsTotal,
		r.ExceptionsTotal,
		r.RunDuration,
		r.StageDuration,
		r.LastRunSuccess,
		r.LastRunTime,
		r.PublishedTotal,
	)

	return r
}

// Registry returns the recorder's registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordRows adds n rows with the given outcome. Zero counts still create the series.
func (r *Recorder) RecordRows(kind, outcome string, n int) {
	r.RowsTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

// RecordFiles adds n files with the given status
func (r *Recorder) RecordFiles(kind, status string, n int) {
	r.FilesTotal.WithLabelValues(kind, status).Add(float64(n))
}

// RecordQuality adds n CMR rows with the given outcome
func (r *Recorder) RecordQuality(outcome string, n int) {
	r.QualityTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordBuckets adds the number of buckets aggregated for a kind
func (r *Recorder) RecordBuckets(kind string, n int) {
	r.BucketsTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordExceptions adds n classified exceptions
func (r *Recorder) RecordExceptions(kind, severity string, n int) {
	r.ExceptionsTotal.WithLabelValues(kind, severity).Add(float64(n))
}

// RecordPublish counts one summary publish attempt
func (r *Recorder) RecordPublish(queue, status string) {
	r.PublishedTotal.WithLabelValues(queue, status).Inc()
}

// ObserveStage returns a function that records the stage duration when called
func (r *Recorder) ObserveStage(stage string) func() {
	start := time.Now()
	return func() {
		r.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// FinishRun records the run duration and outcome.
func (r *Recorder) FinishRun(started time.Time, err error) {
	r.RunDuration.Observe(time.Since(started).Seconds())
	r.LastRunTime.Set(float64(time.Now().Unix()))
	if err != nil {
		r.LastRunSuccess.Set(0)
		return
	}
	r.LastRunSuccess.Set(1)
}

// WriteTextfile writes the registry in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		r.logger.WithError(err).WithField("path", path).Error("Failed to write metrics textfile")
		return err
	}
	r.logger.WithField("path", path).Debug("Metrics textfile written")
	return nil
}

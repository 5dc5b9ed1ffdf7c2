package analyser

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/alerting"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/config"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/correlation"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/exception"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/ingest"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/messaging"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/metrics"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/report"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/version"
	"github.com/sirupsen/logrus"
)

// topDevices is how many devices a published summary lists per kind
const topDevices = 5

// Input describes one analysis run.
type Input struct {
	Start time.Time
	End   time.Time
	Dir   string

	CDRReport string
	CMRReport string

	// XLSX also writes a workbook next to each HTML report
	XLSX bool
}

// KindResult is the outcome of one record kind.
type KindResult struct {
	Load      ingest.Stats
	Aggregate *exception.Result
	Report    *alerting.Report

	// Written is false when no bucket formed and no report file was created
	Written  bool
	Path     string
	XLSXPath string
}

// Result is the outcome of a run.
type Result struct {
	RunID       correlation.RunID
	CDR         *KindResult
	CMR         *KindResult
	Correlation correlation.Stats
	Summary     *messaging.RunSummary
}

// Analyser runs the load, correlate, aggregate, classify and report stages.
type Analyser struct {
	settings   config.Settings
	causeCodes config.CauseCodes
	logger     *logrus.Logger
	recorder   *metrics.Recorder

	loader     *ingest.Loader
	aggregator *exception.Aggregator
	classifier *alerting.Classifier
	writer     *report.Writer
	publisher  messaging.Publisher
	queue      string
}

// New creates an analyser. A nil recorder gets a private one.
func New(settings config.Settings, causeCodes config.CauseCodes, logger *logrus.Logger, recorder *metrics.Recorder) (*Analyser, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder(logger)
	}

	writer, err := report.NewWriter(logger)
	if err != nil {
		return nil, err
	}

	return &Analyser{
		settings:   settings,
		causeCodes: causeCodes,
		logger:     logger,
		recorder:   recorder,
		loader:     ingest.NewLoader(logger),
		aggregator: exception.NewAggregator(settings.CauseCodesExcluded, logger),
		classifier: alerting.NewClassifier(settings.CallThresholds(), settings.QualityThresholds(), logger),
		writer:     writer,
	}, nil
}

// WithPublisher publishes a run summary to queue after every successful run
func (a *Analyser) WithPublisher(p messaging.Publisher, queue string) *Analyser {
	a.publisher = p
	a.queue = queue
	return a
}

// WithMinSeverity leaves exceptions below sev out of reports and summaries
func (a *Analyser) WithMinSeverity(sev alerting.Severity) *Analyser {
	a.classifier.WithMinSeverity(sev)
	return a
}

// Run analyses the CSV files in in.Dir. Publishing failures are logged and
// do not fail the run.
func (a *Analyser) Run(ctx context.Context, in Input) (res *Result, err error) {
	started := time.Now()
	defer func() { a.recorder.FinishRun(started, err) }()

	if in.End.Before(in.Start) {
		return nil, errors.NewInvalidInput("end date is before start date", map[string]interface{}{
			"start": in.Start.String(),
			"end":   in.End.String(),
		})
	}

	runID := correlation.RunIDFromContext(ctx)
	if runID.IsEmpty() {
		runID = correlation.NewRunID()
		ctx = correlation.WithRunID(ctx, runID)
	}
	log := correlation.LoggerFromContext(ctx, a.logger)
	log.WithFields(logrus.Fields{
		"start": in.Start.UTC().Format(time.RFC3339),
		"end":   in.End.UTC().Format(time.RFC3339),
		"dir":   in.Dir,
	}).Info("Starting analysis run")

	if _, err := ingest.ListFiles(in.Dir); err != nil {
		return nil, err
	}

	window := ingest.Window{Start: in.Start, End: in.End}
	res = &Result{RunID: runID, CDR: &KindResult{}, CMR: &KindResult{}}

	done := a.recorder.ObserveStage("load")
	calls, cdrStats, err := a.loader.LoadCDRs(ctx, in.Dir, window)
	if err != nil {
		done()
		return nil, err
	}
	reports, cmrStats, err := a.loader.LoadCMRs(ctx, in.Dir, window)
	done()
	if err != nil {
		return nil, err
	}
	res.CDR.Load = cdrStats
	res.CMR.Load = cmrStats
	a.recordLoad(cdr.KindCall, cdrStats)
	a.recordLoad(cdr.KindQuality, cmrStats)

	done = a.recorder.ObserveStage("correlate")
	quality, corrStats := correlation.NewCorrelator(calls, a.logger).CorrelateAll(reports, a.settings.QualityPredicate())
	done()
	res.Correlation = corrStats
	a.recorder.RecordQuality("malformed", corrStats.Malformed)
	a.recorder.RecordQuality("not_poor", corrStats.NotPoor)
	for outcome, n := range corrStats.Outcomes {
		a.recorder.RecordQuality(outcome.String(), n)
	}

	if err := a.analyse(ctx, in, cdr.KindCall, calls, in.CDRReport, res.CDR); err != nil {
		return nil, err
	}
	if err := a.analyse(ctx, in, cdr.KindQuality, quality, in.CMRReport, res.CMR); err != nil {
		return nil, err
	}

	res.Summary = a.summary(runID, in, res)
	a.publish(ctx, res.Summary)

	log.WithFields(logrus.Fields{
		"cdr_exceptions": len(res.CDR.Report.Exceptions),
		"cmr_exceptions": len(res.CMR.Report.Exceptions),
		"duration":       time.Since(started).String(),
	}).Info("Analysis run complete")

	return res, nil
}

// analyse aggregates, classifies and reports one kind.
func (a *Analyser) analyse(ctx context.Context, in Input, kind cdr.Kind, records []*cdr.Record, path string, out *KindResult) error {
	done := a.recorder.ObserveStage("aggregate")
	agg, err := a.aggregator.Aggregate(kind, records)
	done()
	if err != nil {
		return err
	}
	out.Aggregate = agg
	out.Report = a.classifier.Classify(agg)

	a.recorder.RecordBuckets(kind.String(), len(agg.Buckets))
	a.recorder.RecordExceptions(kind.String(), alerting.SeverityAmber.String(), out.Report.AmberCount)
	a.recorder.RecordExceptions(kind.String(), alerting.SeverityRed.String(), out.Report.RedCount)

	if path == "" {
		return nil
	}

	d := &report.Data{
		RunID:    correlation.RunIDFromContext(ctx).String(),
		Start:    in.Start,
		End:      in.End,
		Result:   agg,
		Report:   out.Report,
		Describe: a.causeCodes.Describe,
	}
	if kind == cdr.KindCall {
		d.Excluded = a.settings.CauseCodesExcluded
	} else {
		d.Quality = a.settings.QualityPredicate()
	}

	defer a.recorder.ObserveStage("report")()

	written, err := a.writer.WriteHTML(path, d)
	if err != nil {
		return err
	}
	out.Written = written
	if written {
		out.Path = path
	}

	if in.XLSX && written {
		xlsxPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".xlsx"
		if _, err := a.writer.WriteXLSX(xlsxPath, d); err != nil {
			return err
		}
		out.XLSXPath = xlsxPath
	}
	return nil
}

func (a *Analyser) recordLoad(kind cdr.Kind, s ingest.Stats) {
	k := kind.String()
	a.recorder.RecordFiles(k, "loaded", s.Files)
	a.recorder.RecordFiles(k, "skipped", s.FilesSkipped)
	a.recorder.RecordRows(k, "loaded", s.Loaded)
	a.recorder.RecordRows(k, "out_of_window", s.OutOfWindow)
	a.recorder.RecordRows(k, "malformed", s.Malformed)
	a.recorder.RecordRows(k, "invalid", s.Invalid)
}

func (a *Analyser) summary(runID correlation.RunID, in Input, res *Result) *messaging.RunSummary {
	s := &messaging.RunSummary{
		RunID:       runID.String(),
		Producer:    version.Producer(),
		GeneratedAt: time.Now().UTC(),
		WindowStart: in.Start.UTC(),
		WindowEnd:   in.End.UTC(),
	}
	for _, kr := range []*KindResult{res.CDR, res.CMR} {
		ks := messaging.KindSummary{
			Kind:       kr.Aggregate.Kind.String(),
			Records:    len(kr.Aggregate.Records),
			Buckets:    len(kr.Aggregate.Buckets),
			Amber:      kr.Report.AmberCount,
			Red:        kr.Report.RedCount,
			ReportPath: kr.Path,
		}
		for i, c := range kr.Aggregate.Devices {
			if i == topDevices {
				break
			}
			ks.TopDevices = append(ks.TopDevices, messaging.DeviceCount{Device: c.Name, Count: c.Count})
		}
		s.Kinds = append(s.Kinds, ks)
	}
	return s
}

func (a *Analyser) publish(ctx context.Context, s *messaging.RunSummary) {
	if a.publisher == nil {
		return
	}
	log := correlation.LoggerFromContext(ctx, a.logger)

	if err := a.publisher.Publish(ctx, s); err != nil {
		a.recorder.RecordPublish(a.queue, "error")
		log.WithError(err).Warn("Failed to publish run summary")
		return
	}
	a.recorder.RecordPublish(a.queue, "ok")
	log.WithField("exceptions", s.Exceptions()).Debug("Run summary published")
}

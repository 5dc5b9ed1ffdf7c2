package analyser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/alerting"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/config"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/correlation"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/messaging"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const cdrHeader = "cdrRecordType,globalCallID_callManagerId,globalCallID_callId,dateTimeOrigination," +
	"origIpv4v6Addr,destIpv4v6Addr,callingPartyNumber,originalCalledPartyNumber,finalCalledPartyNumber," +
	"origCause_value,destCause_value,origDeviceName,destDeviceName,duration"

const cmrHeader = "cdrRecordType,globalCallID_callManagerId,globalCallID_callId,dateTimeStamp,deviceName,varVQMetrics,duration"

// 2020-03-14 08:00:00 UTC
const epoch = 1584172800

var settings = config.Settings{
	CauseCodesExcluded:      []string{"0", "16"},
	CauseCodeAmberThreshold: 1,
	CauseCodeRedThreshold:   2,
	MOSThreshold:            3.5,
	CCRThreshold:            0.05,
	MOSAmberThreshold:       1,
	MOSRedThreshold:         2,
}

var causeCodes = config.CauseCodes{"16": "Normal call clearing", "31": "Normal, unspecified"}

type fakePublisher struct {
	summaries []*messaging.RunSummary
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, s *messaging.RunSummary) error {
	if p.err != nil {
		return p.err
	}
	p.summaries = append(p.summaries, s)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func writeCSV(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func cdrRow(callID string, offset int, origCause, destCause string) string {
	return fmt.Sprintf("1,1,%s,%d,10.0.0.1,10.0.0.2,2001,3001,3001,%s,%s,SEPA,SEPB,60", callID, epoch+offset, origCause, destCause)
}

func fixture(t *testing.T) (string, Input) {
	t.Helper()
	dir := t.TempDir()
	in := t.TempDir()

	writeCSV(t, in, "cdr_StandAloneCluster_01_202003140800_1.csv",
		cdrHeader,
		cdrRow("100", 0, "16", "31"),
		cdrRow("101", 60, "16", "31"),
		cdrRow("102", 120, "16", "16"),
		cdrRow("103", 7200, "16", "31"),
	)
	writeCSV(t, in, "cmr_StandAloneCluster_01_202003140800_1.csv",
		cmrHeader,
		fmt.Sprintf("2,1,100,%d,SEPB,MLQKav=2.0;CCR=0.2;,60", epoch+60),
		fmt.Sprintf("2,1,101,%d,SEPB,MLQKav=4.2;CCR=0.0;,60", epoch+120),
	)

	return dir, Input{
		Start:     time.Unix(epoch, 0).UTC(),
		End:       time.Unix(epoch+3600, 0).UTC(),
		Dir:       in,
		CDRReport: filepath.Join(dir, "cdr_report.html"),
		CMRReport: filepath.Join(dir, "cmr_report.html"),
	}
}

func newAnalyser(t *testing.T) (*Analyser, *metrics.Recorder, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	recorder := metrics.NewRecorder(logger)
	a, err := New(settings, causeCodes, logger, recorder)
	require.NoError(t, err)
	return a, recorder, hook
}

func TestRun(t *testing.T) {
	a, recorder, _ := newAnalyser(t)
	pub := &fakePublisher{}
	a.WithPublisher(pub, "cdr-exceptions")

	_, in := fixture(t)
	ctx := correlation.WithRunID(context.Background(), "run-42")

	res, err := a.Run(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, correlation.RunID("run-42"), res.RunID)

	// call 103 is outside the window, call 102 has both causes excluded
	assert.Equal(t, 3, res.CDR.Load.Loaded)
	assert.Equal(t, 1, res.CDR.Load.OutOfWindow)
	assert.Equal(t, 1, res.CDR.Aggregate.Dropped)

	require.Len(t, res.CDR.Report.Exceptions, 2)
	for _, ex := range res.CDR.Report.Exceptions {
		assert.Equal(t, alerting.SeverityRed, ex.Severity)
		assert.Equal(t, "31", ex.Cause)
		assert.Equal(t, 2, ex.Count())
	}
	assert.Equal(t, "SEPA", res.CDR.Report.Exceptions[0].Device)
	assert.Equal(t, "SEPB", res.CDR.Report.Exceptions[1].Device)

	assert.Equal(t, 1, res.Correlation.NotPoor)
	assert.Equal(t, 1, res.Correlation.Outcomes[correlation.OutcomeDest])
	require.Len(t, res.CMR.Report.Exceptions, 2)
	assert.Equal(t, 2, res.CMR.Report.AmberCount)

	assert.True(t, res.CDR.Written)
	assert.FileExists(t, in.CDRReport)
	assert.FileExists(t, in.CMRReport)
	assert.Empty(t, res.CDR.XLSXPath)

	html, err := os.ReadFile(in.CDRReport)
	require.NoError(t, err)
	assert.Contains(t, string(html), "SEPA (originating device) - destination cause 31 Normal, unspecified")
	assert.Contains(t, string(html), "run-42")

	require.Len(t, pub.summaries, 1)
	summary := pub.summaries[0]
	assert.Equal(t, "run-42", summary.RunID)
	assert.True(t, strings.HasPrefix(summary.Producer, "cdr-analyser/"))
	assert.Equal(t, 4, summary.Exceptions())
	require.Len(t, summary.Kinds, 2)
	assert.Equal(t, "CDR", summary.Kinds[0].Kind)
	assert.Equal(t, in.CDRReport, summary.Kinds[0].ReportPath)
	assert.Equal(t, []messaging.DeviceCount{{Device: "SEPA", Count: 2}, {Device: "SEPB", Count: 2}}, summary.Kinds[0].TopDevices)

	assert.Equal(t, 3.0, testutil.ToFloat64(recorder.RowsTotal.WithLabelValues("CDR", "loaded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.ExceptionsTotal.WithLabelValues("CDR", "red")))
	assert.Equal(t, 2.0, testutil.ToFloat64(recorder.ExceptionsTotal.WithLabelValues("CMR", "amber")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.PublishedTotal.WithLabelValues("cdr-exceptions", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.LastRunSuccess))
}

func TestRunWritesWorkbooks(t *testing.T) {
	a, _, _ := newAnalyser(t)
	_, in := fixture(t)
	in.XLSX = true

	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.RunID.IsEmpty())

	require.Equal(t, strings.TrimSuffix(in.CDRReport, ".html")+".xlsx", res.CDR.XLSXPath)
	f, err := excelize.OpenFile(res.CDR.XLSXPath)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Causes")

	assert.FileExists(t, res.CMR.XLSXPath)
}

func TestRunNoExceptions(t *testing.T) {
	a, _, hook := newAnalyser(t)
	_, in := fixture(t)
	// nothing in the window
	in.Start = time.Unix(epoch+86400, 0).UTC()
	in.End = time.Unix(epoch+90000, 0).UTC()

	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.CDR.Written)
	assert.False(t, res.CMR.Written)
	assert.NoFileExists(t, in.CDRReport)
	assert.NoFileExists(t, in.CMRReport)

	skipped := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "No CDR/CMR exceptions found" {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)
}

func TestRunMinSeverityRed(t *testing.T) {
	a, _, _ := newAnalyser(t)
	a.WithMinSeverity(alerting.SeverityRed)
	_, in := fixture(t)

	res, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, res.CDR.Report.Exceptions, 2)
	assert.True(t, res.CMR.Report.Empty(), "CMR buckets are only amber")
	assert.Equal(t, 2, res.Summary.Exceptions())
}

func TestRunPublishFailureDoesNotFailRun(t *testing.T) {
	a, recorder, hook := newAnalyser(t)
	a.WithPublisher(&fakePublisher{err: fmt.Errorf("connection refused")}, "q")
	_, in := fixture(t)

	_, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(recorder.PublishedTotal.WithLabelValues("q", "error")))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Failed to publish run summary" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunMissingDirectory(t *testing.T) {
	a, recorder, _ := newAnalyser(t)
	_, in := fixture(t)
	in.Dir = filepath.Join(in.Dir, "missing")

	_, err := a.Run(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrNoInputFiles))
	assert.Equal(t, errors.ExitInputMissing, errors.ExitCode(err))
	assert.Equal(t, 0.0, testutil.ToFloat64(recorder.LastRunSuccess))
}

func TestRunRejectsReversedWindow(t *testing.T) {
	a, _, _ := newAnalyser(t)
	_, in := fixture(t)
	in.Start, in.End = in.End, in.Start

	_, err := a.Run(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, errors.ExitUsage, errors.ExitCode(err))
}

package report

import (
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/alerting"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/exception"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/media"
)

const timeLayout = "2006-01-02 15:04:05"

// Data is everything needed to render the report of one record kind.
type Data struct {
	RunID       string
	GeneratedAt time.Time
	Start       time.Time
	End         time.Time

	Result *exception.Result
	Report *alerting.Report

	// Excluded cause codes, CDR reports only
	Excluded []string
	// Per-record quality thresholds, CMR reports only
	Quality media.Thresholds

	// Describe returns the description of a cause code
	Describe func(code string) string
}

func (d *Data) kind() cdr.Kind {
	return d.Result.Kind
}

func (d *Data) describe(code string) string {
	if d.Describe == nil {
		return ""
	}
	return d.Describe(code)
}

// exceptionView is one classified bucket, flattened for rendering
type exceptionView struct {
	Anchor           string
	Title            string
	Severity         string
	Device           string
	Role             string
	Cause            string
	CauseDescription string
	Count            int
	Rows             []rowView
}

type rowView struct {
	Time        string
	SwitchID    string
	CallID      string
	Calling     string
	OrigCalled  string
	FinalCalled string
	OrigAddress string
	DestAddress string
	OrigDevice  string
	DestDevice  string
	OrigCause   string
	DestCause   string
	Duration    string
	MOS         string
	CCR         string
	Rating      string
	Metrics     string
}

type countView struct {
	Name        string
	Description string
	Count       int
}

// view is the template root
type view struct {
	Kind        string
	Title       string
	RunID       string
	GeneratedAt string
	Start       string
	End         string
	Thresholds  alerting.Thresholds
	Excluded    []string
	Quality     media.Thresholds
	AmberCount  int
	RedCount    int
	Exceptions  []exceptionView
	Devices     []countView
	Causes      []countView
	Dates       []countView
	Chart       template.URL
	IsCall      bool
}

func buildView(d *Data) view {
	v := view{
		Kind:        d.kind().String(),
		Title:       d.kind().String() + " Exception Report",
		RunID:       d.RunID,
		GeneratedAt: d.GeneratedAt.UTC().Format(timeLayout),
		Start:       d.Start.UTC().Format(timeLayout),
		End:         d.End.UTC().Format(timeLayout),
		Thresholds:  d.Report.Thresholds,
		Excluded:    d.Excluded,
		Quality:     d.Quality,
		AmberCount:  d.Report.AmberCount,
		RedCount:    d.Report.RedCount,
		IsCall:      d.kind() == cdr.KindCall,
	}

	for i, c := range d.Report.Exceptions {
		v.Exceptions = append(v.Exceptions, buildException(d, i, c))
	}
	for _, c := range d.Result.Devices {
		v.Devices = append(v.Devices, countView{Name: c.Name, Count: c.Count})
	}
	for _, c := range d.Result.Causes {
		v.Causes = append(v.Causes, countView{Name: c.Name, Description: d.describe(c.Name), Count: c.Count})
	}
	for _, c := range d.Result.Dates {
		v.Dates = append(v.Dates, countView{Name: c.Name, Count: c.Count})
	}
	return v
}

func buildException(d *Data, i int, c alerting.Classified) exceptionView {
	role := "destination"
	if c.Shape.OrigDevice() {
		role = "originating"
	}

	ev := exceptionView{
		Anchor:   fmt.Sprintf("exception-%d", i+1),
		Severity: c.Severity.String(),
		Device:   c.Device,
		Role:     role,
		Count:    c.Count(),
	}

	if c.Shape.HasCause() {
		ev.Cause = c.Cause
		ev.CauseDescription = d.describe(c.Cause)
		side := "destination"
		if c.Shape.OrigCause() {
			side = "originating"
		}
		ev.Title = fmt.Sprintf("%s (%s device) - %s cause %s", c.Device, role, side, c.Cause)
		if ev.CauseDescription != "" {
			ev.Title += " " + ev.CauseDescription
		}
	} else {
		ev.Title = fmt.Sprintf("%s (%s device) - poor voice quality", c.Device, role)
	}

	for _, rec := range c.Records {
		ev.Rows = append(ev.Rows, buildRow(rec, c.Shape.OrigDevice()))
	}
	return ev
}

// buildRow flattens a record. For quality records the metrics shown are those
// reported by the bucket's device.
func buildRow(rec *cdr.Record, origSide bool) rowView {
	ep := rec.Endpoints()
	row := rowView{
		Time:        rec.StartTime.UTC().Format(timeLayout),
		SwitchID:    rec.SwitchID,
		CallID:      rec.CallID,
		Calling:     ep.CallingNumber,
		OrigCalled:  ep.OriginalCalledNumber,
		FinalCalled: ep.FinalCalledNumber,
		OrigAddress: ep.OrigAddress,
		DestAddress: ep.DestAddress,
		OrigDevice:  rec.OrigDevice(),
		DestDevice:  rec.DestDevice(),
		Duration:    strconv.Itoa(int(rec.Duration / time.Second)),
	}

	if call, ok := rec.Call(); ok {
		row.OrigCause = call.OrigCause
		row.DestCause = call.DestCause
		return row
	}

	q, _ := rec.Quality()
	row.Metrics = q.DestMetrics
	if origSide {
		row.Metrics = q.OrigMetrics
	}
	if row.Metrics == "" {
		row.Metrics = q.OrigMetrics + q.DestMetrics
	}

	vq := media.ParseVQMetrics(row.Metrics)
	if mos, ok := vq.Float(media.MetricMLQKav); ok {
		row.MOS = strconv.FormatFloat(mos, 'f', -1, 64)
		row.Rating = media.Rating(mos)
	}
	if ccr, ok := vq.Float(media.MetricCCR); ok {
		row.CCR = strconv.FormatFloat(ccr, 'f', -1, 64)
	}
	return row
}

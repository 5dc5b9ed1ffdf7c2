package report

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// Writer renders exception reports.
type Writer struct {
	logger    *logrus.Logger
	templates *template.Template
	now       func() time.Time
}

// NewWriter parses the embedded templates
func NewWriter(logger *logrus.Logger) (*Writer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"join": strings.Join,
	}).ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse report templates")
	}

	return &Writer{logger: logger, templates: tmpl, now: time.Now}, nil
}

// Skip reports whether no report should be written: no bucket was formed at
// all. Buckets that all fall below amber still produce an empty report.
func Skip(d *Data) bool {
	return d.Result == nil || len(d.Result.Buckets) == 0
}

// RenderHTML writes the HTML report to w
func (w *Writer) RenderHTML(out io.Writer, d *Data) error {
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = w.now()
	}

	v := buildView(d)
	if len(d.Result.Dates) > 0 {
		chart, err := DateChart(v.Kind+" exceptions by date", d.Result.Dates)
		if err != nil {
			w.logger.WithError(err).Warn("Failed to draw date chart, continuing without it")
		} else {
			v.Chart = template.URL(DataURI(chart))
		}
	}

	return w.templates.ExecuteTemplate(out, "report", v)
}

// WriteHTML renders the report to path. It returns false without creating
// the file when there is nothing to report.
func (w *Writer) WriteHTML(path string, d *Data) (bool, error) {
	if Skip(d) {
		w.logger.WithField("path", path).Info("No CDR/CMR exceptions found")
		return false, nil
	}
	kind := d.Result.Kind.String()

	var buf bytes.Buffer
	if err := w.RenderHTML(&buf, d); err != nil {
		return false, errors.Wrap(err, "failed to render report", map[string]interface{}{"kind": kind})
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return false, errors.Wrap(err, "unable to write file "+path, map[string]interface{}{"kind": kind})
	}

	w.logger.WithFields(logrus.Fields{
		"kind":       kind,
		"path":       path,
		"exceptions": len(d.Report.Exceptions),
		"amber":      d.Report.AmberCount,
		"red":        d.Report.RedCount,
	}).Infof("%d %s exceptions found", len(d.Report.Exceptions), kind)

	return true, nil
}

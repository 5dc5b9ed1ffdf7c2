package alerting

import (
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/exception"
	"github.com/sirupsen/logrus"
)

// Classified is an exception bucket that met at least the amber threshold.
type Classified struct {
	*exception.Bucket
	Severity Severity
}

// Report holds the classified exceptions of one record kind.
type Report struct {
	Kind       cdr.Kind
	Thresholds Thresholds
	Exceptions []Classified
	AmberCount int
	RedCount   int
}

// Empty reports whether no bucket reached the amber threshold.
func (r *Report) Empty() bool {
	return len(r.Exceptions) == 0
}

// Classifier assigns severities to exception buckets.
type Classifier struct {
	call    Thresholds
	quality Thresholds
	floor   Severity
	logger  *logrus.Logger
}

// NewClassifier creates a classifier with separate thresholds for CDR and CMR
// buckets.
func NewClassifier(call, quality Thresholds, logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Classifier{call: call, quality: quality, floor: SeverityAmber, logger: logger}
}

// WithMinSeverity drops exceptions below floor from reports. Values below
// amber are raised to amber.
func (c *Classifier) WithMinSeverity(floor Severity) *Classifier {
	if floor < SeverityAmber {
		floor = SeverityAmber
	}
	c.floor = floor
	return c
}

// ThresholdsFor returns the thresholds applied to a record kind
func (c *Classifier) ThresholdsFor(kind cdr.Kind) Thresholds {
	if kind == cdr.KindQuality {
		return c.quality
	}
	return c.call
}

// Classify keeps the buckets that reach the minimum severity, in bucket order.
func (c *Classifier) Classify(res *exception.Result) *Report {
	th := c.ThresholdsFor(res.Kind)
	report := &Report{Kind: res.Kind, Thresholds: th}

	for _, b := range res.Buckets {
		sev := th.Evaluate(b.Count())
		if sev < c.floor {
			continue
		}
		switch sev {
		case SeverityRed:
			report.RedCount++
		case SeverityAmber:
			report.AmberCount++
		default:
			continue
		}
		report.Exceptions = append(report.Exceptions, Classified{Bucket: b, Severity: sev})
	}

	c.logger.WithFields(logrus.Fields{
		"kind":    res.Kind.String(),
		"buckets": len(res.Buckets),
		"min":     c.floor.String(),
		"amber":   report.AmberCount,
		"red":     report.RedCount,
	}).Info("Classified exceptions")

	return report
}

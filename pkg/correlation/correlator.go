package correlation

import (
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/media"
	"github.com/sirupsen/logrus"
)

// Outcome describes how a CMR was matched to its call.
type Outcome int

const (
	OutcomeUnmatched Outcome = iota // no CDR shares the call identity
	OutcomeOrig                     // reporting device is the leg's originating device
	OutcomeDest                     // reporting device is the leg's destination device
	OutcomeFallback                 // identity matched, device matched no leg (transferred call)
	OutcomeInvalid                  // matched, but the resulting record broke an invariant
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOrig:
		return "orig"
	case OutcomeDest:
		return "dest"
	case OutcomeFallback:
		return "fallback"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unmatched"
	}
}

// Correlator attaches call context from CDRs to CMRs.
type Correlator struct {
	calls  []*cdr.Record
	index  map[cdr.Identity][]int
	logger *logrus.Logger
}

// NewCorrelator indexes the CDRs of a run. The slice order is the order legs
// are considered in when one call identity has several.
func NewCorrelator(calls []*cdr.Record, logger *logrus.Logger) *Correlator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	index := make(map[cdr.Identity][]int)
	for i, rec := range calls {
		if rec.Kind() != cdr.KindCall {
			continue
		}
		index[rec.Identity] = append(index[rec.Identity], i)
	}

	logger.WithFields(logrus.Fields{
		"cdr_records":       len(calls),
		"distinct_call_ids": len(index),
	}).Debug("Correlator initialized")

	return &Correlator{calls: calls, index: index, logger: logger}
}

// Correlate finds the CDR that owns a CMR and builds the correlated quality
// record. The first leg whose originating or destination device equals the
// reporting device wins. When legs share the identity but none has the device,
// the CMR is kept with the reporting device on both sides.
func (c *Correlator) Correlate(report cdr.QualityReport) (*cdr.Record, Outcome) {
	legs := c.index[report.Identity]
	if len(legs) == 0 {
		return nil, OutcomeUnmatched
	}

	header := cdr.Header{Identity: report.Identity, StartTime: report.StartTime, Duration: report.Duration}

	var last cdr.CallDetail
	for _, i := range legs {
		call, _ := c.calls[i].Call()
		last = call

		var detail cdr.QualityDetail
		var outcome Outcome
		switch report.DeviceName {
		case call.OrigDevice:
			detail = cdr.QualityDetail{
				Endpoints:   call.Endpoints,
				OrigDevice:  report.DeviceName,
				DestDevice:  call.DestDevice,
				OrigMetrics: report.Metrics,
			}
			outcome = OutcomeOrig
		case call.DestDevice:
			detail = cdr.QualityDetail{
				Endpoints:   call.Endpoints,
				OrigDevice:  call.OrigDevice,
				DestDevice:  report.DeviceName,
				DestMetrics: report.Metrics,
			}
			outcome = OutcomeDest
		default:
			continue
		}
		return c.build(header, detail, outcome)
	}

	return c.build(header, cdr.QualityDetail{
		Endpoints:   last.Endpoints,
		OrigDevice:  report.DeviceName,
		DestDevice:  report.DeviceName,
		OrigMetrics: report.Metrics,
		DestMetrics: report.Metrics,
	}, OutcomeFallback)
}

func (c *Correlator) build(h cdr.Header, d cdr.QualityDetail, outcome Outcome) (*cdr.Record, Outcome) {
	rec, err := cdr.NewQualityRecord(h, d)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"call":    h.Identity.String(),
			"outcome": outcome.String(),
		}).Warn("Discarding correlated CMR")
		return nil, OutcomeInvalid
	}
	return rec, outcome
}

// Stats counts what happened to the CMRs of one CorrelateAll call.
type Stats struct {
	Examined  int
	Malformed int
	NotPoor   int
	Outcomes  map[Outcome]int
}

// Correlated is the number of CMRs that produced a quality record.
func (s Stats) Correlated() int {
	return s.Outcomes[OutcomeOrig] + s.Outcomes[OutcomeDest] + s.Outcomes[OutcomeFallback]
}

// CorrelateAll keeps the CMRs that indicate poor quality and correlates them,
// preserving input order. Rows whose metrics cannot be parsed are logged and
// skipped.
func (c *Correlator) CorrelateAll(reports []cdr.QualityReport, th media.Thresholds) ([]*cdr.Record, Stats) {
	stats := Stats{Outcomes: make(map[Outcome]int)}
	out := make([]*cdr.Record, 0, len(reports))

	for _, report := range reports {
		stats.Examined++

		poor, err := media.IsPoorQuality(report.Metrics, th)
		if err != nil {
			stats.Malformed++
			c.logger.WithError(err).WithFields(logrus.Fields{
				"call":   report.Identity.String(),
				"device": report.DeviceName,
			}).Warn("Unable to parse CMR metrics, skipping row")
			continue
		}
		if !poor {
			stats.NotPoor++
			continue
		}

		rec, outcome := c.Correlate(report)
		stats.Outcomes[outcome]++
		if rec != nil {
			out = append(out, rec)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"examined":   stats.Examined,
		"malformed":  stats.Malformed,
		"not_poor":   stats.NotPoor,
		"correlated": stats.Correlated(),
		"fallback":   stats.Outcomes[OutcomeFallback],
		"unmatched":  stats.Outcomes[OutcomeUnmatched],
	}).Info("Correlated CMR records")

	return out, stats
}

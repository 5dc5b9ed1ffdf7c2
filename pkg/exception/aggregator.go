package exception

import (
	"sort"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Result is the grouped view of one record kind.
type Result struct {
	Kind cdr.Kind

	// Records are the records left after excluded-cause filtering.
	Records []*cdr.Record
	// Dropped is the number of CDRs removed because both causes were excluded.
	Dropped int

	Buckets []*Bucket

	Devices []Count // highest first
	Causes  []Count // highest first, CDR only
	Dates   []Count // ascending date
}

// Aggregator groups records into exception buckets.
type Aggregator struct {
	excluded map[string]struct{}
	logger   *logrus.Logger
}

// NewAggregator creates an aggregator that ignores the given cause codes.
func NewAggregator(excluded []string, logger *logrus.Logger) *Aggregator {
	set := make(map[string]struct{}, len(excluded))
	for _, cause := range excluded {
		set[cause] = struct{}{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Aggregator{excluded: set, logger: logger}
}

// Excluded reports whether a cause code is filtered out.
func (a *Aggregator) Excluded(cause string) bool {
	_, ok := a.excluded[cause]
	return ok
}

// Aggregate groups records of a single kind. Each record contributes once per
// shape whose device is non-empty and, for CDRs, whose cause is not excluded.
// Buckets come back in device first-seen order, then cause first-seen order,
// then by the record that opened them.
func (a *Aggregator) Aggregate(kind cdr.Kind, records []*cdr.Record) (*Result, error) {
	for _, rec := range records {
		if rec.Kind() != kind {
			return nil, errors.Wrap(errors.ErrMixedKinds, "aggregate").
				WithFields(map[string]interface{}{
					"expected": kind.String(),
					"got":      rec.Kind().String(),
					"call":     rec.Identity.String(),
				})
		}
	}

	res := &Result{Kind: kind}
	res.Records = records
	if kind == cdr.KindCall {
		res.Records = a.dropExcluded(records)
		res.Dropped = len(records) - len(res.Records)
	}

	deviceIdx := make(map[string]int)
	causeIdx := map[string]int{NoCause: 0}
	devices := NewCounter()
	causes := NewCounter()
	dates := NewCounter()

	for _, rec := range res.Records {
		for _, dev := range []string{rec.OrigDevice(), rec.DestDevice()} {
			if dev == "" {
				continue
			}
			if _, ok := deviceIdx[dev]; !ok {
				deviceIdx[dev] = len(deviceIdx)
				devices.Observe(dev)
			}
		}

		call, ok := rec.Call()
		if !ok {
			continue
		}
		for _, cause := range []string{call.OrigCause, call.DestCause} {
			if _, seen := causeIdx[cause]; seen {
				continue
			}
			causeIdx[cause] = len(causeIdx)
			if !a.Excluded(cause) {
				causes.Observe(cause)
			}
		}
	}

	shapes := qualityShapes
	if kind == cdr.KindCall {
		shapes = callShapes
	}

	byKey := make(map[Key]*Bucket)
	for i, rec := range res.Records {
		for _, shape := range shapes {
			device, cause := shape.extract(rec)
			if device == "" {
				continue
			}
			if shape.HasCause() && a.Excluded(cause) {
				continue
			}

			key := Key{Shape: shape, Device: device, Cause: cause}
			b, ok := byKey[key]
			if !ok {
				b = &Bucket{
					Key: key,
					order: bucketOrder{
						device: deviceIdx[device],
						cause:  causeIdx[cause],
						record: i,
						shape:  shape,
					},
				}
				byKey[key] = b
				res.Buckets = append(res.Buckets, b)
			}
			b.Records = append(b.Records, rec)

			devices.Inc(device)
			if shape.HasCause() {
				causes.Inc(cause)
			}
			dates.Inc(rec.Date())
		}
	}

	sort.Slice(res.Buckets, func(i, j int) bool {
		return res.Buckets[i].order.less(res.Buckets[j].order)
	})

	res.Devices = devices.Descending()
	if kind == cdr.KindCall {
		res.Causes = causes.Descending()
	}
	res.Dates = dates.ByName()

	a.logger.WithFields(logrus.Fields{
		"kind":    kind.String(),
		"records": len(res.Records),
		"dropped": res.Dropped,
		"buckets": len(res.Buckets),
		"devices": devices.Len(),
	}).Info("Aggregated exception buckets")

	return res, nil
}

// dropExcluded removes CDRs whose originating and destination causes are
// both excluded.
func (a *Aggregator) dropExcluded(records []*cdr.Record) []*cdr.Record {
	out := make([]*cdr.Record, 0, len(records))
	for _, rec := range records {
		call, _ := rec.Call()
		if a.Excluded(call.OrigCause) && a.Excluded(call.DestCause) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

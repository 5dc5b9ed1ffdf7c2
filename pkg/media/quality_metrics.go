package media

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
)

// Metric keys reported by CUCM in the varVQMetrics column
const (
	MetricMLQKav = "MLQKav" // average MOS listening quality
	MetricCCR    = "CCR"    // cumulative conceal ratio
)

var (
	mlqkavRE = regexp.MustCompile(`MLQKav=([\d\.]+);`)
	ccrRE    = regexp.MustCompile(`CCR=([\d\.]+);`)
)

// Thresholds decide when a CMR counts as poor quality.
type Thresholds struct {
	MOS float64 // MLQKav at or above this is acceptable
	CCR float64 // CCR at or below this is acceptable
}

// Verdict explains how IsPoorQuality reached its decision.
type Verdict int

const (
	VerdictNoMetrics Verdict = iota
	VerdictGoodMOS
	VerdictGoodCCR
	VerdictPoor
)

func (v Verdict) String() string {
	switch v {
	case VerdictGoodMOS:
		return "good_mos"
	case VerdictGoodCCR:
		return "good_ccr"
	case VerdictPoor:
		return "poor"
	default:
		return "no_metrics"
	}
}

// Assess applies the MLQKav/CCR precedence to a varVQMetrics blob.
//
// MLQKav is checked first: a present value at or above the MOS threshold
// clears the record whatever CCR says. Otherwise a present CCR at or below
// its threshold clears it, even when MLQKav was bad. A blob with neither
// metric is never poor.
func Assess(blob string, th Thresholds) (Verdict, error) {
	mos, hasMOS, err := extract(mlqkavRE, MetricMLQKav, blob)
	if err != nil {
		return VerdictNoMetrics, err
	}
	if hasMOS && mos >= th.MOS {
		return VerdictGoodMOS, nil
	}

	ccr, hasCCR, err := extract(ccrRE, MetricCCR, blob)
	if err != nil {
		return VerdictNoMetrics, err
	}
	if hasCCR && ccr <= th.CCR {
		return VerdictGoodCCR, nil
	}

	if !hasMOS && !hasCCR {
		return VerdictNoMetrics, nil
	}
	return VerdictPoor, nil
}

// IsPoorQuality reports whether a CMR should be kept as evidence of poor call quality.
func IsPoorQuality(blob string, th Thresholds) (bool, error) {
	verdict, err := Assess(blob, th)
	return verdict == VerdictPoor, err
}

func extract(re *regexp.Regexp, key, blob string) (float64, bool, error) {
	m := re.FindStringSubmatch(blob)
	if m == nil {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, true, errors.NewMalformedRow("unparsable "+key, map[string]interface{}{"value": m[1]})
	}
	return v, true, nil
}

// VQMetrics is the parsed form of a varVQMetrics blob, kept in blob order.
type VQMetrics struct {
	Keys   []string
	Values map[string]string
}

// ParseVQMetrics splits a "key=value;key=value" blob. Pairs without '=' are ignored.
func ParseVQMetrics(blob string) VQMetrics {
	metrics := VQMetrics{Values: make(map[string]string)}
	for _, pair := range strings.Split(blob, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" {
			continue
		}
		if _, seen := metrics.Values[key]; !seen {
			metrics.Keys = append(metrics.Keys, key)
		}
		metrics.Values[key] = value
	}
	return metrics
}

// Float returns a metric as a number.
func (m VQMetrics) Float(key string) (float64, bool) {
	raw, ok := m.Values[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Rating maps a MOS value onto the usual listening-quality bands.
func Rating(mos float64) string {
	switch {
	case mos >= 4.5:
		return "Excellent"
	case mos >= 4.0:
		return "Good"
	case mos >= 3.5:
		return "Fair"
	case mos >= 2.5:
		return "Poor"
	default:
		return "Bad"
	}
}

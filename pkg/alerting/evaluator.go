package alerting

import (
	"strings"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
)

// Severity is the triage level of an exception bucket.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityAmber
	SeverityRed
)

func (s Severity) String() string {
	switch s {
	case SeverityAmber:
		return "amber"
	case SeverityRed:
		return "red"
	default:
		return "none"
	}
}

// ParseSeverity parses "amber" or "red", case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amber":
		return SeverityAmber, nil
	case "red":
		return SeverityRed, nil
	default:
		return SeverityNone, errors.NewInvalidInput("severity must be amber or red", map[string]interface{}{
			"severity": s,
		})
	}
}

// Thresholds are the bucket sizes at which a bucket becomes amber or red.
type Thresholds struct {
	Amber int `json:"amber" yaml:"amber"`
	Red   int `json:"red" yaml:"red"`
}

// Evaluate returns the severity for a bucket of count records. Red is tested
// first, so a red threshold at or below the amber threshold still wins.
func (t Thresholds) Evaluate(count int) Severity {
	switch {
	case count >= t.Red:
		return SeverityRed
	case count >= t.Amber:
		return SeverityAmber
	default:
		return SeverityNone
	}
}

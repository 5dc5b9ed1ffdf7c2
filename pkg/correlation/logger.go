package correlation

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// contextKey is the type for context keys to avoid collisions
type contextKey int

const (
	runIDKey contextKey = iota
	recordKindKey
)

// RunID identifies one analysis run in logs and published summaries.
type RunID string

// String returns the string representation of the run ID
func (id RunID) String() string {
	return string(id)
}

// IsEmpty returns true if the run ID is empty
func (id RunID) IsEmpty() bool {
	return id == ""
}

// NewRunID generates a new random run ID.
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// WithRunID returns a new context with the run ID attached
func WithRunID(ctx context.Context, id RunID) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run ID from a context.
// Returns an empty ID if not present
func RunIDFromContext(ctx context.Context) RunID {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(runIDKey).(RunID); ok {
		return id
	}
	return ""
}

// WithRecordKind tags the context with the record kind being processed ("CDR" or "CMR")
func WithRecordKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, recordKindKey, kind)
}

// RecordKindFromContext extracts the record kind from a context
func RecordKindFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if kind, ok := ctx.Value(recordKindKey).(string); ok {
		return kind
	}
	return ""
}

// ContextFields extracts all run fields from a context as a logrus.Fields map
func ContextFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}

	if id := RunIDFromContext(ctx); !id.IsEmpty() {
		fields["run_id"] = id.String()
	}

	if kind := RecordKindFromContext(ctx); kind != "" {
		fields["record_kind"] = kind
	}

	return fields
}

// LoggerFromContext returns a logrus.Entry carrying the run fields of the context
func LoggerFromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithFields(ContextFields(ctx))
}

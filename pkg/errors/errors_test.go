package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)

	assert.Contains(t, err.Error(), "test error")
	assert.True(t, strings.HasPrefix(err.Location(), "errors_test.go:"), "location was %s", err.Location())
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrap(baseErr, "wrapped")
	require.NotNil(t, err)

	assert.Equal(t, "wrapped: base error", err.Error())
	assert.Equal(t, baseErr, errors.Unwrap(err))
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWrapKeepsCode(t *testing.T) {
	err := Wrap(NewMalformedRow("bad timestamp"), "loading file")
	assert.Equal(t, "MALFORMED_ROW", err.GetCode())
	assert.True(t, errors.Is(err, ErrMalformedRow))
}

func TestWithFieldsCopies(t *testing.T) {
	base := New("test error")
	withKey := base.WithField("key", "value")

	assert.Empty(t, base.GetFields())
	assert.Equal(t, "value", withKey.GetFields()["key"])

	both := withKey.WithFields(map[string]interface{}{"row": 12})
	assert.Len(t, both.GetFields(), 2)
	assert.Equal(t, 12, both.GetFields()["row"])
}

func TestWithCode(t *testing.T) {
	err := New("test error").WithCode("TEST_CODE")
	assert.Equal(t, "TEST_CODE", err.GetCode())
	assert.Equal(t, "TEST_CODE", GetErrorCode(fmt.Errorf("outer: %w", err)))
}

func TestDomainConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		target error
		code   string
	}{
		{"missing field", NewMissingField("orig_cause"), ErrMissingField, "MISSING_FIELD"},
		{"invalid record", NewInvalidRecord("no metrics"), ErrInvalidRecord, "INVALID_RECORD"},
		{"malformed row", NewMalformedRow("bad duration"), ErrMalformedRow, "MALFORMED_ROW"},
		{"invalid config", NewInvalidConfig("mos_threshold missing"), ErrInvalidConfig, "INVALID_CONFIG"},
		{"invalid input", NewInvalidInput("bad date"), ErrInvalidInput, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsErrorType(tt.err, tt.target))
			assert.Equal(t, tt.code, tt.err.GetCode())
		})
	}
}

func TestMissingFieldRecordsName(t *testing.T) {
	err := NewMissingField("dest_device", map[string]interface{}{"row": 3})
	fields := GetErrorFields(err)

	assert.Equal(t, "dest_device", fields["field"])
	assert.Equal(t, 3, fields["row"])
	assert.Contains(t, err.Error(), "mandatory field missing")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitConfig, ExitCode(NewInvalidConfig("x")))
	assert.Equal(t, ExitUsage, ExitCode(Wrap(NewInvalidInput("bad date"), "parsing args")))
	assert.Equal(t, ExitInputMissing, ExitCode(fmt.Errorf("load: %w", ErrNoInputFiles)))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitFailure, ExitCode(Wrap(ErrMixedKinds, "aggregate")))
	assert.Equal(t, ExitFailure, ExitCode(NewMalformedRow("short row")))
	assert.Len(t, errorExitCodes, 3)
}

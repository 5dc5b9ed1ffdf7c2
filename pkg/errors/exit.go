package errors

import (
	"errors"
)

// Process exit codes reported by the command line tool
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitUsage        = 2
	ExitConfig       = 3
	ExitInputMissing = 4
)

var errorExitCodes = map[error]int{
	ErrInvalidInput:  ExitUsage,
	ErrInvalidConfig: ExitConfig,
	ErrNoInputFiles:  ExitInputMissing,
}

// ExitCode maps an error to the process exit code for the command line tool.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for target, code := range errorExitCodes {
		if errors.Is(err, target) {
			return code
		}
	}
	return ExitFailure
}

package types

import (
	"errors"

	"github.com/warpfork/go-errcat"
)

type ErrorCategory string

type ExitCode int

const (
	ExitSuccess = ExitCode(0)
	ExitFailure = ExitCode(1) // Validation failed or an operation could not complete.
	ExitUsage   = ExitCode(2) // Invalid invocation or undecodable input.
)

const (
	ErrUsage        = ErrorCategory("codecrate-usage")        // Invalid command line or option value.
	ErrFatalInput   = ErrorCategory("codecrate-fatal-input")  // Input cannot be decoded at all: no manifest, unsupported format, unparseable primary source.
	ErrInconsistent = ErrorCategory("codecrate-inconsistent") // The pack or patch does not agree with itself or with the tree it is applied to.
	ErrSecurity     = ErrorCategory("codecrate-security")     // A path would escape its root. Never downgraded.
	ErrIO           = ErrorCategory("codecrate-io")           // Reading, decoding or writing a specific file failed.
)

// CategoryOf returns the errcat category carried by err or anything it wraps.
func CategoryOf(err error) ErrorCategory {
	var ec errcat.Error
	if errors.As(err, &ec) {
		if c, ok := ec.Category().(ErrorCategory); ok {
			return c
		}
	}
	return ""
}

// ExitCodeFor maps an error to the process exit code the CLI reports.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	switch CategoryOf(err) {
	case ErrUsage, ErrFatalInput:
		return ExitUsage
	default:
		return ExitFailure
	}
}

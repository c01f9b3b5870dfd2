package graph

import (
	"errors"
	"fmt"
)

// ErrInvalidAnalysis is returned by Release when the mandatory validation
// rejects the graph. No release request is sent.
var ErrInvalidAnalysis = errors.New("analysis failed validation")

// UsageError is a client-side mistake detected before any engine call.
type UsageError struct {
	// Code identifies the error category.
	Code UsageErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// UsageErrorCode categorizes usage errors.
type UsageErrorCode string

const (
	// ErrCodeNoActiveContext indicates construction outside any scope.
	ErrCodeNoActiveContext UsageErrorCode = "NO_ACTIVE_CONTEXT"

	// ErrCodeInactiveAnalysis indicates construction on an analysis that
	// is not the active one in its scope.
	ErrCodeInactiveAnalysis UsageErrorCode = "INACTIVE_ANALYSIS"

	// ErrCodeForeignComponent indicates a node owned by another analysis.
	ErrCodeForeignComponent UsageErrorCode = "FOREIGN_COMPONENT"

	// ErrCodeDetachedComponent indicates a node removed by Prune.
	ErrCodeDetachedComponent UsageErrorCode = "DETACHED_COMPONENT"

	// ErrCodeMalformedConstraint indicates a constraint key that does not
	// name an argument and a known suffix, or a bound without its pair.
	ErrCodeMalformedConstraint UsageErrorCode = "MALFORMED_CONSTRAINT"

	// ErrCodeUnsupportedValue indicates a value with no wire representation.
	ErrCodeUnsupportedValue UsageErrorCode = "UNSUPPORTED_VALUE"

	// ErrCodeOptionNotLiteral indicates a node passed as an option.
	ErrCodeOptionNotLiteral UsageErrorCode = "OPTION_NOT_LITERAL"

	// ErrCodeMissingArgument indicates a required input was not supplied.
	ErrCodeMissingArgument UsageErrorCode = "MISSING_ARGUMENT"
)

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageErrorf(code UsageErrorCode, format string, args ...any) *UsageError {
	return &UsageError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsUsageError reports whether err is a UsageError with the given code.
// Uses errors.As to handle wrapped errors.
func IsUsageError(err error, code UsageErrorCode) bool {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}

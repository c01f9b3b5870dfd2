package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// EngineError is a failure reported by the engine. It is surfaced verbatim;
// the client never retries or interprets it.
type EngineError struct {
	// Method is the call that failed.
	Method Method

	// Message is the first line of the engine's report.
	Message string

	// Trace is the engine call stack, innermost frame last. Empty when the
	// engine sent none.
	Trace string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Trace == "" {
		return fmt.Sprintf("engine %s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("engine %s: %s\n%s", e.Method, e.Message, e.Trace)
}

// IsEngineError reports whether err is, or wraps, an EngineError.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// frameMarker splits a backtrace into numbered frames ("\n   12: ").
var frameMarker = regexp.MustCompile(`\n +[0-9]+: `)

// newEngineError builds an EngineError from a raw report. Unless raw is
// set, frames outside the engine's own sources and its error plumbing are
// dropped.
func newEngineError(method Method, report string, raw bool) *EngineError {
	parts := frameMarker.Split(report, -1)
	e := &EngineError{Method: method, Message: strings.TrimSpace(parts[0])}
	if len(parts) == 1 {
		return e
	}
	frames := parts[1:]
	if raw {
		e.Trace = strings.Join(frames, "\n")
		return e
	}

	kept := make([]string, 0, len(frames))
	for _, frame := range frames {
		if !strings.Contains(frame, "at src/") && !strings.Contains(frame, "validator") {
			continue
		}
		if strings.Contains(frame, "errors::Error") {
			continue
		}
		kept = append(kept, "  "+strings.ReplaceAll(frame, "         at", "at"))
	}
	slices.Reverse(kept)
	e.Trace = strings.Join(kept, "\n")
	return e
}

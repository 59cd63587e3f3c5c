package ir

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// RuntimeError is a fatal, non-retried failure. It means the rule tree cannot
// be satisfied as written (malformed phase list, exhausted budget, stalled
// advancement) and callers must discard the attempted operation.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains structured context (phase ids, limits, counts).
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeEmptyPhaseList       RuntimeErrorCode = "EMPTY_PHASE_LIST"
	ErrCodePhaseNotFound        RuntimeErrorCode = "PHASE_NOT_FOUND"
	ErrCodePhaseIndexOutOfRange RuntimeErrorCode = "PHASE_INDEX_OUT_OF_RANGE"
	ErrCodeStallLoopDetected    RuntimeErrorCode = "STALL_LOOP_DETECTED"
	ErrCodeEffectBudgetExceeded RuntimeErrorCode = "EFFECT_BUDGET_EXCEEDED"
	ErrCodeInvalidLimit         RuntimeErrorCode = "INVALID_LIMIT"
	ErrCodeInvalidBudget        RuntimeErrorCode = "INVALID_BUDGET"
	ErrCodeUnknownAction        RuntimeErrorCode = "UNKNOWN_ACTION"
	ErrCodeActionNotAvailable   RuntimeErrorCode = "ACTION_NOT_AVAILABLE"
	ErrCodeUnknownLastingEffect RuntimeErrorCode = "UNKNOWN_LASTING_EFFECT"
	ErrCodeInvalidRuleTree      RuntimeErrorCode = "INVALID_RULE_TREE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		parts = append(parts, k+"="+e.Details[k])
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// NewRuntimeError builds a RuntimeError. details is a flat key/value list;
// a trailing odd key is dropped.
func NewRuntimeError(code RuntimeErrorCode, message string, details ...string) *RuntimeError {
	e := &RuntimeError{Code: code, Message: message}
	if len(details) >= 2 {
		e.Details = make(map[string]string, len(details)/2)
		for i := 0; i+1 < len(details); i += 2 {
			e.Details[details[i]] = details[i+1]
		}
	}
	return e
}

// IsRuntimeError reports whether err wraps a RuntimeError with the given code.
func IsRuntimeError(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// RuntimeCode returns the code of the first RuntimeError in err's chain, or
// an empty code.
func RuntimeCode(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

package eval

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrorCode categorizes evaluation errors.
type ErrorCode string

const (
	// CodeMissingBinding means a lexical name is not bound yet. Discovery
	// callers treat it as "defer until bound", not as invalid.
	CodeMissingBinding ErrorCode = "MISSING_BINDING"

	// CodeMissingVar means a variable is not declared in the state.
	CodeMissingVar ErrorCode = "MISSING_VAR"

	// CodeTypeMismatch means operands disagree in kind or a collection was
	// expected and not found.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeSelectorCardinality means a selector resolved to zero or many
	// targets where exactly one was required.
	CodeSelectorCardinality ErrorCode = "SELECTOR_CARDINALITY"

	// CodeQueryBoundsExceeded means a query produced more items than allowed.
	CodeQueryBoundsExceeded ErrorCode = "QUERY_BOUNDS_EXCEEDED"

	// CodeDivisionByZero is raised by / and % with a zero divisor.
	CodeDivisionByZero ErrorCode = "DIVISION_BY_ZERO"

	// CodeIntegerOverflow means integer arithmetic left the int64 range.
	CodeIntegerOverflow ErrorCode = "INTEGER_OVERFLOW"

	// CodePropertyNotFound means a zone, attribute, prop or marker does not
	// exist. Details always carry "available".
	CodePropertyNotFound ErrorCode = "PROPERTY_NOT_FOUND"
)

// Error is a typed evaluation failure with structured context.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		parts = append(parts, k+"="+e.Details[k])
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// NewError builds an *Error. kv is a flat key/value list of details.
func NewError(code ErrorCode, message string, kv ...string) *Error {
	return newError(code, message, kv...)
}

func newError(code ErrorCode, message string, kv ...string) *Error {
	e := &Error{Code: code, Message: message}
	if len(kv) >= 2 {
		e.Details = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Details[kv[i]] = kv[i+1]
		}
	}
	return e
}

// NotFound builds a PROPERTY_NOT_FOUND error listing the available names.
func NotFound(what, name string, available []string) *Error {
	return notFound(what, name, available)
}

func notFound(what, name string, available []string) *Error {
	sorted := slices.Clone(available)
	slices.Sort(sorted)
	return newError(CodePropertyNotFound, fmt.Sprintf("%s %q not found", what, name),
		what, name,
		"available", strings.Join(sorted, ","))
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsMissingBinding reports whether err is a missing lexical binding.
func IsMissingBinding(err error) bool {
	return CodeOf(err) == CodeMissingBinding
}

// IsDeferrable reports whether err means "not yet resolvable" rather than
// invalid. Move discovery uses it to postpone a check until parameters are
// bound.
func IsDeferrable(err error) bool {
	return IsMissingBinding(err)
}

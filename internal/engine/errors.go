package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/rulekernel/internal/eval"
	"github.com/roach88/rulekernel/internal/ir"
)

// ErrSessionClosed is returned by Submit after Stop.
var ErrSessionClosed = errors.New("session closed")

// CodeInternal is recorded for step failures that carry no typed code.
const CodeInternal = "INTERNAL"

// ErrorCode returns the typed code of a core error: the runtime error code,
// else the evaluation error code, else CodeInternal. It returns "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := ir.RuntimeCode(err); code != "" {
		return string(code)
	}
	if code := eval.CodeOf(err); code != "" {
		return string(code)
	}
	return CodeInternal
}

// RulesMismatchError reports a replay against a rule tree other than the
// one the run was recorded with.
type RulesMismatchError struct {
	RunID    string
	Recorded string
	Current  string
}

func (e *RulesMismatchError) Error() string {
	return fmt.Sprintf("run %s was recorded with rules %s, replaying with %s",
		e.RunID, short(e.Recorded), short(e.Current))
}

// IsRulesMismatch returns true if err is a RulesMismatchError.
// Uses errors.As to handle wrapped errors.
func IsRulesMismatch(err error) bool {
	var re *RulesMismatchError
	return errors.As(err, &re)
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

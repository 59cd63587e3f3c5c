// Package eval evaluates value expressions, conditions and queries against a
// read-only Context.
//
// All entry points are pure: they read the rule tree, the game state and the
// lexical Frame, and never mutate any of them. Failures are *Error values
// with a stable Code so callers can tell "not yet resolvable"
// (MISSING_BINDING) from "invalid" (TYPE_MISMATCH, PROPERTY_NOT_FOUND, ...).
package eval

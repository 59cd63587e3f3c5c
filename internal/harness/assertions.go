package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string               // Assertion type for categorization
	Expected string               // Human-readable expected outcome
	Actual   string               // Human-readable actual outcome
	Trace    []ir.TriggerLogEntry // Trace the assertion looked at
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for i, entry := range e.Trace {
			indent := strings.Repeat("  ", entry.Depth)
			fmt.Fprintf(&buf, "  [%d] %s%s %s on %s\n", i+1, indent, entry.Kind, entry.TriggerID, entry.Event.Kind)
		}
	}

	return buf.String()
}

// AssertionContext carries what state assertions need beyond the result.
type AssertionContext struct {
	// Machine evaluates end conditions for terminal assertions.
	Machine *turnflow.Machine
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	trace := result.Trace(a.Step)
	switch a.Type {
	case AssertTraceEquals:
		return assertTraceEquals(trace, a)
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertVarEquals:
		return assertVarEquals(result.Final, a)
	case AssertZoneCount:
		return assertZoneCount(result.Final, a)
	case AssertPhaseIs:
		return assertPhaseIs(result.Final, a)
	case AssertErrorCode:
		return assertErrorCode(result, a)
	case AssertTerminal:
		if actx == nil || actx.Machine == nil {
			return fmt.Errorf("terminal assertion requires a machine")
		}
		return assertTerminal(actx.Machine, result.Final, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertTraceEquals checks the exact sequence of fired triggers.
func assertTraceEquals(trace []ir.TriggerLogEntry, a Assertion) error {
	fired := Fired(trace)
	if slices.Equal(fired, a.Triggers) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceEquals,
		Expected: fmt.Sprintf("%v", a.Triggers),
		Actual:   fmt.Sprintf("%v", fired),
		Trace:    trace,
	}
}

// assertTraceContains checks that a trigger fired at least once.
func assertTraceContains(trace []ir.TriggerLogEntry, a Assertion) error {
	if slices.Contains(Fired(trace), a.Trigger) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("trigger %s fired", a.Trigger),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that triggers first fired in the given order.
// Intervening triggers are allowed.
func assertTraceOrder(trace []ir.TriggerLogEntry, a Assertion) error {
	fired := Fired(trace)
	prev := -1
	for _, id := range a.Triggers {
		pos := slices.Index(fired, id)
		if pos == -1 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("order %v", a.Triggers),
				Actual:   fmt.Sprintf("trigger %s not found in trace", id),
				Trace:    trace,
			}
		}
		if pos < prev {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("order %v", a.Triggers),
				Actual:   fmt.Sprintf("trigger %s fired at position %d, before position %d", id, pos+1, prev+1),
				Trace:    trace,
			}
		}
		prev = pos
	}
	return nil
}

// assertTraceCount checks how often a trigger fired.
func assertTraceCount(trace []ir.TriggerLogEntry, a Assertion) error {
	count := 0
	for _, id := range Fired(trace) {
		if id == a.Trigger {
			count++
		}
	}
	if count == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("trigger %s fired %d times", a.Trigger, *a.Count),
		Actual:   fmt.Sprintf("fired %d times", count),
		Trace:    trace,
	}
}

// assertVarEquals compares a variable in the final state.
func assertVarEquals(state *ir.GameState, a Assertion) error {
	want, err := ir.FromGo(a.Value)
	if err != nil {
		return fmt.Errorf("var_equals value: %w", err)
	}

	var (
		vars  ir.Object
		label string
	)
	switch ir.VarScope(a.Scope) {
	case "", ir.ScopeGlobal:
		vars, label = state.Globals, a.Var
	case ir.ScopePlayer:
		p := *a.Player
		if p < 0 || p >= len(state.PerPlayer) {
			return fmt.Errorf("var_equals: player %d out of range (players: %d)", p, len(state.PerPlayer))
		}
		vars, label = state.PerPlayer[p], fmt.Sprintf("%s of player %d", a.Var, p)
	case ir.ScopeZone:
		vars, label = state.ZoneVars[a.Zone], fmt.Sprintf("%s of zone %s", a.Var, a.Zone)
	}

	got, ok := vars[a.Var]
	if !ok {
		return &AssertionError{
			Type:     AssertVarEquals,
			Expected: fmt.Sprintf("%s = %s", label, ir.FormatValue(want)),
			Actual:   "variable not found",
		}
	}
	if ir.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertVarEquals,
		Expected: fmt.Sprintf("%s = %s", label, ir.FormatValue(want)),
		Actual:   ir.FormatValue(got),
	}
}

// assertZoneCount checks the number of tokens in a zone.
func assertZoneCount(state *ir.GameState, a Assertion) error {
	tokens, ok := state.Zones[a.Zone]
	if !ok {
		return &AssertionError{
			Type:     AssertZoneCount,
			Expected: fmt.Sprintf("zone %s holds %d tokens", a.Zone, *a.Count),
			Actual:   "zone not found",
		}
	}
	if len(tokens) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertZoneCount,
		Expected: fmt.Sprintf("zone %s holds %d tokens", a.Zone, *a.Count),
		Actual:   fmt.Sprintf("%d tokens", len(tokens)),
	}
}

func assertPhaseIs(state *ir.GameState, a Assertion) error {
	if state.CurrentPhase == a.Phase {
		return nil
	}
	return &AssertionError{
		Type:     AssertPhaseIs,
		Expected: fmt.Sprintf("phase %s", a.Phase),
		Actual:   fmt.Sprintf("phase %s", state.CurrentPhase),
	}
}

// assertErrorCode checks the error code of step a.Step, or of the last step.
func assertErrorCode(result *Result, a Assertion) error {
	if len(result.Steps) == 0 {
		return fmt.Errorf("error_code: no steps executed")
	}
	rec := result.Steps[len(result.Steps)-1]
	if a.Step > 0 {
		i := slices.IndexFunc(result.Steps, func(s StepRecord) bool { return s.Seq == a.Step })
		if i == -1 {
			return fmt.Errorf("error_code: step %d not executed", a.Step)
		}
		rec = result.Steps[i]
	}
	if rec.ErrorCode == a.Code {
		return nil
	}
	return &AssertionError{
		Type:     AssertErrorCode,
		Expected: fmt.Sprintf("step %d error code %q", rec.Seq, a.Code),
		Actual:   fmt.Sprintf("%q", rec.ErrorCode),
	}
}

// assertTerminal evaluates end conditions on the final state.
func assertTerminal(m *turnflow.Machine, state *ir.GameState, a Assertion) error {
	res, err := m.TerminalResult(state)
	if err != nil {
		return fmt.Errorf("terminal: %w", err)
	}

	actual := "none"
	if res != nil {
		actual = string(res.Kind)
		if res.Player != nil {
			actual += fmt.Sprintf(" for player %d", *res.Player)
		}
	}
	expected := a.Result
	if a.Player != nil {
		expected += fmt.Sprintf(" for player %d", *a.Player)
	}

	if a.Result == "none" {
		if res == nil {
			return nil
		}
	} else if res != nil && string(res.Kind) == a.Result &&
		(a.Player == nil || (res.Player != nil && *res.Player == *a.Player)) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTerminal,
		Expected: expected,
		Actual:   actual,
	}
}

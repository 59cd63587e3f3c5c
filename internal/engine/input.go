package engine

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rulekernel/internal/ir"
)

// StepKind names a state-machine operation.
type StepKind string

const (
	StepAdvance           StepKind = "advance"
	StepAdvanceToDecision StepKind = "advance_to_decision"
	StepMove              StepKind = "move"
	StepDispatch          StepKind = "dispatch"
)

// StepInput is one operation submitted to a session. Move is set for
// StepMove, Event for StepDispatch.
type StepInput struct {
	Kind  StepKind         `json:"kind"`
	Move  *ir.Move         `json:"move,omitempty"`
	Event *ir.TriggerEvent `json:"event,omitempty"`
}

// Advance returns the input for one phase advance.
func Advance() StepInput { return StepInput{Kind: StepAdvance} }

// AdvanceToDecision returns the input for advancing to the next decision point.
func AdvanceToDecision() StepInput { return StepInput{Kind: StepAdvanceToDecision} }

// MoveInput returns the input for applying m.
func MoveInput(m ir.Move) StepInput { return StepInput{Kind: StepMove, Move: &m} }

// DispatchInput returns the input for dispatching e at depth 0.
func DispatchInput(e ir.TriggerEvent) StepInput { return StepInput{Kind: StepDispatch, Event: &e} }

// Validate checks that the payload matches the kind.
func (in StepInput) Validate() error {
	switch in.Kind {
	case StepAdvance, StepAdvanceToDecision:
		if in.Move != nil || in.Event != nil {
			return fmt.Errorf("step %s takes no payload", in.Kind)
		}
	case StepMove:
		if in.Move == nil || in.Event != nil {
			return fmt.Errorf("step move needs a move and no event")
		}
	case StepDispatch:
		if in.Event == nil || in.Move != nil {
			return fmt.Errorf("step dispatch needs an event and no move")
		}
		if in.Event.Kind == "" {
			return fmt.Errorf("step dispatch: event kind is required")
		}
	default:
		return fmt.Errorf("unknown step kind %q", in.Kind)
	}
	return nil
}

// Canonical returns the canonical JSON of the input, the form recorded in
// the store.
func (in StepInput) Canonical() (string, error) {
	data, err := ir.MarshalCanonical(in)
	if err != nil {
		return "", fmt.Errorf("encode step input: %w", err)
	}
	return string(data), nil
}

// ParseStepInput decodes a recorded input and validates it.
func ParseStepInput(data string) (StepInput, error) {
	var in StepInput
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return StepInput{}, fmt.Errorf("decode step input: %w", err)
	}
	if err := in.Validate(); err != nil {
		return StepInput{}, err
	}
	return in, nil
}

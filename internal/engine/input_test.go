package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
)

func TestStepInput_Validate(t *testing.T) {
	move := ir.Move{ActionID: "play"}
	event := ir.TriggerEvent{Kind: ir.EventTurnStarted}

	tests := []struct {
		name    string
		in      StepInput
		wantErr string
	}{
		{"advance", Advance(), ""},
		{"advance to decision", AdvanceToDecision(), ""},
		{"move", MoveInput(move), ""},
		{"dispatch", DispatchInput(event), ""},
		{"advance with payload", StepInput{Kind: StepAdvance, Move: &move}, "takes no payload"},
		{"move without move", StepInput{Kind: StepMove}, "needs a move"},
		{"dispatch without kind", DispatchInput(ir.TriggerEvent{}), "event kind is required"},
		{"unknown kind", StepInput{Kind: "jump"}, `unknown step kind "jump"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStepInput_Canonical(t *testing.T) {
	in := MoveInput(ir.Move{ActionID: "bid", Actor: 1, Params: ir.Object{"amount": ir.Int(3), "all": ir.Bool(false)}})

	data, err := in.Canonical()
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"move","move":{"action":"bid","actor":1,"params":{"all":false,"amount":3}}}`, data)

	back, err := ParseStepInput(data)
	require.NoError(t, err)
	assert.Equal(t, in, back)
}

func TestParseStepInput_Rejects(t *testing.T) {
	_, err := ParseStepInput(`{"kind":"move"}`)
	assert.Error(t, err)

	_, err = ParseStepInput(`not json`)
	assert.Error(t, err)
}

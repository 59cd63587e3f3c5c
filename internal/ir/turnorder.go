package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// TurnOrderState is the runtime state of the turn-order strategy. Exactly one
// of the strategy-specific pointers is set, matching Strategy; round-robin
// carries none.
type TurnOrderState struct {
	Strategy     TurnOrderStrategy  `json:"strategy"`
	FixedOrder   *FixedOrderState   `json:"fixed_order,omitempty"`
	CardDriven   *CardDrivenState   `json:"card_driven,omitempty"`
	Simultaneous *SimultaneousState `json:"simultaneous,omitempty"`
}

// FixedOrderState tracks the position in the declared order.
type FixedOrderState struct {
	Index int `json:"index"`
}

// CardDrivenState is the eligibility runtime of card-driven turn flow.
// Seat numbers are positions in CardDrivenDef.Seats and equal player
// indexes.
type CardDrivenState struct {
	Eligible                    []bool                `json:"eligible"`
	CurrentCard                 CardProgress          `json:"current_card"`
	PendingEligibilityOverrides []EligibilityOverride `json:"pending_eligibility_overrides,omitempty"`
	PendingFreeOperationGrants  []FreeOperationGrant  `json:"pending_free_operation_grants,omitempty"`
	ConsecutiveCoupRounds       int                   `json:"consecutive_coup_rounds"`
}

// CardProgress tracks which seats acted on the current card.
type CardProgress struct {
	ActedSeats     []int `json:"acted_seats,omitempty"`
	FirstEligible  *int  `json:"first_eligible,omitempty"`
	SecondEligible *int  `json:"second_eligible,omitempty"`
}

// EligibilityOverride forces a seat's eligibility for the next card.
type EligibilityOverride struct {
	Seat     int  `json:"seat"`
	Eligible bool `json:"eligible"`
}

// FreeOperationGrant lets a seat take one of Actions without cost and
// without spending its eligibility.
type FreeOperationGrant struct {
	Seat    int      `json:"seat"`
	Actions []string `json:"actions"`
}

// SimultaneousState collects one move per player before resolution.
type SimultaneousState struct {
	Submitted []bool  `json:"submitted"`
	Pending   []*Move `json:"pending"`
}

// simultaneousJSON keys pending moves by player so the encoding carries no
// nulls; canonical JSON rejects them.
type simultaneousJSON struct {
	Submitted []bool          `json:"submitted"`
	Pending   map[string]Move `json:"pending"`
}

func (s SimultaneousState) MarshalJSON() ([]byte, error) {
	out := simultaneousJSON{Submitted: s.Submitted, Pending: map[string]Move{}}
	for i, m := range s.Pending {
		if m != nil {
			out.Pending[strconv.Itoa(i)] = *m
		}
	}
	return json.Marshal(out)
}

func (s *SimultaneousState) UnmarshalJSON(data []byte) error {
	var in simultaneousJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Submitted = in.Submitted
	s.Pending = make([]*Move, len(in.Submitted))
	for key, m := range in.Pending {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(s.Pending) {
			return fmt.Errorf("simultaneous pending: invalid player %q", key)
		}
		s.Pending[i] = &m
	}
	return nil
}

// Clone returns a deep copy so strategy updates never alias the previous
// state's slices.
func (t TurnOrderState) Clone() TurnOrderState {
	c := TurnOrderState{Strategy: t.Strategy}
	if t.FixedOrder != nil {
		fo := *t.FixedOrder
		c.FixedOrder = &fo
	}
	if t.CardDriven != nil {
		cd := *t.CardDriven
		cd.Eligible = slices.Clone(cd.Eligible)
		cd.CurrentCard.ActedSeats = slices.Clone(cd.CurrentCard.ActedSeats)
		cd.PendingEligibilityOverrides = slices.Clone(cd.PendingEligibilityOverrides)
		cd.PendingFreeOperationGrants = slices.Clone(cd.PendingFreeOperationGrants)
		c.CardDriven = &cd
	}
	if t.Simultaneous != nil {
		sim := SimultaneousState{
			Submitted: slices.Clone(t.Simultaneous.Submitted),
			Pending:   slices.Clone(t.Simultaneous.Pending),
		}
		c.Simultaneous = &sim
	}
	return c
}

// Acted reports whether seat already acted on the current card.
func (p CardProgress) Acted(seat int) bool {
	return slices.Contains(p.ActedSeats, seat)
}

// BoundaryKind is a duration boundary crossed by a state-machine step.
type BoundaryKind string

const (
	BoundaryCard     BoundaryKind = "card"
	BoundaryCoup     BoundaryKind = "coup"
	BoundaryCampaign BoundaryKind = "campaign"
)

// ActiveLastingEffect is a registered lasting effect. Exactly one remaining
// counter is non-nil, chosen by Duration. Setup and teardown effects are
// resolved from the rule tree by DefID, so the state stays serializable.
type ActiveLastingEffect struct {
	ID       string          `json:"id"`
	SourceID string          `json:"source_id"`
	DefID    string          `json:"def_id"`
	Duration LastingDuration `json:"duration"`

	RemainingCardBoundaries     *int `json:"remaining_card_boundaries,omitempty"`
	RemainingCoupBoundaries     *int `json:"remaining_coup_boundaries,omitempty"`
	RemainingCampaignBoundaries *int `json:"remaining_campaign_boundaries,omitempty"`
}

package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
)

func int64p(n int64) *int64 { return &n }

// validTree is a small tree that passes validation; tests break one thing
// at a time.
func validTree() *ir.RuleTree {
	return &ir.RuleTree{
		Metadata:  ir.Metadata{ID: "duel", MinPlayers: 2, MaxPlayers: 3},
		Globals:   []ir.VariableDef{{Name: "round", Type: ir.VarTypeInt, Init: ir.Int(0), Min: int64p(0), Max: int64p(5)}},
		PerPlayer: []ir.VariableDef{{Name: "score", Type: ir.VarTypeInt}},
		ZoneVars:  []ir.VariableDef{{Name: "supply", Type: ir.VarTypeInt}},
		Zones: []ir.ZoneDef{
			{ID: "deck", Owner: ir.ZoneOwnerNone},
			{ID: "hand", Owner: ir.ZoneOwnerPlayer},
		},
		Markers: []ir.MarkerDef{{ID: "control", States: []string{"none", "red"}, Default: "none"}},
		Phases:  []ir.PhaseDef{{ID: "draw"}, {ID: "main"}},
		TurnOrder: ir.TurnOrderDef{
			Strategy: ir.StrategyRoundRobin,
		},
		Actions: []ir.ActionDef{{
			ID:      "play",
			Phases:  []string{"main"},
			Actor:   ir.ActorActive,
			Limits:  []ir.ActionLimit{{Scope: ir.LimitTurn, Max: 1}},
			Lasting: []string{"rally"},
			Effects: []ir.Effect{
				ir.MoveToken{Token: "$t", From: "hand:actor", To: "deck", Position: ir.PositionBottom},
				ir.SetMarker{Zone: "deck", Marker: "control", State: ir.Literal{Value: ir.Str("red")}},
			},
		}},
		Triggers: []ir.TriggerDef{{
			ID: "tally",
			On: ir.EventMatcher{Kind: ir.EventActionResolved, Action: "play"},
			Effects: []ir.Effect{ir.AddVar{
				Target: ir.VarTarget{Scope: ir.ScopePlayer, Var: "score", Player: "actor"},
				Delta:  ir.Literal{Value: ir.Int(1)},
			}},
		}},
		LastingEffects: []ir.LastingEffectDef{{ID: "rally", Duration: ir.DurationCard}},
		Setup: []ir.Effect{ir.ForEach{
			Bind: "$z",
			Over: ir.ZonesQuery{},
			Effects: []ir.Effect{ir.SetVar{
				Target: ir.VarTarget{Scope: ir.ScopeZone, Var: "supply", Zone: "$z"},
				Value:  ir.Literal{Value: ir.Int(2)},
			}},
		}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateValidTree(t *testing.T) {
	assert.Empty(t, Validate(validTree()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(tree *ir.RuleTree)
		wantCode  string
		wantField string
	}{
		{
			name:      "missing metadata id",
			mutate:    func(tree *ir.RuleTree) { tree.Metadata.ID = " " },
			wantCode:  ErrMetadataID,
			wantField: "metadata.id",
		},
		{
			name:      "zero min players",
			mutate:    func(tree *ir.RuleTree) { tree.Metadata.MinPlayers = 0 },
			wantCode:  ErrPlayerRange,
			wantField: "metadata.min_players",
		},
		{
			name:      "max below min",
			mutate:    func(tree *ir.RuleTree) { tree.Metadata.MaxPlayers = 1 },
			wantCode:  ErrPlayerRange,
			wantField: "metadata.max_players",
		},
		{
			name: "duplicate phase",
			mutate: func(tree *ir.RuleTree) {
				tree.Phases = append(tree.Phases, ir.PhaseDef{ID: "draw"})
			},
			wantCode:  ErrDuplicateID,
			wantField: "phases[2].id",
		},
		{
			name:      "no phases",
			mutate:    func(tree *ir.RuleTree) { tree.Phases = nil; tree.Actions[0].Phases = nil },
			wantCode:  ErrNoPhases,
			wantField: "phases",
		},
		{
			name:      "unknown action phase",
			mutate:    func(tree *ir.RuleTree) { tree.Actions[0].Phases = []string{"combat"} },
			wantCode:  ErrUnknownPhase,
			wantField: "actions[0].phases[0]",
		},
		{
			name:      "unknown lasting effect",
			mutate:    func(tree *ir.RuleTree) { tree.Actions[0].Lasting = []string{"surge"} },
			wantCode:  ErrUnknownLasting,
			wantField: "actions[0].lasting[0]",
		},
		{
			name: "undeclared zone",
			mutate: func(tree *ir.RuleTree) {
				tree.Actions[0].Effects[0] = ir.MoveToken{Token: "$t", To: "graveyard"}
			},
			wantCode:  ErrUnknownZone,
			wantField: "actions[0].effects[0].to",
		},
		{
			name: "player zone without a player",
			mutate: func(tree *ir.RuleTree) {
				tree.Actions[0].Effects[0] = ir.MoveToken{Token: "$t", From: "hand", To: "deck"}
			},
			wantCode:  ErrUnknownZone,
			wantField: "actions[0].effects[0].from",
		},
		{
			name: "shared zone with a player",
			mutate: func(tree *ir.RuleTree) {
				tree.Setup = []ir.Effect{ir.Shuffle{Zone: "deck:0"}}
			},
			wantCode:  ErrUnknownZone,
			wantField: "setup[0].zone",
		},
		{
			name: "unknown marker",
			mutate: func(tree *ir.RuleTree) {
				tree.Actions[0].Effects[1] = ir.SetMarker{Zone: "deck", Marker: "terror", State: ir.Literal{Value: ir.Str("red")}}
			},
			wantCode:  ErrUnknownMarker,
			wantField: "actions[0].effects[1].marker",
		},
		{
			name: "marker state outside its states",
			mutate: func(tree *ir.RuleTree) {
				tree.Actions[0].Effects[1] = ir.SetMarker{Zone: "deck", Marker: "control", State: ir.Literal{Value: ir.Str("blue")}}
			},
			wantCode:  ErrMarkerDefault,
			wantField: "actions[0].effects[1].state",
		},
		{
			name:      "marker default outside its states",
			mutate:    func(tree *ir.RuleTree) { tree.Markers[0].Default = "blue" },
			wantCode:  ErrMarkerDefault,
			wantField: "markers[0].default",
		},
		{
			name: "nested undeclared zone variable",
			mutate: func(tree *ir.RuleTree) {
				tree.ZoneVars = nil
			},
			wantCode:  ErrUnknownVariable,
			wantField: "setup[0].effects[0].var",
		},
		{
			name: "variable in the wrong scope",
			mutate: func(tree *ir.RuleTree) {
				tree.Triggers[0].Effects[0] = ir.AddVar{
					Target: ir.VarTarget{Scope: ir.ScopeGlobal, Var: "score"},
					Delta:  ir.Literal{Value: ir.Int(1)},
				}
			},
			wantCode:  ErrUnknownVariable,
			wantField: "triggers[0].effects[0].var",
		},
		{
			name:      "matcher on unknown action",
			mutate:    func(tree *ir.RuleTree) { tree.Triggers[0].On.Action = "pass" },
			wantCode:  ErrUnknownAction,
			wantField: "triggers[0].on.action",
		},
		{
			name: "matcher on unknown variable",
			mutate: func(tree *ir.RuleTree) {
				tree.Triggers[0].On = ir.EventMatcher{Kind: ir.EventVarChanged, Var: "morale"}
			},
			wantCode:  ErrUnknownVariable,
			wantField: "triggers[0].on.var",
		},
		{
			name: "fixed order without entries",
			mutate: func(tree *ir.RuleTree) {
				tree.TurnOrder = ir.TurnOrderDef{Strategy: ir.StrategyFixedOrder}
			},
			wantCode:  ErrTurnOrder,
			wantField: "turn_order.order",
		},
		{
			name: "fixed order naming absent players",
			mutate: func(tree *ir.RuleTree) {
				tree.TurnOrder = ir.TurnOrderDef{Strategy: ir.StrategyFixedOrder, Order: []string{"2", "x"}}
			},
			wantCode:  ErrTurnOrder,
			wantField: "turn_order.order",
		},
		{
			name: "card driven without config",
			mutate: func(tree *ir.RuleTree) {
				tree.TurnOrder = ir.TurnOrderDef{Strategy: ir.StrategyCardDriven}
			},
			wantCode:  ErrTurnOrder,
			wantField: "turn_order.card_driven",
		},
		{
			name:      "negative limit",
			mutate:    func(tree *ir.RuleTree) { tree.Actions[0].Limits[0].Max = -1 },
			wantCode:  ErrInvalidLimit,
			wantField: "actions[0].limits[0].max",
		},
		{
			name:      "variable bounds inverted",
			mutate:    func(tree *ir.RuleTree) { tree.Globals[0].Min = int64p(6) },
			wantCode:  ErrInvalidVariable,
			wantField: "globals[0]",
		},
		{
			name:      "boolean init on int variable",
			mutate:    func(tree *ir.RuleTree) { tree.Globals[0].Init = ir.Bool(true) },
			wantCode:  ErrInvalidVariable,
			wantField: "globals[0].init",
		},
		{
			name:      "zone id with owner suffix",
			mutate:    func(tree *ir.RuleTree) { tree.Zones = append(tree.Zones, ir.ZoneDef{ID: "pool:1"}) },
			wantCode:  ErrInvalidID,
			wantField: "zones[2].id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := validTree()
			tt.mutate(tree)

			errs := Validate(tree)
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.wantCode)

			var fields []string
			for _, e := range errs {
				if e.Code == tt.wantCode {
					fields = append(fields, e.Field)
				}
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	tree := validTree()
	tree.Metadata.ID = ""
	tree.Actions[0].Phases = []string{"nowhere"}
	tree.Actions[0].Limits[0].Max = -2

	errs := Validate(tree)
	assert.Equal(t, []string{ErrMetadataID, ErrUnknownPhase, ErrInvalidLimit}, codes(errs))
}

func TestValidateCardDriven(t *testing.T) {
	tree := validTree()
	tree.Zones = append(tree.Zones,
		ir.ZoneDef{ID: "played", Owner: ir.ZoneOwnerNone},
		ir.ZoneDef{ID: "next", Owner: ir.ZoneOwnerNone})
	tree.TurnOrder = ir.TurnOrderDef{
		Strategy: ir.StrategyCardDriven,
		CardDriven: &ir.CardDrivenDef{
			Seats:         []string{"us", "them"},
			PlayedZone:    "played",
			LookaheadZone: "next",
			DrawZone:      "deck",
			CoupPhases:    []string{"main"},
		},
	}
	assert.Empty(t, Validate(tree))

	tree.TurnOrder.CardDriven.DrawZone = "hand"
	tree.TurnOrder.CardDriven.CoupPhases = []string{"coup"}
	tree.TurnOrder.CardDriven.Seats = []string{"us", "us", "them", "neutral"}

	errs := Validate(tree)
	assert.ElementsMatch(t, []string{ErrTurnOrder, ErrDuplicateID, ErrUnknownZone, ErrUnknownPhase}, codes(errs))
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "phases", Message: "at least one phase is required", Code: ErrNoPhases}
	assert.Equal(t, "[E104] phases: at least one phase is required", err.Error())

	err.Line = 7
	assert.Equal(t, "[E104] line 7: phases: at least one phase is required", err.Error())
}

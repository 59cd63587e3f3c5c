package testutil

import "github.com/roach88/rulekernel/internal/ir"

// TallyDigest is the digest stamped on TallyTree. Trees built in code are
// not compiled, so they carry a fixed digest instead of a computed one.
const TallyDigest = "tally-test-digest"

// TallyTree returns a two-player round-robin rule tree.
//
// Each turn has a "draw" phase without actions and a "main" phase where the
// active player may "play" once (score +1, their vp +1) or "pass". The
// "count-plays" trigger counts resolved plays. The game is won by the
// active player once score reaches 3.
func TallyTree() *ir.RuleTree {
	one := ir.Literal{Value: ir.Int(1)}
	return &ir.RuleTree{
		Digest:    TallyDigest,
		Metadata:  ir.Metadata{ID: "tally", MinPlayers: 2, MaxPlayers: 2},
		Globals:   []ir.VariableDef{{Name: "score", Type: ir.VarTypeInt}, {Name: "plays", Type: ir.VarTypeInt}},
		PerPlayer: []ir.VariableDef{{Name: "vp", Type: ir.VarTypeInt}},
		Zones:     []ir.ZoneDef{{ID: "deck"}, {ID: "hand", Owner: ir.ZoneOwnerPlayer}},
		Phases:    []ir.PhaseDef{{ID: "draw"}, {ID: "main"}},
		TurnOrder: ir.TurnOrderDef{Strategy: ir.StrategyRoundRobin},
		Actions: []ir.ActionDef{
			{
				ID:     "play",
				Phases: []string{"main"},
				Actor:  ir.ActorActive,
				Limits: []ir.ActionLimit{{Scope: ir.LimitTurn, Max: 1}},
				Effects: []ir.Effect{
					ir.AddVar{Target: ir.VarTarget{Scope: ir.ScopeGlobal, Var: "score"}, Delta: one},
					ir.AddVar{Target: ir.VarTarget{Scope: ir.ScopePlayer, Var: "vp", Player: "actor"}, Delta: one},
				},
			},
			{ID: "pass", Phases: []string{"main"}, Actor: ir.ActorActive},
		},
		Triggers: []ir.TriggerDef{{
			ID: "count-plays",
			On: ir.EventMatcher{Kind: ir.EventActionResolved, Action: "play"},
			Effects: []ir.Effect{
				ir.AddVar{Target: ir.VarTarget{Scope: ir.ScopeGlobal, Var: "plays"}, Delta: one},
			},
		}},
		EndConditions: []ir.EndCondition{{
			When:   ir.Compare{Op: ">=", Left: ir.Ref{Kind: ir.RefGlobalVar, Var: "score"}, Right: ir.Literal{Value: ir.Int(3)}},
			Result: ir.EndResult{Kind: ir.ResultWin, Player: "active"},
		}},
	}
}

package compiler

import (
	"fmt"

	"github.com/roach88/rulekernel/internal/ir"
)

// effectSource pairs an effect list with the document path it was declared at.
type effectSource struct {
	path    string
	effects []ir.Effect
}

// treeEffects lists every effect list of the tree in declaration order.
func treeEffects(tree *ir.RuleTree) []effectSource {
	out := []effectSource{{"setup", tree.Setup}}
	for i, a := range tree.Actions {
		out = append(out,
			effectSource{fmt.Sprintf("actions[%d].cost", i), a.Cost},
			effectSource{fmt.Sprintf("actions[%d].effects", i), a.Effects})
	}
	for i, t := range tree.Triggers {
		out = append(out, effectSource{fmt.Sprintf("triggers[%d].effects", i), t.Effects})
	}
	for i, l := range tree.LastingEffects {
		out = append(out,
			effectSource{fmt.Sprintf("lasting_effects[%d].setup", i), l.Setup},
			effectSource{fmt.Sprintf("lasting_effects[%d].teardown", i), l.Teardown})
	}
	return out
}

// walkEffects calls fn for every effect in effs, depth first, including the
// bodies of control-flow and binding effects.
func walkEffects(effs []ir.Effect, path string, fn func(e ir.Effect, path string)) {
	for i, e := range effs {
		p := index(path, i)
		fn(e, p)
		switch e := e.(type) {
		case ir.CreateToken:
			walkEffects(e.In, p+".in", fn)
		case ir.RollRandom:
			walkEffects(e.In, p+".in", fn)
		case ir.If:
			walkEffects(e.Then, p+".then", fn)
			walkEffects(e.Else, p+".else", fn)
		case ir.Let:
			walkEffects(e.In, p+".in", fn)
		case ir.ForEach:
			walkEffects(e.Effects, p+".effects", fn)
			walkEffects(e.In, p+".in", fn)
		case ir.RemoveByPriority:
			walkEffects(e.In, p+".in", fn)
		}
	}
}

// zoneRef is a zone selector an effect names directly, with the field it
// came from.
type zoneRef struct {
	field    string
	selector string
	// entered is set when tokens enter the zone.
	entered bool
}

func effectZones(e ir.Effect) []zoneRef {
	switch e := e.(type) {
	case ir.MoveToken:
		refs := []zoneRef{{"to", e.To, true}}
		if e.From != "" {
			refs = append(refs, zoneRef{"from", e.From, false})
		}
		return refs
	case ir.MoveAll:
		return []zoneRef{{"from", e.From, false}, {"to", e.To, true}}
	case ir.Draw:
		return []zoneRef{{"from", e.From, false}, {"to", e.To, true}}
	case ir.CreateToken:
		return []zoneRef{{"zone", e.Zone, true}}
	case ir.SetMarker:
		return []zoneRef{{"zone", e.Zone, false}}
	case ir.Shuffle:
		return []zoneRef{{"zone", e.Zone, false}}
	case ir.RemoveByPriority:
		var refs []zoneRef
		for i, g := range e.Groups {
			refs = append(refs, zoneRef{fmt.Sprintf("groups[%d].to", i), g.To, true})
		}
		return refs
	case ir.SetVar:
		return targetZone(e.Target)
	case ir.AddVar:
		return targetZone(e.Target)
	}
	return nil
}

func targetZone(t ir.VarTarget) []zoneRef {
	if t.Scope != ir.ScopeZone {
		return nil
	}
	return []zoneRef{{"zone", t.Zone, false}}
}

func effectTarget(e ir.Effect) (ir.VarTarget, bool) {
	switch e := e.(type) {
	case ir.SetVar:
		return e.Target, true
	case ir.AddVar:
		return e.Target, true
	}
	return ir.VarTarget{}, false
}

package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/rulekernel/internal/ir"
)

// Player resolves a player selector: "actor", "active", "$name" bound to an
// integer, or a literal index.
func Player(sel string, ctx *Context) (int, error) {
	var p int
	switch {
	case sel == "actor":
		p = ctx.Actor
	case sel == "active":
		p = ctx.ActivePlayer
	case strings.HasPrefix(sel, "$"):
		v, err := lookup(sel, ctx)
		if err != nil {
			return 0, err
		}
		switch val := v.(type) {
		case ir.Int:
			p = int(val)
		case ir.List:
			return 0, newError(CodeSelectorCardinality,
				fmt.Sprintf("player selector %s bound to %d values", sel, len(val)),
				"selector", sel)
		default:
			return 0, newError(CodeTypeMismatch,
				fmt.Sprintf("player selector %s bound to %s", sel, ir.KindOf(v)),
				"selector", sel, "expected", string(ir.KindInt))
		}
	default:
		n, err := strconv.Atoi(sel)
		if err != nil {
			return 0, newError(CodeTypeMismatch, fmt.Sprintf("invalid player selector %q", sel), "selector", sel)
		}
		p = n
	}
	if p < 0 || p >= ctx.State.PlayerCount {
		return 0, newError(CodeSelectorCardinality,
			fmt.Sprintf("player selector %q resolved to no player", sel),
			"selector", sel,
			"player", strconv.Itoa(p),
			"player_count", strconv.Itoa(ctx.State.PlayerCount))
	}
	return p, nil
}

// Zone resolves a zone selector to an instantiated zone id: "<id>",
// "<id>:<playerSel>", or "$name" bound to a string.
func Zone(sel string, ctx *Context) (string, error) {
	var id string
	switch {
	case strings.HasPrefix(sel, "$"):
		v, err := lookup(sel, ctx)
		if err != nil {
			return "", err
		}
		switch val := v.(type) {
		case ir.Str:
			id = string(val)
		case ir.List:
			if len(val) != 1 {
				return "", newError(CodeSelectorCardinality,
					fmt.Sprintf("zone selector %s bound to %d values", sel, len(val)),
					"selector", sel)
			}
			s, ok := val[0].(ir.Str)
			if !ok {
				return "", newError(CodeTypeMismatch, fmt.Sprintf("zone selector %s bound to non-string", sel), "selector", sel)
			}
			id = string(s)
		default:
			return "", newError(CodeTypeMismatch,
				fmt.Sprintf("zone selector %s bound to %s", sel, ir.KindOf(v)),
				"selector", sel, "expected", string(ir.KindString))
		}
	case strings.Contains(sel, ":"):
		base, playerSel, _ := strings.Cut(sel, ":")
		p, err := Player(playerSel, ctx)
		if err != nil {
			return "", err
		}
		id = fmt.Sprintf("%s:%d", base, p)
	default:
		id = sel
	}

	if _, ok := ctx.State.Zones[id]; ok {
		return id, nil
	}
	if def, ok := ctx.Tree.Zone(id); ok && def.Owner == ir.ZoneOwnerPlayer {
		return "", newError(CodeSelectorCardinality,
			fmt.Sprintf("zone %q is owned per player; select one with %s:<player>", id, id),
			"selector", sel)
	}
	return "", notFound("zone", id, ctx.State.ZoneIDs())
}

// ZoneDefID strips the owner suffix from an instantiated zone id.
func ZoneDefID(zone string) string {
	base, _, _ := strings.Cut(zone, ":")
	return base
}

func lookup(name string, ctx *Context) (ir.Value, error) {
	if v, ok := ctx.Lookup(name); ok {
		return v, nil
	}
	return nil, newError(CodeMissingBinding, fmt.Sprintf("binding %s is not bound", name),
		"name", name,
		"available", strings.Join(ctx.visibleNames(), ","))
}

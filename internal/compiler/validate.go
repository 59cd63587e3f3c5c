package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/rulekernel/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Metadata errors (E101-E102)
	ErrMetadataID  = "E101" // metadata.id is required
	ErrPlayerRange = "E102" // invalid min/max player counts

	// Declaration errors (E103-E104, E113-E115)
	ErrDuplicateID     = "E103" // duplicate id within a section
	ErrNoPhases        = "E104" // at least one phase required
	ErrInvalidVariable = "E113" // bad bounds or init type
	ErrMarkerDefault   = "E114" // marker default not among its states
	ErrInvalidID       = "E115" // id is not a plain identifier

	// Reference errors (E105-E110)
	ErrUnknownPhase    = "E105" // phase id not declared
	ErrUnknownLasting  = "E106" // lasting effect id not declared
	ErrUnknownZone     = "E107" // static zone selector names no declared zone
	ErrUnknownMarker   = "E108" // marker id not declared
	ErrUnknownVariable = "E109" // variable not declared in its scope
	ErrUnknownAction   = "E110" // trigger matcher names an undeclared action

	// Turn flow errors (E111-E112)
	ErrTurnOrder    = "E111" // turn order configuration is inconsistent
	ErrInvalidLimit = "E112" // negative usage limit
)

// ValidationError represents a rule tree validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// idPattern matches declared ids. The colon is reserved for the owner
// suffix of player zones and "$" for bindings.
var idPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

// Validate checks the cross-references and consistency of a compiled rule
// tree. Returns all errors found (does not fail-fast).
func Validate(tree *ir.RuleTree) []ValidationError {
	v := &validator{tree: tree}
	v.metadata()
	v.variables()
	v.declarations()
	v.turnOrder()
	v.actions()
	v.triggers()
	v.effects()
	return v.errs
}

type validator struct {
	tree *ir.RuleTree
	errs []ValidationError
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) metadata() {
	md := v.tree.Metadata
	if strings.TrimSpace(md.ID) == "" {
		v.add(ErrMetadataID, "metadata.id", "id is required and must be non-empty")
	}
	if md.MinPlayers < 1 {
		v.add(ErrPlayerRange, "metadata.min_players", "min_players must be at least 1, got %d", md.MinPlayers)
	}
	if md.MaxPlayers < md.MinPlayers {
		v.add(ErrPlayerRange, "metadata.max_players",
			"max_players %d is less than min_players %d", md.MaxPlayers, md.MinPlayers)
	}
}

func (v *validator) variables() {
	for _, section := range []struct {
		name string
		defs []ir.VariableDef
	}{
		{"globals", v.tree.Globals},
		{"per_player", v.tree.PerPlayer},
		{"zone_vars", v.tree.ZoneVars},
	} {
		seen := make(map[string]bool)
		for i, d := range section.defs {
			field := fmt.Sprintf("%s[%d]", section.name, i)
			v.id(field+".name", d.Name, seen)
			if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
				v.add(ErrInvalidVariable, field, "min %d is greater than max %d", *d.Min, *d.Max)
			}
			if d.Init == nil {
				continue
			}
			want := ir.KindInt
			if d.Type == ir.VarTypeBoolean {
				want = ir.KindBool
			}
			if got := ir.KindOf(d.Init); got != want {
				v.add(ErrInvalidVariable, field+".init", "init is %s, variable %q is %s", got, d.Name, d.Type)
			}
		}
	}
}

// id checks one declared id for shape and uniqueness within seen.
func (v *validator) id(field, id string, seen map[string]bool) {
	if !idPattern.MatchString(id) {
		v.add(ErrInvalidID, field, "invalid id %q", id)
	}
	if seen[id] {
		v.add(ErrDuplicateID, field, "duplicate id %q", id)
	}
	seen[id] = true
}

func (v *validator) declarations() {
	seen := make(map[string]bool)
	for i, z := range v.tree.Zones {
		v.id(fmt.Sprintf("zones[%d].id", i), z.ID, seen)
	}

	seen = make(map[string]bool)
	for i, m := range v.tree.Markers {
		field := fmt.Sprintf("markers[%d]", i)
		v.id(field+".id", m.ID, seen)
		if !slices.Contains(m.States, m.Default) {
			v.add(ErrMarkerDefault, field+".default",
				"default %q is not one of %s", m.Default, strings.Join(m.States, ", "))
		}
	}

	if len(v.tree.Phases) == 0 {
		v.add(ErrNoPhases, "phases", "at least one phase is required")
	}
	seen = make(map[string]bool)
	for i, p := range v.tree.Phases {
		v.id(fmt.Sprintf("phases[%d].id", i), p.ID, seen)
	}

	seen = make(map[string]bool)
	for i, a := range v.tree.Actions {
		v.id(fmt.Sprintf("actions[%d].id", i), a.ID, seen)
	}
	seen = make(map[string]bool)
	for i, t := range v.tree.Triggers {
		v.id(fmt.Sprintf("triggers[%d].id", i), t.ID, seen)
	}
	seen = make(map[string]bool)
	for i, l := range v.tree.LastingEffects {
		v.id(fmt.Sprintf("lasting_effects[%d].id", i), l.ID, seen)
	}
}

func (v *validator) phase(field, id string) {
	if v.tree.PhaseIndex(id) < 0 {
		v.add(ErrUnknownPhase, field, "unknown phase %q", id)
	}
}

func (v *validator) turnOrder() {
	to := v.tree.TurnOrder
	switch to.Strategy {
	case ir.StrategyFixedOrder:
		if len(to.Order) == 0 {
			v.add(ErrTurnOrder, "turn_order.order", "fixedOrder requires a non-empty order")
		}
		valid := 0
		for _, entry := range to.Order {
			if n, err := strconv.Atoi(entry); err == nil && n >= 0 && n < v.tree.Metadata.MinPlayers {
				valid++
			}
		}
		if len(to.Order) > 0 && valid == 0 {
			v.add(ErrTurnOrder, "turn_order.order",
				"no order entry names a player present at %d players", v.tree.Metadata.MinPlayers)
		}
	case ir.StrategyCardDriven:
		if to.CardDriven == nil {
			v.add(ErrTurnOrder, "turn_order.card_driven", "cardDriven requires a card_driven section")
			return
		}
	}
	cd := to.CardDriven
	if cd == nil {
		return
	}
	if to.Strategy != ir.StrategyCardDriven {
		v.add(ErrTurnOrder, "turn_order.card_driven", "card_driven is only used by the cardDriven strategy")
	}
	if n := len(cd.Seats); n < v.tree.Metadata.MinPlayers || n > v.tree.Metadata.MaxPlayers {
		v.add(ErrTurnOrder, "turn_order.card_driven.seats",
			"%d seats outside the supported player range %d-%d", n, v.tree.Metadata.MinPlayers, v.tree.Metadata.MaxPlayers)
	}
	seen := make(map[string]bool)
	for i, s := range cd.Seats {
		v.id(fmt.Sprintf("turn_order.card_driven.seats[%d]", i), s, seen)
	}
	for _, z := range []struct{ field, id string }{
		{"played_zone", cd.PlayedZone},
		{"lookahead_zone", cd.LookaheadZone},
		{"draw_zone", cd.DrawZone},
		{"discard_zone", cd.DiscardZone},
	} {
		if z.id != "" {
			v.zone("turn_order.card_driven."+z.field, z.id)
		}
	}
	for i, p := range cd.CoupPhases {
		v.phase(fmt.Sprintf("turn_order.card_driven.coup_phases[%d]", i), p)
	}
	for i, p := range cd.FinalCoupOmitPhases {
		v.phase(fmt.Sprintf("turn_order.card_driven.final_coup_omit_phases[%d]", i), p)
	}
}

func (v *validator) actions() {
	for i, a := range v.tree.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		for j, p := range a.Phases {
			v.phase(fmt.Sprintf("%s.phases[%d]", field, j), p)
		}
		for j, l := range a.Limits {
			if l.Max < 0 {
				v.add(ErrInvalidLimit, fmt.Sprintf("%s.limits[%d].max", field, j), "max must be non-negative, got %d", l.Max)
			}
		}
		for j, id := range a.Lasting {
			if _, ok := v.tree.Lasting(id); !ok {
				v.add(ErrUnknownLasting, fmt.Sprintf("%s.lasting[%d]", field, j), "unknown lasting effect %q", id)
			}
		}
	}
}

func (v *validator) triggers() {
	for i, t := range v.tree.Triggers {
		field := fmt.Sprintf("triggers[%d].on", i)
		m := t.On
		if m.Phase != "" {
			v.phase(field+".phase", m.Phase)
		}
		if m.Action != "" {
			if _, ok := v.tree.Action(m.Action); !ok {
				v.add(ErrUnknownAction, field+".action", "unknown action %q", m.Action)
			}
		}
		if m.Zone != "" {
			v.zone(field+".zone", m.Zone)
		}
		if m.Var != "" && !v.declaredAnywhere(m.Var) {
			v.add(ErrUnknownVariable, field+".var", "unknown variable %q", m.Var)
		}
	}
}

func (v *validator) declaredAnywhere(name string) bool {
	for _, defs := range [][]ir.VariableDef{v.tree.Globals, v.tree.PerPlayer, v.tree.ZoneVars} {
		if _, ok := ir.VarDef(defs, name); ok {
			return true
		}
	}
	return false
}

// zone checks a static zone selector. Bindings resolve at run time; a
// "<id>:<player>" selector must name a player-owned zone, and a bare id a
// shared one.
func (v *validator) zone(field, sel string) {
	if strings.HasPrefix(sel, "$") {
		return
	}
	base, _, owned := strings.Cut(sel, ":")
	def, ok := v.tree.Zone(base)
	switch {
	case !ok:
		v.add(ErrUnknownZone, field, "unknown zone %q", base)
	case owned && def.Owner != ir.ZoneOwnerPlayer:
		v.add(ErrUnknownZone, field, "zone %q is not owned per player", base)
	case !owned && def.Owner == ir.ZoneOwnerPlayer:
		v.add(ErrUnknownZone, field, "zone %q is owned per player; select one with %s:<player>", base, base)
	}
}

func (v *validator) effects() {
	for _, src := range treeEffects(v.tree) {
		walkEffects(src.effects, src.path, func(e ir.Effect, path string) {
			for _, ref := range effectZones(e) {
				v.zone(path+"."+ref.field, ref.selector)
			}
			if t, ok := effectTarget(e); ok {
				v.target(path, t)
			}
			if m, ok := e.(ir.SetMarker); ok {
				v.marker(path, m)
			}
		})
	}
}

func (v *validator) target(path string, t ir.VarTarget) {
	defs := v.tree.Globals
	switch t.Scope {
	case ir.ScopePlayer:
		defs = v.tree.PerPlayer
	case ir.ScopeZone:
		defs = v.tree.ZoneVars
	}
	if _, ok := ir.VarDef(defs, t.Var); !ok {
		v.add(ErrUnknownVariable, path+".var", "unknown %s variable %q", t.Scope, t.Var)
	}
}

func (v *validator) marker(path string, m ir.SetMarker) {
	i := slices.IndexFunc(v.tree.Markers, func(d ir.MarkerDef) bool { return d.ID == m.Marker })
	if i < 0 {
		v.add(ErrUnknownMarker, path+".marker", "unknown marker %q", m.Marker)
		return
	}
	lit, ok := m.State.(ir.Literal)
	if !ok {
		return
	}
	s, ok := lit.Value.(ir.Str)
	if ok && !slices.Contains(v.tree.Markers[i].States, string(s)) {
		v.add(ErrMarkerDefault, path+".state",
			"state %q is not one of %s", s, strings.Join(v.tree.Markers[i].States, ", "))
	}
}

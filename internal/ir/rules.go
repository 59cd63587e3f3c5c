package ir

// RuleTree is the static, compiled declaration of a game. The core reads it
// and never mutates it.
type RuleTree struct {
	Metadata       Metadata           `json:"metadata"`
	Globals        []VariableDef      `json:"globals,omitempty"`
	PerPlayer      []VariableDef      `json:"per_player,omitempty"`
	ZoneVars       []VariableDef      `json:"zone_vars,omitempty"`
	Zones          []ZoneDef          `json:"zones,omitempty"`
	Markers        []MarkerDef        `json:"markers,omitempty"`
	Phases         []PhaseDef         `json:"phases"`
	TurnOrder      TurnOrderDef       `json:"turn_order"`
	Actions        []ActionDef        `json:"actions,omitempty"`
	Triggers       []TriggerDef       `json:"triggers,omitempty"`
	LastingEffects []LastingEffectDef `json:"lasting_effects,omitempty"`
	EndConditions  []EndCondition     `json:"end_conditions,omitempty"`
	Setup          []Effect           `json:"-"`

	// Digest is the domain-separated hash of the source document the tree
	// was compiled from. Stored runs use it to refuse replay against a
	// different rule set.
	Digest string `json:"digest,omitempty"`
}

// Metadata identifies the game and its supported player counts.
type Metadata struct {
	ID         string `json:"id"`
	MinPlayers int    `json:"min_players"`
	MaxPlayers int    `json:"max_players"`
}

// VarType is the declared type of a variable.
type VarType string

const (
	VarTypeInt     VarType = "int"
	VarTypeBoolean VarType = "boolean"
)

// VariableDef declares a global, per-player or per-zone variable.
// Integer writes are clamped to [Min, Max] when bounds are set.
type VariableDef struct {
	Name string  `json:"name"`
	Type VarType `json:"type"`
	Init Value   `json:"-"`
	Min  *int64  `json:"min,omitempty"`
	Max  *int64  `json:"max,omitempty"`
}

// Clamp bounds n to the declared range.
func (d VariableDef) Clamp(n int64) int64 {
	if d.Min != nil && n < *d.Min {
		n = *d.Min
	}
	if d.Max != nil && n > *d.Max {
		n = *d.Max
	}
	return n
}

// ZoneOwner says whether a zone exists once or once per player.
type ZoneOwner string

const (
	ZoneOwnerNone   ZoneOwner = "none"
	ZoneOwnerPlayer ZoneOwner = "player"
)

// ZoneDef declares a zone. Player-owned zones are instantiated as
// "<id>:<player>" for every player.
type ZoneDef struct {
	ID         string    `json:"id"`
	Owner      ZoneOwner `json:"owner,omitempty"`
	Attributes Object    `json:"attributes,omitempty"`
}

// MarkerDef declares a marker present on every zone.
type MarkerDef struct {
	ID      string   `json:"id"`
	States  []string `json:"states"`
	Default string   `json:"default"`
}

// PhaseDef declares one phase of a turn.
type PhaseDef struct {
	ID string `json:"id"`
}

// TurnOrderStrategy selects the turn-order policy.
type TurnOrderStrategy string

const (
	StrategyRoundRobin   TurnOrderStrategy = "roundRobin"
	StrategyFixedOrder   TurnOrderStrategy = "fixedOrder"
	StrategyCardDriven   TurnOrderStrategy = "cardDriven"
	StrategySimultaneous TurnOrderStrategy = "simultaneous"
)

// TurnOrderDef configures the turn-order strategy. Order lists player
// indexes as strings for the fixed-order strategy.
type TurnOrderDef struct {
	Strategy   TurnOrderStrategy `json:"strategy"`
	Order      []string          `json:"order,omitempty"`
	CardDriven *CardDrivenDef    `json:"card_driven,omitempty"`
}

// CardDrivenDef configures card-driven turn flow. Seats are listed in
// eligibility order and map to player indexes by position.
type CardDrivenDef struct {
	Seats         []string `json:"seats"`
	PlayedZone    string   `json:"played_zone"`
	LookaheadZone string   `json:"lookahead_zone"`
	DrawZone      string   `json:"draw_zone"`
	DiscardZone   string   `json:"discard_zone,omitempty"`

	// CoupProp names the boolean token prop that marks a coup card.
	CoupProp string `json:"coup_prop,omitempty"`

	// CoupPhases are the phases played on a coup card. Normal cards play
	// the remaining phases.
	CoupPhases []string `json:"coup_phases,omitempty"`

	// FinalCoupOmitPhases are dropped from the coup phase list once the
	// lookahead and draw zones are both empty.
	FinalCoupOmitPhases []string `json:"final_coup_omit_phases,omitempty"`
}

// ActorRule says who may take an action.
type ActorRule string

const (
	ActorActive ActorRule = "active"
	ActorAny    ActorRule = "any"
)

// LimitScope is the window an action usage limit counts over.
type LimitScope string

const (
	LimitTurn  LimitScope = "turn"
	LimitPhase LimitScope = "phase"
	LimitGame  LimitScope = "game"
)

// ActionLimit caps how often an action may be taken in a window.
type ActionLimit struct {
	Scope LimitScope `json:"scope"`
	Max   int        `json:"max"`
}

// ActionDef declares a move.
type ActionDef struct {
	ID      string        `json:"id"`
	Phases  []string      `json:"phases"`
	Actor   ActorRule     `json:"actor,omitempty"`
	Pre     Condition     `json:"-"`
	Cost    []Effect      `json:"-"`
	Effects []Effect      `json:"-"`
	Limits  []ActionLimit `json:"limits,omitempty"`

	// Lasting lists lasting effect definitions activated when the move
	// resolves.
	Lasting []string `json:"lasting,omitempty"`
}

// AllowedIn reports whether the action is declared for phase.
func (a *ActionDef) AllowedIn(phase string) bool {
	for _, p := range a.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// EventMatcher is the static part of a trigger: the event kind plus optional
// equality filters. Empty filter fields match anything.
type EventMatcher struct {
	Kind   EventKind `json:"kind"`
	Phase  string    `json:"phase,omitempty"`
	Action string    `json:"action,omitempty"`
	Zone   string    `json:"zone,omitempty"`
	Var    string    `json:"var,omitempty"`
}

// Matches reports whether e satisfies every set field of m.
func (m EventMatcher) Matches(e TriggerEvent) bool {
	if m.Kind != e.Kind {
		return false
	}
	if m.Phase != "" && m.Phase != e.Phase {
		return false
	}
	if m.Action != "" && m.Action != e.Action {
		return false
	}
	if m.Zone != "" && m.Zone != e.Zone {
		return false
	}
	if m.Var != "" && m.Var != e.Var {
		return false
	}
	return true
}

// TriggerDef declares a reactive rule. Match and When are optional dynamic
// predicates evaluated with the event's fields bound.
type TriggerDef struct {
	ID      string       `json:"id"`
	On      EventMatcher `json:"on"`
	Match   Condition    `json:"-"`
	When    Condition    `json:"-"`
	Effects []Effect     `json:"-"`
}

// LastingDuration is the duration class of a lasting effect.
type LastingDuration string

const (
	DurationCard     LastingDuration = "card"
	DurationNextCard LastingDuration = "nextCard"
	DurationCoup     LastingDuration = "coup"
	DurationCampaign LastingDuration = "campaign"
)

// LastingEffectDef declares a time-scoped modifier.
type LastingEffectDef struct {
	ID       string          `json:"id"`
	Duration LastingDuration `json:"duration"`
	Setup    []Effect        `json:"-"`
	Teardown []Effect        `json:"-"`
}

// ResultKind is the kind of terminal game result.
type ResultKind string

const (
	ResultWin  ResultKind = "win"
	ResultDraw ResultKind = "draw"
)

// EndCondition yields Result once When holds.
type EndCondition struct {
	When   Condition `json:"-"`
	Result EndResult `json:"result"`
}

// EndResult names the outcome. Player is a player selector for wins.
type EndResult struct {
	Kind   ResultKind `json:"kind"`
	Player string     `json:"player,omitempty"`
}

// TerminalResult is a resolved end condition.
type TerminalResult struct {
	Kind   ResultKind `json:"kind"`
	Player *int       `json:"player,omitempty"`
}

// PhaseIndex returns the index of phase id in the declared list, or -1.
func (t *RuleTree) PhaseIndex(id string) int {
	for i, p := range t.Phases {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Action looks up an action by id.
func (t *RuleTree) Action(id string) (*ActionDef, bool) {
	for i := range t.Actions {
		if t.Actions[i].ID == id {
			return &t.Actions[i], true
		}
	}
	return nil, false
}

// Lasting looks up a lasting effect definition by id.
func (t *RuleTree) Lasting(id string) (*LastingEffectDef, bool) {
	for i := range t.LastingEffects {
		if t.LastingEffects[i].ID == id {
			return &t.LastingEffects[i], true
		}
	}
	return nil, false
}

// Zone looks up a zone definition by its declared id (without owner suffix).
func (t *RuleTree) Zone(id string) (*ZoneDef, bool) {
	for i := range t.Zones {
		if t.Zones[i].ID == id {
			return &t.Zones[i], true
		}
	}
	return nil, false
}

// VarDef looks up a variable declaration in defs.
func VarDef(defs []VariableDef, name string) (VariableDef, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return VariableDef{}, false
}

package ir

// EventKind is the closed set of events the dispatcher reacts to.
type EventKind string

const (
	EventPhaseEntered   EventKind = "phaseEntered"
	EventPhaseExited    EventKind = "phaseExited"
	EventTurnStarted    EventKind = "turnStarted"
	EventTurnEnded      EventKind = "turnEnded"
	EventActionResolved EventKind = "actionResolved"
	EventTokenEntered   EventKind = "tokenEntered"
	EventVarChanged     EventKind = "varChanged"
)

// ValidEventKinds is used by the compiler to reject unknown matchers.
var ValidEventKinds = map[EventKind]bool{
	EventPhaseEntered:   true,
	EventPhaseExited:    true,
	EventTurnStarted:    true,
	EventTurnEnded:      true,
	EventActionResolved: true,
	EventTokenEntered:   true,
	EventVarChanged:     true,
}

// TriggerEvent carries the minimal payload of one event. Which fields are
// set depends on Kind:
//
//	phaseEntered, phaseExited: Phase
//	turnStarted, turnEnded:    (none)
//	actionResolved:            Action, Player (the actor)
//	tokenEntered:              Zone, Token
//	varChanged:                Var, Scope, and Player or Zone for scoped vars
type TriggerEvent struct {
	Kind   EventKind `json:"kind"`
	Phase  string    `json:"phase,omitempty"`
	Action string    `json:"action,omitempty"`
	Zone   string    `json:"zone,omitempty"`
	Token  string    `json:"token,omitempty"`
	Var    string    `json:"var,omitempty"`
	Scope  VarScope  `json:"scope,omitempty"`
	Player *int      `json:"player,omitempty"`
}

// Bindings returns the event's dynamic fields as "$event.<field>" bindings
// for trigger match/when predicates and effects.
func (e TriggerEvent) Bindings() Object {
	b := Object{"$event.kind": Str(e.Kind)}
	if e.Phase != "" {
		b["$event.phase"] = Str(e.Phase)
	}
	if e.Action != "" {
		b["$event.action"] = Str(e.Action)
	}
	if e.Zone != "" {
		b["$event.zone"] = Str(e.Zone)
	}
	if e.Token != "" {
		b["$event.token"] = Str(e.Token)
	}
	if e.Var != "" {
		b["$event.var"] = Str(e.Var)
	}
	if e.Scope != "" {
		b["$event.scope"] = Str(e.Scope)
	}
	if e.Player != nil {
		b["$event.player"] = Int(*e.Player)
	}
	return b
}

// PlayerRef returns a pointer to a copy of p for event payloads.
func PlayerRef(p int) *int {
	return &p
}

// TriggerLogKind distinguishes executed and depth-truncated dispatches.
type TriggerLogKind string

const (
	LogFired     TriggerLogKind = "fired"
	LogTruncated TriggerLogKind = "truncated"
)

// TriggerLogEntry is one record of the trace log, in execution order.
type TriggerLogEntry struct {
	Kind      TriggerLogKind `json:"kind"`
	TriggerID string         `json:"trigger_id,omitempty"`
	Event     TriggerEvent   `json:"event"`
	Depth     int            `json:"depth"`
}

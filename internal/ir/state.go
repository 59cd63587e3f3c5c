package ir

import (
	"maps"
	"slices"
)

// GameState is the persistent snapshot of all mutable game data.
//
// A GameState is never mutated after construction. Every transformation
// returns a new value built with the With* helpers, which copy only the
// maps they change, so callers may keep and diff old snapshots.
type GameState struct {
	Globals          Object                       `json:"globals"`
	PerPlayer        []Object                     `json:"per_player"`
	ZoneVars         map[string]Object            `json:"zone_vars"`
	Zones            map[string][]Token           `json:"zones"`
	Markers          map[string]map[string]string `json:"markers"`
	NextTokenOrdinal int64                        `json:"next_token_ordinal"`
	NextLastingSeq   int64                        `json:"next_lasting_seq"`
	PlayerCount      int                          `json:"player_count"`
	ActivePlayer     int                          `json:"active_player"`
	CurrentPhase     string                       `json:"current_phase"`
	TurnCount        int                          `json:"turn_count"`
	TurnOrder        TurnOrderState               `json:"turn_order"`
	ActionUsage      map[string]ActionUsage       `json:"action_usage"`
	LastingEffects   []ActiveLastingEffect        `json:"lasting_effects"`
	Rng              RngState                     `json:"rng"`
}

// RngState is the opaque, versioned, serializable RNG value threaded through
// the core. Only the rng package interprets State.
type RngState struct {
	Algorithm string `json:"algorithm"`
	Version   int    `json:"version"`
	State     []byte `json:"state"`
}

// ActionUsage counts how often an action was taken per window.
type ActionUsage struct {
	Turn  int `json:"turn"`
	Phase int `json:"phase"`
	Game  int `json:"game"`
}

// Move is a player's choice of action with its parameters.
type Move struct {
	ActionID string `json:"action"`
	Actor    int    `json:"actor"`
	Params   Object `json:"params,omitempty"`
}

// Clone returns a shallow copy. Maps and slices are shared with s until a
// With* helper replaces them.
func (s *GameState) Clone() *GameState {
	c := *s
	return &c
}

// WithGlobal returns a copy of s with a global variable set.
func (s *GameState) WithGlobal(name string, v Value) *GameState {
	c := s.Clone()
	c.Globals = s.Globals.With(name, v)
	return c
}

// WithPlayerVar returns a copy of s with a per-player variable set.
func (s *GameState) WithPlayerVar(player int, name string, v Value) *GameState {
	c := s.Clone()
	c.PerPlayer = slices.Clone(s.PerPlayer)
	c.PerPlayer[player] = s.PerPlayer[player].With(name, v)
	return c
}

// WithZoneVar returns a copy of s with a zone variable set.
func (s *GameState) WithZoneVar(zone, name string, v Value) *GameState {
	c := s.Clone()
	c.ZoneVars = maps.Clone(s.ZoneVars)
	if c.ZoneVars == nil {
		c.ZoneVars = make(map[string]Object)
	}
	c.ZoneVars[zone] = s.ZoneVars[zone].With(name, v)
	return c
}

// WithZone returns a copy of s with the token list of zone replaced.
func (s *GameState) WithZone(zone string, tokens []Token) *GameState {
	c := s.Clone()
	c.Zones = maps.Clone(s.Zones)
	if c.Zones == nil {
		c.Zones = make(map[string][]Token)
	}
	c.Zones[zone] = tokens
	return c
}

// WithMarker returns a copy of s with a marker state set on zone.
func (s *GameState) WithMarker(zone, marker, state string) *GameState {
	c := s.Clone()
	c.Markers = maps.Clone(s.Markers)
	if c.Markers == nil {
		c.Markers = make(map[string]map[string]string)
	}
	zm := maps.Clone(s.Markers[zone])
	if zm == nil {
		zm = make(map[string]string)
	}
	zm[marker] = state
	c.Markers[zone] = zm
	return c
}

// WithUsage returns a copy of s with the usage counters of one action set.
func (s *GameState) WithUsage(action string, u ActionUsage) *GameState {
	c := s.Clone()
	c.ActionUsage = maps.Clone(s.ActionUsage)
	if c.ActionUsage == nil {
		c.ActionUsage = make(map[string]ActionUsage)
	}
	c.ActionUsage[action] = u
	return c
}

// WithTurnOrder returns a copy of s with the turn-order runtime replaced.
func (s *GameState) WithTurnOrder(t TurnOrderState) *GameState {
	c := s.Clone()
	c.TurnOrder = t
	return c
}

// ZoneIDs returns the instantiated zone ids in sorted order.
func (s *GameState) ZoneIDs() []string {
	return slices.Sorted(maps.Keys(s.Zones))
}

// FindToken locates a token by id, scanning zones in sorted order.
func (s *GameState) FindToken(id string) (zone string, index int, ok bool) {
	for _, z := range s.ZoneIDs() {
		for i, t := range s.Zones[z] {
			if t.ID == id {
				return z, i, true
			}
		}
	}
	return "", -1, false
}

// ResetUsage returns a copy of s with the given windows zeroed for every
// action.
func (s *GameState) ResetUsage(turn, phase bool) *GameState {
	if len(s.ActionUsage) == 0 {
		return s
	}
	c := s.Clone()
	c.ActionUsage = make(map[string]ActionUsage, len(s.ActionUsage))
	for id, u := range s.ActionUsage {
		if turn {
			u.Turn = 0
		}
		if phase {
			u.Phase = 0
		}
		c.ActionUsage[id] = u
	}
	return c
}

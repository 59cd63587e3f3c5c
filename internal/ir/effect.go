package ir

// Effect is a sealed interface over state-transforming operations, including
// the control-flow effects (If, Let, ForEach, RemoveByPriority).
type Effect interface {
	isEffect()
}

// VarScope says which variable map a write targets.
type VarScope string

const (
	ScopeGlobal VarScope = "global"
	ScopePlayer VarScope = "pvar"
	ScopeZone   VarScope = "zoneVar"
)

// VarTarget addresses one variable. Player is set for ScopePlayer, Zone
// for ScopeZone.
type VarTarget struct {
	Scope  VarScope
	Var    string
	Player string
	Zone   string
}

// SetVar overwrites a variable.
type SetVar struct {
	Target VarTarget
	Value  ValueExpr
}

// AddVar adds Delta to an integer variable.
type AddVar struct {
	Target VarTarget
	Delta  ValueExpr
}

// Position says where a moved token lands in the destination zone.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
	PositionRandom Position = "random"
)

// MoveToken moves the token bound to Token into To. From is optional and
// narrows the search.
type MoveToken struct {
	Token    string
	From     string
	To       string
	Position Position
}

// MoveAll moves every token of From matching Filters into To, preserving
// order.
type MoveAll struct {
	From    string
	To      string
	Filters []PropFilter
}

// Draw moves up to Count tokens from the top of From to To.
type Draw struct {
	From  string
	To    string
	Count ValueExpr
}

// CreateToken adds a new token to Zone. Bind names the new token inside In.
type CreateToken struct {
	Type  string
	Zone  string
	Props map[string]ValueExpr
	Bind  string
	In    []Effect
}

// DestroyToken removes the bound token from whatever zone holds it.
type DestroyToken struct {
	Token string
}

// SetTokenProp updates a prop on the bound token.
type SetTokenProp struct {
	Token string
	Prop  string
	Value ValueExpr
}

// SetMarker sets a marker state on a zone.
type SetMarker struct {
	Zone   string
	Marker string
	State  ValueExpr
}

// Shuffle reorders a zone using the threaded RNG value.
type Shuffle struct {
	Zone string
}

// RollRandom draws an integer in [Min, Max] and binds it inside In.
type RollRandom struct {
	Bind string
	Min  ValueExpr
	Max  ValueExpr
	In   []Effect
}

// BindValue binds a value for the following sibling effects and exports it
// in the result bindings.
type BindValue struct {
	Bind  string
	Value ValueExpr
}

// If runs Then or Else. Bindings created inside a branch do not leak.
type If struct {
	When Condition
	Then []Effect
	Else []Effect
}

// Let binds Value once, visible only inside In.
type Let struct {
	Bind  string
	Value ValueExpr
	In    []Effect
}

// ForEach runs Effects once per query item with Bind set to the item.
// Limit defaults to 100. In runs once afterwards with CountBind set to
// the number of iterations.
type ForEach struct {
	Bind      string
	Over      Query
	Limit     ValueExpr
	Effects   []Effect
	CountBind string
	In        []Effect
}

// PriorityGroup is one group drained by RemoveByPriority.
type PriorityGroup struct {
	Bind      string
	Over      Query
	To        string
	CountBind string
}

// RemoveByPriority moves up to Budget tokens across Groups in order.
type RemoveByPriority struct {
	Budget        ValueExpr
	Groups        []PriorityGroup
	RemainingBind string
	In            []Effect
}

// GrantFreeOperation queues a free operation for a card-driven seat.
type GrantFreeOperation struct {
	Seat    ValueExpr
	Actions []string
}

// SetEligibility queues an eligibility override applied at the next card.
type SetEligibility struct {
	Seat     ValueExpr
	Eligible Condition
}

func (SetVar) isEffect()             {}
func (AddVar) isEffect()             {}
func (MoveToken) isEffect()          {}
func (MoveAll) isEffect()            {}
func (Draw) isEffect()               {}
func (CreateToken) isEffect()        {}
func (DestroyToken) isEffect()       {}
func (SetTokenProp) isEffect()       {}
func (SetMarker) isEffect()          {}
func (Shuffle) isEffect()            {}
func (RollRandom) isEffect()         {}
func (BindValue) isEffect()          {}
func (If) isEffect()                 {}
func (Let) isEffect()                {}
func (ForEach) isEffect()            {}
func (RemoveByPriority) isEffect()   {}
func (GrantFreeOperation) isEffect() {}
func (SetEligibility) isEffect()     {}

package ir

// ValueExpr is a sealed interface over value expressions. The evaluator
// dispatches on the concrete type with an exhaustive type switch.
type ValueExpr interface {
	isValueExpr()
}

// Condition is a sealed interface over boolean expressions.
type Condition interface {
	isCondition()
}

// Query is a sealed interface over collection-producing expressions.
type Query interface {
	isQuery()
}

// Literal is a constant value.
type Literal struct {
	Value Value
}

// ListExpr builds a list from item expressions.
type ListExpr struct {
	Items []ValueExpr
}

// RefKind names what a Ref reads.
type RefKind string

const (
	RefGlobalVar    RefKind = "gvar"
	RefPlayerVar    RefKind = "pvar"
	RefZoneVar      RefKind = "zoneVar"
	RefBinding      RefKind = "binding"
	RefTokenProp    RefKind = "tokenProp"
	RefZoneAttr     RefKind = "zoneAttr"
	RefMarker       RefKind = "marker"
	RefActivePlayer RefKind = "activePlayer"
	RefActor        RefKind = "actor"
	RefTurnCount    RefKind = "turnCount"
	RefPhase        RefKind = "phase"
	RefPlayerCount  RefKind = "playerCount"
	RefTokenCount   RefKind = "tokenCount"
)

// Ref reads state, context or a binding. Only the fields relevant to Kind
// are set: Var for variables, Player and Zone selectors, Name for bindings
// and the bound token of tokenProp, Prop for token props and zone
// attributes, Marker for markers.
type Ref struct {
	Kind   RefKind
	Var    string
	Player string
	Zone   string
	Name   string
	Prop   string
	Marker string
}

// Arith is integer arithmetic: + - * / %.
type Arith struct {
	Op    string
	Left  ValueExpr
	Right ValueExpr
}

// AggregateOp names an aggregate.
type AggregateOp string

const (
	AggCount AggregateOp = "count"
	AggSum   AggregateOp = "sum"
	AggMin   AggregateOp = "min"
	AggMax   AggregateOp = "max"
)

// Aggregate folds a query result. Prop reads a token prop from each item;
// without it the items themselves must be integers (except for count).
type Aggregate struct {
	Op    AggregateOp
	Query Query
	Prop  string
}

// IfValue selects between two values.
type IfValue struct {
	When Condition
	Then ValueExpr
	Else ValueExpr
}

// QueryValue exposes a query result as a List value.
type QueryValue struct {
	Query Query
}

func (Literal) isValueExpr()    {}
func (ListExpr) isValueExpr()   {}
func (Ref) isValueExpr()        {}
func (Arith) isValueExpr()      {}
func (Aggregate) isValueExpr()  {}
func (IfValue) isValueExpr()    {}
func (QueryValue) isValueExpr() {}

// BoolLit is a constant condition.
type BoolLit struct {
	Value bool
}

// And is true when every arg holds. The empty And is true.
type And struct {
	Args []Condition
}

// Or is true when any arg holds. The empty Or is false.
type Or struct {
	Args []Condition
}

// Not negates a single condition.
type Not struct {
	Arg Condition
}

// Compare is one of == != < <= > >=.
type Compare struct {
	Op    string
	Left  ValueExpr
	Right ValueExpr
}

// In tests membership of Item in the list Set evaluates to.
type In struct {
	Item ValueExpr
	Set  ValueExpr
}

// ZonePropIncludes tests whether a list-valued zone attribute contains Value.
type ZonePropIncludes struct {
	Zone  string
	Prop  string
	Value ValueExpr
}

func (BoolLit) isCondition()          {}
func (And) isCondition()              {}
func (Or) isCondition()               {}
func (Not) isCondition()              {}
func (Compare) isCondition()          {}
func (In) isCondition()               {}
func (ZonePropIncludes) isCondition() {}

// PropFilter keeps tokens whose prop compares true against Value.
type PropFilter struct {
	Prop  string
	Op    string
	Value ValueExpr
}

// TokensInZone yields the tokens of a zone in order, filtered.
type TokensInZone struct {
	Zone    string
	Filters []PropFilter
}

// ZonesQuery yields declared zone instance ids as strings. Where is
// evaluated with $zone bound to each candidate.
type ZonesQuery struct {
	Where Condition
}

// PlayersQuery yields player indexes 0..n-1.
type PlayersQuery struct{}

// IntsInRange yields Min..Max inclusive.
type IntsInRange struct {
	Min ValueExpr
	Max ValueExpr
}

// EnumsQuery yields literal strings.
type EnumsQuery struct {
	Values []string
}

// BindingQuery yields the list bound to Name.
type BindingQuery struct {
	Name string
}

// ConcatQuery yields the parts in order.
type ConcatQuery struct {
	Parts []Query
}

func (TokensInZone) isQuery() {}
func (ZonesQuery) isQuery()   {}
func (PlayersQuery) isQuery() {}
func (IntsInRange) isQuery()  {}
func (EnumsQuery) isQuery()   {}
func (BindingQuery) isQuery() {}
func (ConcatQuery) isQuery()  {}

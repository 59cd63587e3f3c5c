package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rulekernel/internal/compiler"
	"github.com/roach88/rulekernel/internal/engine"
	"github.com/roach88/rulekernel/internal/ir"
)

// Scenario defines a rule tree test: a game started from a fixed seed, a
// list of steps driven through an engine session, and assertions over the
// resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the run and the
	// golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is an inline rule tree document, in the same shape as a rule
	// tree YAML file. Exactly one of Rules and RulesFile is set.
	Rules map[string]any `yaml:"rules,omitempty"`

	// RulesFile is a rule tree file or CUE package directory. Relative
	// paths are resolved against the scenario file's directory.
	RulesFile string `yaml:"rules_file,omitempty"`

	Players int    `yaml:"players"`
	Seed    uint64 `yaml:"seed"`

	// Steps run in order, one engine step each.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine input.
type Step struct {
	// Do is the step kind: advance, advance_to_decision, move or dispatch.
	Do string `yaml:"do"`

	// Action, Actor and Params describe a move.
	Action string         `yaml:"action,omitempty"`
	Actor  int            `yaml:"actor,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`

	// Event is the event injected by a dispatch step.
	Event *Event `yaml:"event,omitempty"`

	// Expect checks the step's outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Event mirrors ir.TriggerEvent for scenario files.
type Event struct {
	Kind   string `yaml:"kind"`
	Phase  string `yaml:"phase,omitempty"`
	Action string `yaml:"action,omitempty"`
	Zone   string `yaml:"zone,omitempty"`
	Token  string `yaml:"token,omitempty"`
	Var    string `yaml:"var,omitempty"`
	Scope  string `yaml:"scope,omitempty"`
	Player *int   `yaml:"player,omitempty"`
}

// Expect specifies a step's expected outcome.
type Expect struct {
	// ErrorCode is the expected error code, empty for success.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Fired lists the trigger ids the step must fire, in order. Nil skips
	// the check; an empty list requires that nothing fired.
	Fired []string `yaml:"fired,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Step limits trace assertions to one step and names the step checked
	// by error_code. Zero means the whole run, or the last step.
	Step int64 `yaml:"step,omitempty"`

	// Trigger is used by trace_contains and trace_count.
	Trigger string `yaml:"trigger,omitempty"`

	// Triggers is the expected sequence for trace_equals and trace_order.
	Triggers []string `yaml:"triggers,omitempty"`

	// Count is used by trace_count and zone_count.
	Count *int `yaml:"count,omitempty"`

	// Scope, Var, Player and Zone address a variable for var_equals. Zone
	// also names the zone counted by zone_count.
	Scope  string `yaml:"scope,omitempty"`
	Var    string `yaml:"var,omitempty"`
	Player *int   `yaml:"player,omitempty"`
	Zone   string `yaml:"zone,omitempty"`

	// Value is the expected variable value for var_equals.
	Value any `yaml:"value,omitempty"`

	// Phase is used by phase_is.
	Phase string `yaml:"phase,omitempty"`

	// Code is the expected error code for error_code, empty for success.
	Code string `yaml:"code,omitempty"`

	// Result is the expected terminal result kind for terminal: win, draw,
	// or none while the game goes on. Player is the expected winner.
	Result string `yaml:"result,omitempty"`
}

// Step kinds.
const (
	DoAdvance           = "advance"
	DoAdvanceToDecision = "advance_to_decision"
	DoMove              = "move"
	DoDispatch          = "dispatch"
)

// Assertion type constants.
const (
	AssertTraceEquals   = "trace_equals"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertVarEquals     = "var_equals"
	AssertZoneCount     = "zone_count"
	AssertPhaseIs       = "phase_is"
	AssertErrorCode     = "error_code"
	AssertTerminal      = "terminal"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative rules_file is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.RulesFile != "" && !filepath.IsAbs(scenario.RulesFile) {
		scenario.RulesFile = filepath.Join(filepath.Dir(path), scenario.RulesFile)
	}
	return scenario, nil
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Rules == nil) == (s.RulesFile == "") {
		return fmt.Errorf("exactly one of rules and rules_file is required")
	}
	if s.Players <= 0 {
		return fmt.Errorf("players must be positive, got %d", s.Players)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if _, err := step.Input(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

// validateAssertion checks that an assertion has the fields its type needs.
func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceEquals:
		if a.Triggers == nil {
			return fmt.Errorf("trace_equals requires 'triggers' field")
		}
	case AssertTraceOrder:
		if len(a.Triggers) == 0 {
			return fmt.Errorf("trace_order requires non-empty 'triggers' field")
		}
	case AssertTraceContains:
		if a.Trigger == "" {
			return fmt.Errorf("trace_contains requires 'trigger' field")
		}
	case AssertTraceCount:
		if a.Trigger == "" {
			return fmt.Errorf("trace_count requires 'trigger' field")
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("trace_count requires a non-negative 'count' field")
		}
	case AssertVarEquals:
		if a.Var == "" {
			return fmt.Errorf("var_equals requires 'var' field")
		}
		if a.Value == nil {
			return fmt.Errorf("var_equals requires 'value' field")
		}
		switch ir.VarScope(a.Scope) {
		case "", ir.ScopeGlobal:
		case ir.ScopePlayer:
			if a.Player == nil {
				return fmt.Errorf("var_equals with scope pvar requires 'player' field")
			}
		case ir.ScopeZone:
			if a.Zone == "" {
				return fmt.Errorf("var_equals with scope zoneVar requires 'zone' field")
			}
		default:
			return fmt.Errorf("unknown variable scope %q", a.Scope)
		}
	case AssertZoneCount:
		if a.Zone == "" {
			return fmt.Errorf("zone_count requires 'zone' field")
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("zone_count requires a non-negative 'count' field")
		}
	case AssertPhaseIs:
		if a.Phase == "" {
			return fmt.Errorf("phase_is requires 'phase' field")
		}
	case AssertErrorCode:
		if a.Step < 0 {
			return fmt.Errorf("error_code step must not be negative")
		}
	case AssertTerminal:
		switch ir.ResultKind(a.Result) {
		case ir.ResultWin, ir.ResultDraw, "none":
		default:
			return fmt.Errorf("terminal requires 'result' of win, draw or none, got %q", a.Result)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// Input converts the step to an engine input.
func (s Step) Input() (engine.StepInput, error) {
	switch s.Do {
	case DoAdvance:
		return engine.Advance(), nil
	case DoAdvanceToDecision:
		return engine.AdvanceToDecision(), nil
	case DoMove:
		if s.Action == "" {
			return engine.StepInput{}, fmt.Errorf("move requires 'action' field")
		}
		move := ir.Move{ActionID: s.Action, Actor: s.Actor}
		if len(s.Params) > 0 {
			params, err := ir.ObjectFromGo(s.Params)
			if err != nil {
				return engine.StepInput{}, fmt.Errorf("move params: %w", err)
			}
			move.Params = params
		}
		return engine.MoveInput(move), nil
	case DoDispatch:
		if s.Event == nil || s.Event.Kind == "" {
			return engine.StepInput{}, fmt.Errorf("dispatch requires 'event' with a kind")
		}
		if !ir.ValidEventKinds[ir.EventKind(s.Event.Kind)] {
			return engine.StepInput{}, fmt.Errorf("unknown event kind %q", s.Event.Kind)
		}
		return engine.DispatchInput(s.Event.triggerEvent()), nil
	case "":
		return engine.StepInput{}, fmt.Errorf("'do' is required")
	default:
		return engine.StepInput{}, fmt.Errorf("unknown step %q", s.Do)
	}
}

func (e *Event) triggerEvent() ir.TriggerEvent {
	return ir.TriggerEvent{
		Kind:   ir.EventKind(e.Kind),
		Phase:  e.Phase,
		Action: e.Action,
		Zone:   e.Zone,
		Token:  e.Token,
		Var:    e.Var,
		Scope:  ir.VarScope(e.Scope),
		Player: e.Player,
	}
}

// LoadRules compiles the scenario's rule tree. Inline rules are compiled as
// a YAML document, so they carry the same digest as the equivalent file.
func (s *Scenario) LoadRules() (*ir.RuleTree, error) {
	if s.RulesFile != "" {
		return compiler.Load(s.RulesFile)
	}
	src, err := yaml.Marshal(s.Rules)
	if err != nil {
		return nil, fmt.Errorf("encode inline rules: %w", err)
	}
	return compiler.CompileSource(s.Name+".yaml", src)
}

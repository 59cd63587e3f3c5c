// Package harness runs rule tree scenarios as executable tests.
//
// A scenario compiles a rule tree, starts a recorded game from a fixed
// seed, drives it through engine steps and asserts on the trigger trace and
// the final state. Every run is recorded to an in-memory store and replayed,
// so a scenario also proves that its run is reproducible.
//
// # Scenario Format
//
//	name: tally_turn
//	description: "What this scenario validates"
//	rules_file: ../rules/tally.yaml   # or an inline `rules:` document
//	players: 2
//	seed: 7
//	steps:
//	  - do: advance_to_decision
//	  - do: move
//	    action: play
//	    actor: 0
//	    expect:
//	      fired: [count-plays]
//	  - do: dispatch
//	    event: {kind: turnStarted}
//	  - do: advance
//	assertions:
//	  - type: var_equals
//	    scope: pvar
//	    var: vp
//	    player: 0
//	    value: 1
//
// A step without expect must succeed; expect.error_code names the error a
// step must fail with.
//
// # Assertion Types
//
//   - trace_equals: the exact sequence of fired triggers
//   - trace_contains: a trigger fired at least once
//   - trace_order: triggers first fired in the given order
//   - trace_count: a trigger fired exactly N times
//   - var_equals: a global, per-player or zone variable's final value
//   - zone_count: the number of tokens in a zone
//   - phase_is: the final phase
//   - error_code: the error code of a step (the last one by default)
//   - terminal: the end-condition result of the final state
//
// Trace assertions cover the whole run unless step names one.
//
// # Golden Files
//
// RunWithGolden compares a canonical JSON snapshot of the per-step outcome
// with testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness

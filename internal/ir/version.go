package ir

// Version constants for the state schema and engine.
const (
	// StateVersion is bumped whenever GameState's JSON shape changes.
	StateVersion = "1"

	// EngineVersion is the rulekernel engine version.
	EngineVersion = "0.1.0"
)

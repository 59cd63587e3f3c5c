package harness

import "github.com/roach88/rulekernel/internal/ir"

// StepRecord is the observable outcome of one scenario step.
type StepRecord struct {
	Seq         int64                `json:"seq"`
	Do          string               `json:"do"`
	ErrorCode   string               `json:"error_code,omitempty"`
	Phase       string               `json:"phase"`
	Turn        int                  `json:"turn"`
	Active      int                  `json:"active"`
	StateDigest string               `json:"state_digest"`
	Trace       []ir.TriggerLogEntry `json:"trace"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success: every step met its expectation,
	// every assertion held and the recorded run replayed identically.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Steps holds one record per executed step, in order.
	Steps []StepRecord `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the state after the last step.
	Final *ir.GameState `json:"-"`

	FinalDigest string `json:"final_digest"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Steps:  []StepRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Trace returns the trace entries of step seq, or of the whole run when seq
// is zero.
func (r *Result) Trace(seq int64) []ir.TriggerLogEntry {
	out := []ir.TriggerLogEntry{}
	for _, s := range r.Steps {
		if seq == 0 || s.Seq == seq {
			out = append(out, s.Trace...)
		}
	}
	return out
}

// Fired returns the ids of the triggers that executed, in trace order.
func Fired(trace []ir.TriggerLogEntry) []string {
	out := []string{}
	for _, e := range trace {
		if e.Kind == ir.LogFired {
			out = append(out, e.TriggerID)
		}
	}
	return out
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Trigger  string // optional - filter to specific trigger
	Step     int64  // optional - filter to specific step
}

// TraceLine is a single trigger log entry located in its run.
type TraceLine struct {
	Step      int64           `json:"step"`
	Index     int             `json:"index"`
	Kind      string          `json:"kind"`
	TriggerID string          `json:"trigger_id,omitempty"`
	Depth     int             `json:"depth"`
	Event     ir.TriggerEvent `json:"event"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Entries   int            `json:"entries"`
	Fired     int            `json:"fired"`
	Truncated int            `json:"truncated"`
	MaxDepth  int            `json:"max_depth"`
	ByTrigger map[string]int `json:"by_trigger"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID   string      `json:"run_id"`
	GameID  string      `json:"game_id"`
	Entries []TraceLine `json:"entries"`
	Stats   TraceStats  `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the trigger trace of a recorded run",
		Long: `Show which triggers fired during a recorded run, in execution order.

Cascaded firings are indented by depth. Truncated entries mark events the
cascade depth limit stopped.

Examples:
  rulekernel trace --db runs.db --run r1
  rulekernel trace --db runs.db --run r1 --trigger count-plays
  rulekernel trace --db runs.db --run r1 --step 3 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $RULEKERNEL_DB)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "filter to specific trigger id")
	cmd.Flags().Int64Var(&opts.Step, "step", 0, "filter to specific step")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	entries, err := st.ReadTrace(ctx, opts.RunID, opts.Trigger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	return formatter.Success(buildTrace(run, entries, opts.Step))
}

// buildTrace converts stored entries to trace lines, keeping only step when
// it is non-zero.
func buildTrace(run store.Run, entries []store.TraceEntry, step int64) TraceResult {
	result := TraceResult{
		RunID:   run.ID,
		GameID:  run.GameID,
		Entries: []TraceLine{},
		Stats:   TraceStats{ByTrigger: map[string]int{}},
	}
	for _, e := range entries {
		if step != 0 && e.StepSeq != step {
			continue
		}
		result.Entries = append(result.Entries, TraceLine{
			Step:      e.StepSeq,
			Index:     e.Index,
			Kind:      string(e.Entry.Kind),
			TriggerID: e.Entry.TriggerID,
			Depth:     e.Entry.Depth,
			Event:     e.Entry.Event,
		})

		stats := &result.Stats
		stats.Entries++
		stats.MaxDepth = max(stats.MaxDepth, e.Entry.Depth)
		switch e.Entry.Kind {
		case ir.LogFired:
			stats.Fired++
			stats.ByTrigger[e.Entry.TriggerID]++
		case ir.LogTruncated:
			stats.Truncated++
		}
	}
	return result
}

func (r TraceResult) writeText(formatter *OutputFormatter) error {
	w := formatter.Writer
	fmt.Fprintf(w, "Trace: %s (%s)\n", r.RunID, r.GameID)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	if len(r.Entries) == 0 {
		fmt.Fprintln(w, "No trace entries.")
		return nil
	}

	var step int64 = -1
	for _, line := range r.Entries {
		if line.Step != step {
			step = line.Step
			fmt.Fprintf(w, "\nStep %d\n", step)
		}
		writeTraceLine(w, line.Kind, line.TriggerID, line.Depth, line.Event, "  ")
	}

	stats := r.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Stats: %d entries, %d fired, %d truncated, max depth %d\n",
		stats.Entries, stats.Fired, stats.Truncated, stats.MaxDepth)

	ids := make([]string, 0, len(stats.ByTrigger))
	for id := range stats.ByTrigger {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		formatter.VerboseLog("  %s fired %d time(s)", id, stats.ByTrigger[id])
	}
	return nil
}

// writeTraceText writes a step's trigger log, one line per entry.
func writeTraceText(w io.Writer, log []ir.TriggerLogEntry, indent string) {
	for _, e := range log {
		writeTraceLine(w, string(e.Kind), e.TriggerID, e.Depth, e.Event, indent)
	}
}

func writeTraceLine(w io.Writer, kind, triggerID string, depth int, event ir.TriggerEvent, indent string) {
	prefix := indent + strings.Repeat("  ", depth)
	if kind == string(ir.LogTruncated) {
		fmt.Fprintf(w, "%s⋯ truncated %s\n", prefix, describeEvent(event))
		return
	}
	fmt.Fprintf(w, "%s→ %s on %s\n", prefix, triggerID, describeEvent(event))
}

// describeEvent renders an event as its kind followed by its set fields.
func describeEvent(e ir.TriggerEvent) string {
	var parts []string
	for _, f := range []struct{ name, value string }{
		{"phase", e.Phase},
		{"action", e.Action},
		{"zone", e.Zone},
		{"token", e.Token},
		{"scope", string(e.Scope)},
		{"var", e.Var},
	} {
		if f.value != "" {
			parts = append(parts, f.name+"="+f.value)
		}
	}
	if e.Player != nil {
		parts = append(parts, fmt.Sprintf("player=%d", *e.Player))
	}
	if len(parts) == 0 {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, strings.Join(parts, " "))
}

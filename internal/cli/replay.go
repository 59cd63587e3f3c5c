package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulekernel/internal/compiler"
	"github.com/roach88/rulekernel/internal/engine"
	"github.com/roach88/rulekernel/internal/ir"
	"github.com/roach88/rulekernel/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
	Rules    string // optional - rule tree overriding the embedded source
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string             `json:"run_id"`
	GameID        string             `json:"game_id"`
	Steps         int                `json:"steps"`
	Verified      int                `json:"verified"`
	FinalDigest   string             `json:"final_digest,omitempty"`
	Deterministic bool               `json:"deterministic"`
	Divergence    *engine.Divergence `json:"divergence,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded runs and verify determinism",
		Long: `Re-execute recorded runs from their seed and compare every step's
error code, state digest and trace digest with the recording.

Each run is replayed against the rule tree source embedded when it was
recorded. --rules replays against another file instead; its digest must
still match the recording.

Exit codes:
  0 - All runs are deterministic
  1 - A run diverged or could not be replayed
  2 - Command error (database not found, etc.)

Examples:
  rulekernel replay --db runs.db
  rulekernel replay --db runs.db --run r1
  rulekernel replay --db runs.db --rules rules.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $RULEKERNEL_DB)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")
	cmd.Flags().StringVar(&opts.Rules, "rules", "", "rule tree to replay against")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	var override *ir.RuleTree
	if opts.Rules != "" {
		tree, err := loadValidRules(formatter, opts.Rules)
		if err != nil {
			return err
		}
		override = tree
	}

	st, err := openStore(opts.RootOptions, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var runs []store.Run
	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrNotFound) {
			return fail(formatter, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		runs = []store.Run{run}
	} else {
		runs, err = st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:        len(runs),
		AllDeterministic: true,
	}
	for _, run := range runs {
		formatter.VerboseLog("Replaying run: %s", run.ID)
		r := replayRun(ctx, opts.RootOptions, st, run, override)
		if !r.Deterministic {
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, r)
	}

	if err := formatter.Success(result); err != nil {
		return err
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// replayRun replays one run against override, or against the run's
// embedded rule tree source.
func replayRun(ctx context.Context, opts *RootOptions, st *store.Store, run store.Run, override *ir.RuleTree) ReplayRunResult {
	r := ReplayRunResult{RunID: run.ID, GameID: run.GameID}

	tree := override
	if tree == nil {
		if len(run.RulesSource) == 0 {
			r.Error = "rule tree source not embedded; pass --rules"
			return r
		}
		compiled, err := compiler.CompileSource(run.RulesName, run.RulesSource)
		if err != nil {
			r.Error = fmt.Sprintf("compiling embedded rules: %v", err)
			return r
		}
		tree = compiled
	}

	report, err := newEngine(opts, tree).Replay(ctx, st, run.ID)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Steps = report.Steps
	r.Verified = report.Verified
	r.FinalDigest = report.FinalDigest
	r.Divergence = report.Divergence
	r.Deterministic = report.OK()
	return r
}

func (result ReplayResult) writeText(formatter *OutputFormatter) error {
	w := formatter.Writer
	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	fmt.Fprintf(w, "Replaying %d run(s)...\n\n", result.TotalRuns)

	for _, r := range result.Runs {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "✗ %s: %s\n", r.RunID, r.Error)
		case r.Divergence != nil:
			d := r.Divergence
			fmt.Fprintf(w, "✗ %s (%s): diverged at step %d\n", r.RunID, r.GameID, d.Seq)
			fmt.Fprintf(w, "  %s recorded %q, replayed %q\n", d.Field, d.Recorded, d.Replayed)
		default:
			fmt.Fprintf(w, "✓ %s (%s): %d/%d steps verified\n", r.RunID, r.GameID, r.Verified, r.Steps)
			formatter.VerboseLog("  final digest %s", r.FinalDigest)
		}
	}

	fmt.Fprintln(w)
	if result.AllDeterministic {
		fmt.Fprintln(w, "All runs deterministic ✓")
	} else {
		fmt.Fprintln(w, "Determinism verification FAILED ✗")
	}
	return nil
}

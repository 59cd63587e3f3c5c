package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/rulekernel/internal/config"
	"github.com/roach88/rulekernel/internal/logging"
	"github.com/roach88/rulekernel/internal/turnflow"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config holds the engine limits. The zero value means defaults.
	Config config.Config

	// Logger receives engine logs. Nil means no logging.
	Logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rulekernel CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	var overrides struct {
		depth, budget, queryResults, steps int
	}

	cmd := &cobra.Command{
		Use:   "rulekernel",
		Short: "Deterministic rule tree game engine",
		Long: `Compile, validate and run declarative rule trees.

Engine limits are read from RULEKERNEL_* environment variables; the
matching flags override them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			flags := cmd.Flags()
			if flags.Changed("max-trigger-depth") {
				cfg.MaxTriggerDepth = overrides.depth
			}
			if flags.Changed("effect-budget") {
				cfg.EffectBudget = overrides.budget
			}
			if flags.Changed("max-query-results") {
				cfg.MaxQueryResults = overrides.queryResults
			}
			if flags.Changed("max-steps") {
				cfg.MaxSteps = overrides.steps
			}
			if opts.Verbose {
				cfg.LogLevel = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg

			logger, _, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create logger", err)
			}
			opts.Logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().IntVar(&overrides.depth, "max-trigger-depth", 0, "trigger cascade depth limit")
	cmd.PersistentFlags().IntVar(&overrides.budget, "effect-budget", 0, "effects allowed per operation")
	cmd.PersistentFlags().IntVar(&overrides.queryResults, "max-query-results", 0, "query result cap")
	cmd.PersistentFlags().IntVar(&overrides.steps, "max-steps", 0, "steps allowed per run")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStepCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// config returns the configured limits, or the defaults when none were
// loaded.
func (o *RootOptions) config() config.Config {
	if o.Config == (config.Config{}) {
		return config.Default()
	}
	return o.Config
}

func (o *RootOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// machineOptions returns the turn machine options for the configured limits.
func (o *RootOptions) machineOptions() []turnflow.Option {
	return append(o.config().MachineOptions(), turnflow.WithLogger(o.logger()))
}

package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs cmd with args and returns its standard output.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rulekernel", cmd.Use)
	assert.Contains(t, cmd.Long, "RULEKERNEL_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "init", "advance", "run", "step", "replay", "trace", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"max-trigger-depth", "effect-budget", "max-query-results", "max-steps"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"compile", []string{"output"}},
		{"init", []string{"players", "seed", "output"}},
		{"advance", []string{"state", "to-decision", "output"}},
		{"run", []string{"db", "players", "seed", "run-id"}},
		{"step", []string{"db", "run", "do", "action", "actor", "params", "event"}},
		{"replay", []string{"db", "run", "rules"}},
		{"trace", []string{"db", "run", "trigger", "step"}},
		{"test", []string{"update", "filter"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cmd := NewRootCommand()
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			for _, name := range tt.flags {
				assert.NotNil(t, sub.Flags().Lookup(name), "--%s", name)
			}
		})
	}
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "--format", "invalid", "validate", "testdata/tally.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_InvalidEnvironment(t *testing.T) {
	t.Setenv("RULEKERNEL_EFFECT_BUDGET", "0")

	_, err := execute(t, NewRootCommand(), "validate", "testdata/tally.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "effect budget must be positive")
}

func TestRootCommand_FlagOverridesLimit(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "--max-steps", "0", "validate", "testdata/tally.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "max steps must be positive")
}

func TestRootCommand_RunsSubcommand(t *testing.T) {
	out, err := execute(t, NewRootCommand(), "--max-trigger-depth", "4", "validate", "testdata/tally.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule tree tally valid")
}

func TestRootOptions_Defaults(t *testing.T) {
	opts := &RootOptions{}
	cfg := opts.config()
	assert.Equal(t, 8, cfg.MaxTriggerDepth)
	assert.NotNil(t, opts.logger())
	assert.Len(t, opts.machineOptions(), 4)
}

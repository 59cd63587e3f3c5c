package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
)

func TestCompileCommand_Text(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "testdata/tally.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled tally")
	assert.Contains(t, out, "Players: 2-2")
	assert.Contains(t, out, "2 phase(s), 2 zone(s), 2 action(s), 1 trigger(s), 0 lasting effect(s), 1 end condition(s)")
}

func TestCompileCommand_JSON(t *testing.T) {
	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "json"}), "testdata/tally.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   CompilationStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "tally", resp.Data.GameID)
	assert.NotEmpty(t, resp.Data.Digest)
	assert.Equal(t, 1, resp.Data.Triggers)
}

func TestCompileCommand_DigestIsStable(t *testing.T) {
	first, err := LoadRules("testdata/tally.yaml")
	require.NoError(t, err)
	second, err := LoadRules("testdata/tally.yaml")
	require.NoError(t, err)
	assert.Equal(t, first.Digest, second.Digest)
}

func TestCompileCommand_Output(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "out", "tally.json")

	out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), "testdata/tally.yaml", "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Output: "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var doc struct {
		Metadata ir.Metadata   `json:"metadata"`
		Phases   []ir.PhaseDef `json:"phases"`
		Digest   string        `json:"digest"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "tally", doc.Metadata.ID)
	assert.Len(t, doc.Phases, 2)
	assert.NotEmpty(t, doc.Digest)
}

func TestCompileCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		exitCode int
		contains string
	}{
		{"missing file", "testdata/missing.yaml", ExitCommandError, ErrCodeNotFound},
		{"compile error", "testdata/malformed.yaml", ExitCommandError, ErrCodeCompile},
		{"invalid tree", "testdata/invalid.yaml", ExitFailure, ErrCodeInvalidRules},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewCompileCommand(&RootOptions{Format: "text"}), tt.path)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.contains+"]")
		})
	}
}

func TestLoadRules_CompileErrorCarriesField(t *testing.T) {
	_, err := LoadRules("testdata/malformed.yaml")
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeCompile, loadErr.Code)
	assert.Contains(t, loadErr.Message, "extras")
	assert.Contains(t, loadErr.Message, "unknown field")
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/rulekernel/internal/compiler"
	"github.com/roach88/rulekernel/internal/ir"
)

// Error code constants - unified across all CLI commands. Rule tree
// validation failures carry the compiler's E1xx codes instead.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeCompile      = "E006" // Rule tree failed to compile
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeReadFailed   = "E008" // File read or decode error
	ErrCodeInvalidRules = "E009" // Rule tree failed validation
	ErrCodeDatabase     = "E010" // Run database error
	ErrCodeInvalidInput = "E011" // Bad step or flag value

	ErrCodeRulesMismatch = "E012" // Run recorded with another rule tree
)

// LoadError represents an error that occurred while loading a rule tree.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadRules compiles the rule tree at path: a .cue, .json, .yaml or .yml
// file, or a directory holding a CUE package. It does not validate.
func LoadRules(path string) (*ir.RuleTree, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rule tree not found: %s", path)}
		}
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rule tree: %v", err)}
	}

	tree, err := compiler.Load(path)
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			return nil, &LoadError{
				Code:    ErrCodeCompile,
				Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
				Pos:     compileErr.Pos,
			}
		}
		return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error()}
	}
	return tree, nil
}

// loadValidRules compiles and validates the rule tree at path, reporting any
// failure through f. Load errors exit with ExitCommandError, validation
// errors with ExitFailure.
func loadValidRules(f *OutputFormatter, path string) (*ir.RuleTree, error) {
	tree, err := LoadRules(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return nil, fail(f, ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return nil, fail(f, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if errs := compiler.Validate(tree); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fail(f, ExitFailure, ErrCodeInvalidRules,
			fmt.Sprintf("rule tree %s is invalid:\n  %s", path, strings.Join(msgs, "\n  ")), errs)
	}
	f.VerboseLog("Loaded rule tree %s (digest %s)", tree.Metadata.ID, tree.Digest)
	return tree, nil
}

// readRulesSource returns the rule tree file contents for embedding in a
// recorded run. Directories are not embedded.
func readRulesSource(path string) (name string, src []byte, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if info.IsDir() {
		return "", nil, nil
	}
	src, err = os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(path), src, nil
}

// readState decodes a game state written by init or advance.
func readState(path string) (*ir.GameState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading state: %v", err)}
	}
	var state ir.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("decoding state %s: %v", path, err)}
	}
	return &state, nil
}

// writeJSONFile writes v as indented JSON, creating parent directories.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulekernel/internal/ir"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// Compile decodes a CUE value holding a rule tree document.
//
// The value must be concrete. Compile checks the document shape only;
// cross-references (phase ids, zones, lasting effect ids) are checked by
// Validate.
func Compile(v cue.Value) (*ir.RuleTree, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	tree, err := decodeTree(v)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := v.Decode(&doc); err != nil {
		return nil, formatCUEError(err)
	}
	tree.Digest, err = ir.Digest(ir.DomainRules, doc)
	if err != nil {
		return nil, &CompileError{Field: "document", Message: err.Error(), Pos: v.Pos()}
	}
	return tree, nil
}

// CompileSource decodes a rule tree document from src. The format follows
// the file extension: .cue, .json, .yaml or .yml.
func CompileSource(filename string, src []byte) (*ir.RuleTree, error) {
	ctx := cuecontext.New()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".cue", ".json":
		// JSON is valid CUE, so both keep source positions.
		return Compile(ctx.CompileBytes(src, cue.Filename(filename)))
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(src, &doc); err != nil {
			return nil, &CompileError{Field: "yaml", Message: fmt.Sprintf("%s: %v", filename, err)}
		}
		if doc == nil {
			return nil, &CompileError{Field: "yaml", Message: fmt.Sprintf("%s: empty document", filename)}
		}
		return Compile(ctx.Encode(doc))
	default:
		return nil, &CompileError{Field: "file", Message: fmt.Sprintf("unsupported rule tree format %q", ext)}
	}
}

// Load compiles the rule tree at path. A directory is loaded as a CUE
// package; a file is compiled by extension.
func Load(path string) (*ir.RuleTree, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("rule tree %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rule tree %s: %w", path, err)
	}
	return CompileSource(path, src)
}

// LoadCUEDir builds the CUE package in dir and compiles it as one rule
// tree document.
func LoadCUEDir(dir string) (*ir.RuleTree, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &CompileError{Field: "cue", Message: fmt.Sprintf("no CUE instances in %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	return Compile(cuecontext.New().BuildInstance(inst))
}

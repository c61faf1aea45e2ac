package vybiumevmcompiler

import (
	"fmt"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
)

// Artifact selects which stage's output Compile returns (spec §6.1 "to").
type Artifact int

const (
	ArtifactAST Artifact = iota
	ArtifactIR
	ArtifactBytecode
)

func (a Artifact) String() string {
	switch a {
	case ArtifactAST:
		return "ast"
	case ArtifactIR:
		return "ir"
	case ArtifactBytecode:
		return "bytecode"
	default:
		return "unknown"
	}
}

// ParseArtifact parses the CLI's -s/--stop-after / Compile API's "to"
// string into an Artifact.
func ParseArtifact(s string) (Artifact, error) {
	switch s {
	case "ast":
		return ArtifactAST, nil
	case "ir":
		return ArtifactIR, nil
	case "bytecode":
		return ArtifactBytecode, nil
	default:
		return 0, fmt.Errorf("unknown artifact %q (want ast, ir, or bytecode)", s)
	}
}

// Options configures one Compile call: a DefaultOptions constructor,
// chainable With* setters, Validate and Clone (spec §6.1's "configuration
// object with the recognized options").
type Options struct {
	// To selects which artifact Compile returns.
	To Artifact

	// Program is the already-typed AST to compile. Lexing, parsing and
	// type checking are out of scope for this repo (spec §1); a driver
	// that owns a real front end populates this field itself.
	Program *ast.Program

	// Source and SourcePath are accepted for API-contract compatibility
	// with spec §6.1; Compile does not read them (it neither parses
	// Source nor renders diagnostics).
	Source     string
	SourcePath string

	// OptimizerLevel is optimizer.level from spec §6.1: 0 disables the
	// optimizer, 1-3 enable progressively larger pass sets.
	OptimizerLevel int
}

// DefaultOptions returns an Options requesting bytecode with the
// optimizer disabled, matching the CLI's own defaults (-s bytecode, -O 0).
func DefaultOptions() *Options {
	return &Options{
		To:             ArtifactBytecode,
		OptimizerLevel: 0,
	}
}

// WithProgram sets the typed AST to compile.
func (o *Options) WithProgram(p *ast.Program) *Options {
	o.Program = p
	return o
}

// WithSource sets Options.Source, which Compile does not read.
func (o *Options) WithSource(src string) *Options {
	o.Source = src
	return o
}

// WithSourcePath sets Options.SourcePath, which Compile does not read.
func (o *Options) WithSourcePath(path string) *Options {
	o.SourcePath = path
	return o
}

// WithTo sets which artifact Compile returns.
func (o *Options) WithTo(to Artifact) *Options {
	o.To = to
	return o
}

// WithOptimizerLevel sets optimizer.level (0-3).
func (o *Options) WithOptimizerLevel(level int) *Options {
	o.OptimizerLevel = level
	return o
}

// Validate checks the options are internally consistent.
func (o *Options) Validate() error {
	if o.OptimizerLevel < 0 || o.OptimizerLevel > 3 {
		return fmt.Errorf("optimizer level must be 0-3, got %d", o.OptimizerLevel)
	}
	if o.To != ArtifactAST && o.Program == nil {
		return fmt.Errorf("Program is required to produce artifact %q", o.To)
	}
	return nil
}

// Clone returns a copy of o safe for independent mutation. Program is
// shared: it is treated as immutable input once handed to Compile.
func (o *Options) Clone() *Options {
	c := *o
	return &c
}

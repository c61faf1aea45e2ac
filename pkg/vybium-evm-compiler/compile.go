package vybiumevmcompiler

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/build"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/bytecode"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/codegen"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/optimize"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ssaform"
)

// Compile runs the pipeline spec §5 "Ordering guarantees" fixes: IR build,
// phi insertion, the optimizer (if opts.OptimizerLevel > 0), and, when
// opts.To asks for bytecode, liveness/memory-plan/layout/codegen/serialize
// (internal/.../codegen.EmitModule runs those four passes per function).
// It stops early and returns the requested artifact as soon as it is
// available, never running passes the caller didn't ask for.
func Compile(opts *Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, &CompileError{Code: ErrInvalidOptions, Message: err.Error()}
	}

	if opts.To == ArtifactAST {
		return &Result{AST: opts.Program}, nil
	}

	mod, diags := build.Build(opts.Program)
	if diags.HasErrors() {
		return nil, &CompileError{Code: ErrBuildFailed, Message: "IR build failed", Diagnostics: diags}
	}

	mod, phiDiags := ssaform.Run(mod)
	diags.Merge(phiDiags)
	if diags.HasErrors() {
		return nil, &CompileError{Code: ErrBuildFailed, Message: "phi insertion failed", Diagnostics: diags}
	}

	if opts.OptimizerLevel > 0 {
		var optDiags *diag.List
		mod, optDiags = optimize.Run(mod, opts.OptimizerLevel)
		diags.Merge(optDiags)
	}

	if opts.To == ArtifactIR {
		return &Result{IR: mod, Warnings: warningsOf(diags)}, nil
	}

	modResult, genDiags := codegen.EmitModule(mod)
	diags.Merge(genDiags)
	if diags.HasErrors() {
		return nil, &CompileError{Code: ErrCodeGenFailed, Message: "code generation failed", Diagnostics: diags}
	}

	out := &Bytecode{
		Runtime:       modResult.Runtime,
		RuntimeInstrs: bytecode.Decode(modResult.Runtime),
		Create:        modResult.Create,
		CreateInstrs:  bytecode.Decode(modResult.Create),
	}

	return &Result{Bytecode: out, Warnings: warningsOf(diags)}, nil
}

func warningsOf(diags *diag.List) []diag.Diagnostic {
	var warnings []diag.Diagnostic
	for _, d := range diags.Items() {
		if d.Severity == diag.Warning {
			warnings = append(warnings, d)
		}
	}
	return warnings
}

// Package vybiumevmcompiler is the public API of the Vybium EVM compiler
// backend: a typed-AST-in, bytecode-out pipeline (IR construction, phi
// insertion, the pluggable optimizer, liveness, memory planning, block
// layout, code generation, serialization) for a small imperative smart
// contract language targeting a stack-based virtual machine.
//
// # Quick start
//
// Compiling an already-parsed, already-typechecked program to bytecode:
//
//	opts := vybiumevmcompiler.DefaultOptions().
//		WithProgram(program).
//		WithOptimizerLevel(2)
//
//	result, err := vybiumevmcompiler.Compile(opts)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("runtime: %x\n", result.Bytecode.Runtime)
//
// # Architecture
//
// - pkg/vybium-evm-compiler/: public API (this package)
// - internal/vybium-evm-compiler/: private pass implementations
//
// Lexing, parsing and type checking are external collaborators (spec §1
// "Out of scope"): Options.Program takes an already-typed
// internal/vybium-evm-compiler/ast.Program rather than raw source text,
// though Options.Source/SourcePath are still accepted, matching the
// Compile API's field list; Compile does not read them.
//
// Implementation details in internal/ can change without breaking this
// package's API.
package vybiumevmcompiler

package vybiumevmcompiler

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/bytecode"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// Bytecode is the compiled output (spec §6.3): the runtime code, the
// full deployment bytecode (constructor ‖ stub ‖ runtime), and
// both decoded into individually addressed instructions for `-f asm`
// formatting.
type Bytecode struct {
	Runtime []byte
	// Create is always populated: a module without a constructor body
	// still deploys through the bare stub wrapping the runtime.
	Create        []byte
	RuntimeInstrs []bytecode.Instr
	CreateInstrs  []bytecode.Instr
}

// Result is what Compile returns on success: the artifact requested by
// Options.To, plus any warnings accumulated along the way (spec §6.1
// "Returns a Result: on success, the requested artifact plus warnings").
type Result struct {
	AST      *ast.Program
	IR       *ir.Module
	Bytecode *Bytecode

	Warnings []diag.Diagnostic
}

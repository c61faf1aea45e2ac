// Package build implements the IR Builder (spec §4.1): it walks a typed
// ast.Program and emits an ir.Module of ir.Functions in near-SSA form.
// Control-flow constructs lower to explicit blocks and terminators; storage
// access chains collapse to compute_slot/compute_array_slot/
// compute_field_offset; built-ins lower to hash/length/env instructions.
package build

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// Build translates prog into an ir.Module. Non-fatal errors accumulate in
// the returned diag.List; the builder still returns a (partial) Module so
// downstream diagnostics-only tooling (e.g. `--validate` on a broken
// program) has something to inspect, per spec §4.1 "Failures".
func Build(prog *ast.Program) (*ir.Module, *diag.List) {
	b := &Builder{
		mod:     ir.NewModule(prog.Name),
		diags:   &diag.List{},
		storage: make(map[string]ast.StorageDecl),
	}

	for _, s := range prog.Storage {
		if b.mod.StorageSlotUsed(s.Slot) {
			b.diags.Errorf(diag.CodeInvalidLayout, nil, "duplicate storage slot %d for %q", s.Slot, s.Name)
			continue
		}
		b.mod.Storage = append(b.mod.Storage, ir.StorageDecl{Slot: s.Slot, Name: s.Name, Type: s.Type})
		b.storage[s.Name] = s
	}

	if prog.Create != nil {
		b.mod.Create = b.buildFunction(prog.Create)
	}
	for _, fd := range prog.Funcs {
		b.mod.AddFunction(b.buildFunction(fd))
	}

	return b.mod, b.diags
}

// Builder is the mutable context threaded through one function's
// translation (spec §9 "Mutable context during IR build"): current
// function, current block, scope stack, and loop stack. Build drives one
// Builder through every function in turn; it is never shared across
// goroutines.
type Builder struct {
	mod     *ir.Module
	diags   *diag.List
	storage map[string]ast.StorageDecl

	fn     *ir.Function
	block  ir.BlockID
	scopes []map[string]ir.LocalID
	loops  []loopCtx

	// refAliases marks locals that were assigned a whole storage-rooted
	// composite (mapping/array/struct) value — indexing/membering through
	// such a local is rejected (spec §4.1 "storage-access-through-local").
	refAliases map[ir.LocalID]bool
}

type loopCtx struct {
	continueTarget ir.BlockID
	breakTarget    ir.BlockID
}

func (b *Builder) pushScope() { b.scopes = append(b.scopes, make(map[string]ir.LocalID)) }
func (b *Builder) popScope()  { b.scopes = b.scopes[:len(b.scopes)-1] }

func (b *Builder) define(name string, id ir.LocalID) {
	b.scopes[len(b.scopes)-1][name] = id
}

func (b *Builder) lookupLocal(name string) (ir.LocalID, bool) {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if id, ok := b.scopes[i][name]; ok {
			return id, true
		}
	}
	return 0, false
}

func (b *Builder) buildFunction(fd *ast.FuncDecl) *ir.Function {
	fn := ir.NewFunction(fd.Name)
	fn.External = fd.External
	fn.ReturnType = fd.ReturnType
	fn.HasReturn = fd.HasReturn
	b.fn = fn
	b.refAliases = make(map[ir.LocalID]bool)
	b.pushScope()

	for _, p := range fd.Params {
		id := fn.AddLocal(p.Name, p.Type, nil)
		b.define(p.Name, id)
		fn.ParamCount++
	}

	entry := fn.NewBlock()
	fn.Entry = entry
	b.block = entry

	b.buildStmts(fd.Body)

	if fn.Block(b.block).Term == nil {
		if fn.HasReturn {
			b.diags.Errorf(diag.CodeMissingReturn, nil, "function %q falls off the end without returning a value", fn.Name)
			fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermReturn})
		} else {
			fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermReturn})
		}
	}

	b.popScope()
	return fn
}

func (b *Builder) terminated() bool {
	return b.fn.Block(b.block).Term != nil
}

func (b *Builder) emit(in *ir.Instruction) {
	if b.terminated() {
		// Dead code after an explicit terminator; drop it rather than
		// appending past the block's sole exit (spec §3.1 invariant
		// "Block terminators are the sole exits").
		return
	}
	b.fn.AddInstr(b.block, in)
}

func (b *Builder) newBlock() ir.BlockID {
	return b.fn.NewBlock()
}

// slotLiteral builds a constant word literal for a 256-bit slot/offset
// value.
func slotLiteral(v uint64) ir.Literal {
	return ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(v))
}

// newZero returns a fresh zero word, used whenever the builder must
// recover from an error with a well-typed placeholder value.
func newZero() *uint256.Int {
	return uint256.NewInt(0)
}

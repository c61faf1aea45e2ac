// Package validate mechanically checks the IR invariants spec.md §8 lists
// as testable properties 1-5 (property 7 is not checked), driven by the CLI's --validate flag and
// exercised directly by tests. It never mutates the Module it checks;
// like every other pass it only accumulates diagnostics.
package validate

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// Module checks every invariant spec.md §8 quantifies over "all Modules
// produced by the builder and the optimizer": SSA single-assignment,
// well-formed control flow, phi completeness and storage slot
// uniqueness. Memory-allocation checks (invariant 5) live in
// CheckAllocations, called separately per function once memplan has run,
// since validate has no dependency on memplan and must also work on IR
// straight out of the builder or optimizer.
func Module(mod *ir.Module) *diag.List {
	diags := &diag.List{}

	checkStorageSlots(mod, diags)
	for _, fn := range mod.AllFunctions() {
		checkFunction(fn, diags)
	}
	return diags
}

func checkStorageSlots(mod *ir.Module, diags *diag.List) {
	seen := make(map[int]string)
	for _, d := range mod.Storage {
		if other, ok := seen[d.Slot]; ok {
			diags.Errorf(diag.CodeInternal, nil,
				"storage slot %d used by both %q and %q", d.Slot, other, d.Name)
			continue
		}
		seen[d.Slot] = d.Name
	}
}

func checkFunction(fn *ir.Function, diags *diag.List) {
	defined := make(map[ir.TempID]bool)

	def := func(t ir.TempID, where string) {
		if defined[t] {
			diags.Errorf(diag.CodeInternal, nil,
				"function %s: temp %%%d defined more than once (at %s)", fn.Name, t, where)
		}
		defined[t] = true
	}

	for _, id := range fn.BlockOrder {
		blk := fn.Block(id)
		if blk == nil {
			continue
		}
		for _, p := range blk.Phis {
			def(p.Dest, "phi")
		}
		for _, in := range blk.Instr {
			if ir.HasResult(in.Op) {
				def(in.Dest, "instruction")
			}
		}
	}

	for _, id := range fn.BlockOrder {
		blk := fn.Block(id)
		if blk == nil {
			continue
		}
		if id != fn.Entry && len(blk.Preds) == 0 {
			diags.Errorf(diag.CodeInternal, nil,
				"function %s: block%d is not the entry block and has no predecessors", fn.Name, id)
		}
		checkTerminator(fn, blk, diags)
		checkPhis(fn, blk, diags)
	}
}

func checkTerminator(fn *ir.Function, blk *ir.Block, diags *diag.List) {
	if blk.Term == nil {
		diags.Errorf(diag.CodeInternal, nil,
			"function %s: block%d has no terminator", fn.Name, blk.ID)
		return
	}
	for _, target := range blk.Term.Targets() {
		if fn.Block(target) == nil {
			diags.Errorf(diag.CodeInternal, nil,
				"function %s: block%d terminator targets block%d, which does not exist in this function",
				fn.Name, blk.ID, target)
		}
	}
}

func checkPhis(fn *ir.Function, blk *ir.Block, diags *diag.List) {
	for _, p := range blk.Phis {
		preds := make(map[ir.BlockID]bool, len(blk.Preds))
		for _, pr := range blk.Preds {
			preds[pr] = true
		}
		for _, pr := range p.Order {
			if !preds[pr] {
				diags.Errorf(diag.CodeUnresolvedPhi, nil,
					"function %s: block%d phi %%%d names predecessor block%d, which is not an actual predecessor",
					fn.Name, blk.ID, p.Dest, pr)
			}
		}
		for _, pr := range blk.Preds {
			if _, ok := p.SourceFor(pr); !ok {
				diags.Errorf(diag.CodeUnresolvedPhi, nil,
					"function %s: block%d phi %%%d has no source for predecessor block%d",
					fn.Name, blk.ID, p.Dest, pr)
			}
		}
	}
}

// Allocation is one entry of memplan's output, in the form this package
// needs to check invariant 5 without importing memplan (which itself depends on
// liveness, which depends on nothing in validate — importing it back
// here would be an unnecessary coupling for a pass that only reads one
// field of it). Callers build the slice from a memplan result.
type Allocation struct {
	Offset int
	Size   int
}

// CheckAllocations verifies spec §8 invariant 5: every allocation is
// 32-byte aligned and no two distinct allocations overlap. The CLI's
// --validate flag does not run it; it runs Module only.
func CheckAllocations(fnName string, allocs []Allocation, diags *diag.List) {
	for _, a := range allocs {
		if a.Offset%32 != 0 {
			diags.Errorf(diag.CodeInvalidLayout, nil,
				"function %s: allocation at offset 0x%x is not 32-byte aligned", fnName, a.Offset)
		}
	}
	for i := range allocs {
		for j := i + 1; j < len(allocs); j++ {
			a, b := allocs[i], allocs[j]
			if a.Offset < b.Offset+b.Size && b.Offset < a.Offset+a.Size {
				diags.Errorf(diag.CodeInvalidLayout, nil,
					"function %s: allocation at 0x%x (size %d) overlaps allocation at 0x%x (size %d)",
					fnName, a.Offset, a.Size, b.Offset, b.Size)
			}
		}
	}
}

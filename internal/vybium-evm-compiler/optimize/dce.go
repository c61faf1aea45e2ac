package optimize

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// DeadCodeElim drops instructions whose result temp is never used and
// which have no observable side effect (everything except OpCall, which
// may write storage or have other effects inside the callee). Store
// instructions never carry a Dest (HasResult is false for them), so
// they are never candidates here regardless of liveness.
func DeadCodeElim(mod *ir.Module, diags *diag.List) bool {
	changed := false
	for _, fn := range mod.AllFunctions() {
		if sweepFunction(fn) {
			changed = true
		}
	}
	return changed
}

func sweepFunction(fn *ir.Function) bool {
	used := liveTemps(fn)
	changed := false
	for _, bID := range fn.BlockOrder {
		blk := fn.Block(bID)
		kept := blk.Instr[:0]
		for _, in := range blk.Instr {
			if ir.HasResult(in.Op) && in.Op != ir.OpCall && !used[in.Dest] {
				changed = true
				continue
			}
			kept = append(kept, in)
		}
		blk.Instr = kept
	}
	return changed
}

// liveTemps collects every TempID referenced by any instruction's Uses(),
// any terminator's condition/return value, or any phi source, across the
// whole function.
func liveTemps(fn *ir.Function) map[ir.TempID]bool {
	used := make(map[ir.TempID]bool)
	mark := func(v ir.Value) {
		if v.Kind == ir.ValTemp {
			used[v.Temp] = true
		}
	}
	for _, bID := range fn.BlockOrder {
		blk := fn.Block(bID)
		for _, phi := range blk.Phis {
			for _, v := range phi.Sources {
				mark(v)
			}
		}
		for _, in := range blk.Instr {
			for _, v := range in.Uses() {
				mark(v)
			}
		}
		if blk.Term == nil {
			continue
		}
		switch blk.Term.Kind {
		case ir.TermBranch:
			mark(blk.Term.Cond)
		case ir.TermReturn:
			if blk.Term.HasValue {
				mark(blk.Term.Value)
			}
		}
	}
	return used
}

package optimize

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// BlockMerge folds a block into its sole predecessor whenever that
// predecessor's only successor is it: the predecessor's terminator is
// replaced by the block's own instructions and terminator, and the block
// is dropped entirely. Skipped when the block has phis (a single
// predecessor would make them trivially resolvable, but that requires a
// substitution this pass doesn't attempt) or is the function's entry
// block (which must stay reachable at a fixed position).
func BlockMerge(mod *ir.Module, diags *diag.List) bool {
	changed := false
	for _, fn := range mod.AllFunctions() {
		for {
			if !mergeOnePair(fn) {
				break
			}
			changed = true
		}
	}
	return changed
}

func mergeOnePair(fn *ir.Function) bool {
	for _, bID := range fn.BlockOrder {
		if bID == fn.Entry {
			continue
		}
		blk := fn.Block(bID)
		if blk == nil || len(blk.Phis) != 0 {
			continue
		}
		if len(blk.Preds) != 1 {
			continue
		}
		pred := fn.Block(blk.Preds[0])
		if pred == nil || pred.Term == nil || pred.Term.Kind != ir.TermJump || pred.Term.Target != bID {
			continue
		}
		pred.Instr = append(pred.Instr, blk.Instr...)
		pred.Term = blk.Term
		for _, succ := range blk.Term.Targets() {
			if s := fn.Block(succ); s != nil {
				s.Preds = removePred(s.Preds, bID)
				s.AddPred(blk.Preds[0])
			}
			for _, phi := range fn.Block(succ).Phis {
				if v, ok := phi.Sources[bID]; ok {
					delete(phi.Sources, bID)
					phi.SetSource(blk.Preds[0], v)
				}
			}
		}
		removeBlock(fn, bID)
		return true
	}
	return false
}

// ReturnMerge unifies blocks whose only content is an identical bare,
// constant-valued or local-valued return, redirecting every predecessor to one canonical
// survivor and dropping the rest.
func ReturnMerge(mod *ir.Module, diags *diag.List) bool {
	changed := false
	for _, fn := range mod.AllFunctions() {
		if mergeReturns(fn) {
			changed = true
		}
	}
	return changed
}

func mergeReturns(fn *ir.Function) bool {
	changed := false
	var canonical []ir.BlockID
	for _, bID := range fn.BlockOrder {
		blk := fn.Block(bID)
		if blk == nil || len(blk.Phis) != 0 || len(blk.Instr) != 0 || blk.Term == nil || blk.Term.Kind != ir.TermReturn {
			continue
		}
		matched := false
		for _, cID := range canonical {
			if cID == bID {
				continue
			}
			cblk := fn.Block(cID)
			if sameReturn(cblk.Term, blk.Term) {
				redirectAllTo(fn, bID, cID)
				removeBlock(fn, bID)
				matched = true
				changed = true
				break
			}
		}
		if !matched {
			canonical = append(canonical, bID)
		}
	}
	return changed
}

func sameReturn(a, b *ir.Terminator) bool {
	if a.HasValue != b.HasValue {
		return false
	}
	if !a.HasValue {
		return true
	}
	if a.Value.Kind != b.Value.Kind {
		return false
	}
	switch a.Value.Kind {
	case ir.ValConst:
		return a.Value.Const.Equal(b.Value.Const)
	case ir.ValLocal:
		return a.Value.Local == b.Value.Local
	default:
		return false
	}
}

// redirectAllTo rewrites every block's terminator that targets from so it
// targets to instead. Phi sources are not touched: mergeReturns only
// merges blocks without phis.
func redirectAllTo(fn *ir.Function, from, to ir.BlockID) {
	for _, bID := range fn.BlockOrder {
		if bID == from {
			continue
		}
		blk := fn.Block(bID)
		if blk == nil || blk.Term == nil {
			continue
		}
		switch blk.Term.Kind {
		case ir.TermJump:
			if blk.Term.Target == from {
				blk.Term.Target = to
				fn.Block(to).AddPred(bID)
			}
		case ir.TermBranch:
			if blk.Term.TrueTarget == from {
				blk.Term.TrueTarget = to
				fn.Block(to).AddPred(bID)
			}
			if blk.Term.FalseTarget == from {
				blk.Term.FalseTarget = to
				fn.Block(to).AddPred(bID)
			}
		}
	}
}

// removeBlock drops b from fn's block set and declaration order. Callers
// must have already redirected every predecessor away from b.
func removeBlock(fn *ir.Function, b ir.BlockID) {
	delete(fn.Blocks, b)
	out := fn.BlockOrder[:0]
	for _, id := range fn.BlockOrder {
		if id != b {
			out = append(out, id)
		}
	}
	fn.BlockOrder = out
}

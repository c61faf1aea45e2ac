package optimize

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// JumpOptimize simplifies control flow that doesn't change program
// behavior: a branch whose two targets are identical becomes an
// unconditional jump, and a jump to an empty block that itself just jumps
// on (a "trampoline", with no phis to lose along the way) is redirected
// straight to the final target.
func JumpOptimize(mod *ir.Module, diags *diag.List) bool {
	changed := false
	for _, fn := range mod.AllFunctions() {
		for _, bID := range fn.BlockOrder {
			blk := fn.Block(bID)
			if blk.Term == nil {
				continue
			}
			if blk.Term.Kind == ir.TermBranch && blk.Term.TrueTarget == blk.Term.FalseTarget {
				blk.Term.Kind = ir.TermJump
				blk.Term.Target = blk.Term.TrueTarget
				changed = true
			}
			if blk.Term.Kind == ir.TermJump {
				if final, ok := threadJump(fn, bID, blk.Term.Target); ok {
					retarget(fn, bID, blk.Term.Target, final)
					blk.Term.Target = final
					changed = true
				}
			}
		}
	}
	return changed
}

// threadJump follows a chain of empty, phi-free trampoline blocks starting
// at target and returns the final destination, if following the chain
// actually moves somewhere new.
func threadJump(fn *ir.Function, from, target ir.BlockID) (ir.BlockID, bool) {
	visited := map[ir.BlockID]bool{from: true}
	cur := target
	moved := false
	for {
		if visited[cur] {
			break
		}
		blk := fn.Block(cur)
		if blk == nil || len(blk.Phis) != 0 || len(blk.Instr) != 0 {
			break
		}
		if blk.Term == nil || blk.Term.Kind != ir.TermJump {
			break
		}
		visited[cur] = true
		cur = blk.Term.Target
		moved = true
	}
	return cur, moved && cur != target
}

// retarget fixes up the bookkeeping a rewritten terminator leaves stale:
// oldTarget no longer has from as a predecessor, newTarget gains it.
func retarget(fn *ir.Function, from, oldTarget, newTarget ir.BlockID) {
	if oldTarget == newTarget {
		return
	}
	if old := fn.Block(oldTarget); old != nil {
		old.Preds = removePred(old.Preds, from)
	}
	if nb := fn.Block(newTarget); nb != nil {
		nb.AddPred(from)
	}
}

func removePred(preds []ir.BlockID, b ir.BlockID) []ir.BlockID {
	out := preds[:0]
	for _, p := range preds {
		if p != b {
			out = append(out, p)
		}
	}
	return out
}

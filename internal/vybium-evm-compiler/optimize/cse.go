package optimize

import (
	"fmt"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// CommonSubexpressionElim replaces a pure instruction with a reference to
// an earlier, identical one already computed within the same block: later
// uses of the redundant instruction's temp are rewritten to the first
// instruction's temp, and the redundant instruction is turned into a no-op
// move (OpCast of the canonical value to its own type) so DeadCodeElim can
// finish the job once nothing aliases it directly. Scoped to one block at
// a time, since memory-resident temps are reloaded fresh at every block
// boundary in this generator's model (spec §4.6 "Memory, not the stack,
// crosses blocks") and no cross-block value numbering is attempted here.
func CommonSubexpressionElim(mod *ir.Module, diags *diag.List) bool {
	changed := false
	for _, fn := range mod.AllFunctions() {
		consts := collectConstants(fn)
		for _, bID := range fn.BlockOrder {
			blk := fn.Block(bID)
			seen := make(map[string]ir.TempID)
			alias := make(map[ir.TempID]ir.TempID)
			for _, in := range blk.Instr {
				// Resolve operands through any alias already discovered in
				// this block so a chain of duplicates collapses to one
				// canonical temp rather than each pointing at its immediate
				// predecessor.
				if rewriteAliases(in, alias) {
					changed = true
				}
				if !pureOp(in.Op) || in.Op == ir.OpConst {
					continue
				}
				key, ok := exprKey(in, consts)
				if !ok {
					continue
				}
				if canon, dup := seen[key]; dup {
					alias[in.Dest] = canon
					in.Op = ir.OpCast
					in.CastFrom = in.Type
					in.Lhs = ir.TempValue(canon, in.Type)
					changed = true
					continue
				}
				seen[key] = in.Dest
			}
		}
	}
	return changed
}

// pureOp reports whether an instruction of this kind has no effect beyond
// producing its result temp, making it safe to dedup or drop.
func pureOp(op ir.OpKind) bool {
	switch op {
	case ir.OpStoreStorage, ir.OpStoreLocal, ir.OpStoreField, ir.OpStoreIndex, ir.OpCall:
		return false
	case ir.OpLoadStorage, ir.OpLoadLocal, ir.OpLoadField, ir.OpLoadIndex:
		// Reads are pure with respect to this function's own writes within
		// the same block only if nothing between them could have changed
		// the read location; conservatively excluded from CSE to avoid
		// reusing a stale load across an intervening store.
		return false
	default:
		return true
	}
}

func rewriteAliases(in *ir.Instruction, alias map[ir.TempID]ir.TempID) bool {
	changed := false
	resolve := func(v *ir.Value) {
		if v.Kind == ir.ValTemp {
			if canon, ok := alias[v.Temp]; ok {
				v.Temp = canon
				changed = true
			}
		}
	}
	switch in.Op {
	case ir.OpBinary:
		resolve(&in.Lhs)
		resolve(&in.Rhs)
	case ir.OpUnary, ir.OpCast:
		resolve(&in.Lhs)
	case ir.OpComputeSlot:
		resolve(&in.BaseSlot)
		resolve(&in.Key)
	case ir.OpComputeArraySlot, ir.OpComputeFieldOffset:
		resolve(&in.BaseSlot)
	case ir.OpHash:
		resolve(&in.Data)
	case ir.OpLength:
		resolve(&in.LengthOf)
	}
	return changed
}

// exprKey builds a string uniquely identifying in's operation and operands
// (resolved through consts so an expression over a constant-valued temp
// matches one written directly against the literal), or false if in's kind
// isn't one CSE handles.
func exprKey(in *ir.Instruction, consts map[ir.TempID]ir.Literal) (string, bool) {
	val := func(v ir.Value) string {
		if v.Kind == ir.ValTemp {
			if lit, ok := consts[v.Temp]; ok {
				return "c:" + lit.String()
			}
			return fmt.Sprintf("t%d", v.Temp)
		}
		if v.Kind == ir.ValConst {
			return "c:" + v.Const.String()
		}
		return fmt.Sprintf("l%d", v.Local)
	}
	switch in.Op {
	case ir.OpBinary:
		return fmt.Sprintf("bin:%d:%s:%s", in.BinOp, val(in.Lhs), val(in.Rhs)), true
	case ir.OpUnary:
		return fmt.Sprintf("un:%d:%s", in.UnOp, val(in.Lhs)), true
	case ir.OpComputeSlot:
		return fmt.Sprintf("slot:%s:%s", val(in.BaseSlot), val(in.Key)), true
	case ir.OpComputeArraySlot:
		return fmt.Sprintf("aslot:%s", val(in.BaseSlot)), true
	case ir.OpComputeFieldOffset:
		return fmt.Sprintf("foff:%d:%s", in.FieldIdx, val(in.BaseSlot)), true
	case ir.OpHash:
		return fmt.Sprintf("hash:%s", val(in.Data)), true
	case ir.OpLength:
		return fmt.Sprintf("len:%s", val(in.LengthOf)), true
	default:
		return "", false
	}
}

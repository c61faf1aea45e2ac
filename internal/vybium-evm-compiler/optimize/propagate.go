package optimize

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// ConstantPropagate replaces every use of a temp defined by OpConst with
// that constant directly, across instructions, terminators and phi
// sources. It never removes the now-possibly-unused OpConst instruction
// itself; DeadCodeElim does that once nothing references the temp anymore.
func ConstantPropagate(mod *ir.Module, diags *diag.List) bool {
	changed := false
	for _, fn := range mod.AllFunctions() {
		consts := collectConstants(fn)
		if len(consts) == 0 {
			continue
		}
		for _, bID := range fn.BlockOrder {
			blk := fn.Block(bID)
			for _, phi := range blk.Phis {
				for pred, v := range phi.Sources {
					if nv, ok := substitute(v, consts); ok {
						phi.Sources[pred] = nv
						changed = true
					}
				}
			}
			for _, in := range blk.Instr {
				if rewriteUses(in, consts) {
					changed = true
				}
			}
			if blk.Term != nil {
				switch blk.Term.Kind {
				case ir.TermBranch:
					if nv, ok := substitute(blk.Term.Cond, consts); ok {
						blk.Term.Cond = nv
						changed = true
					}
				case ir.TermReturn:
					if blk.Term.HasValue {
						if nv, ok := substitute(blk.Term.Value, consts); ok {
							blk.Term.Value = nv
							changed = true
						}
					}
				}
			}
		}
	}
	return changed
}

func collectConstants(fn *ir.Function) map[ir.TempID]ir.Literal {
	consts := make(map[ir.TempID]ir.Literal)
	for _, bID := range fn.BlockOrder {
		for _, in := range fn.Block(bID).Instr {
			if in.Op == ir.OpConst {
				consts[in.Dest] = in.Const
			}
		}
	}
	return consts
}

func substitute(v ir.Value, consts map[ir.TempID]ir.Literal) (ir.Value, bool) {
	if v.Kind != ir.ValTemp {
		return v, false
	}
	lit, ok := consts[v.Temp]
	if !ok {
		return v, false
	}
	return ir.ConstValue(lit), true
}

// rewriteUses substitutes any constant-valued temp operand of in in place,
// covering every field Uses() would report for in.Op.
func rewriteUses(in *ir.Instruction, consts map[ir.TempID]ir.Literal) bool {
	changed := false
	sub := func(v *ir.Value) {
		if nv, ok := substitute(*v, consts); ok {
			*v = nv
			changed = true
		}
	}
	switch in.Op {
	case ir.OpBinary:
		sub(&in.Lhs)
		sub(&in.Rhs)
	case ir.OpUnary, ir.OpCast:
		sub(&in.Lhs)
	case ir.OpLoadStorage:
		sub(&in.Slot)
	case ir.OpStoreStorage:
		sub(&in.Slot)
		sub(&in.Value)
	case ir.OpStoreLocal:
		sub(&in.Value)
	case ir.OpLoadField:
		sub(&in.Base)
	case ir.OpStoreField:
		sub(&in.Base)
		sub(&in.Value)
	case ir.OpLoadIndex:
		sub(&in.Base)
		sub(&in.Index)
	case ir.OpStoreIndex:
		sub(&in.Base)
		sub(&in.Index)
		sub(&in.Value)
	case ir.OpComputeSlot:
		sub(&in.BaseSlot)
		sub(&in.Key)
	case ir.OpComputeArraySlot, ir.OpComputeFieldOffset:
		sub(&in.BaseSlot)
	case ir.OpHash:
		sub(&in.Data)
	case ir.OpSlice:
		sub(&in.Base)
		sub(&in.Start)
		sub(&in.End)
	case ir.OpLength:
		sub(&in.LengthOf)
	case ir.OpCall:
		for i := range in.Args {
			sub(&in.Args[i])
		}
	}
	return changed
}

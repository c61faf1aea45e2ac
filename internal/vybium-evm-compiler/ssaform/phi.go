package ssaform

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// Run places phi nodes at the iterated dominance frontier of each local's
// store_local sites and rewrites load_local uses to the reaching SSA
// value (see DESIGN.md "Open questions" #1 for why store_local survives
// while load_local does not). It mutates mod's functions in place and
// returns it, alongside any diagnostics.
func Run(mod *ir.Module) (*ir.Module, *diag.List) {
	diags := &diag.List{}
	for _, fn := range mod.AllFunctions() {
		promoteFunction(fn, diags)
	}
	return mod, diags
}

func promoteFunction(fn *ir.Function, diags *diag.List) {
	if len(fn.Blocks) == 0 {
		return
	}
	dom := BuildDomTree(fn)
	df := dom.Frontier()

	localType := make(map[ir.LocalID]ir.Type, len(fn.Locals))
	for _, l := range fn.Locals {
		localType[l.ID] = l.Type
	}

	defBlocks := make(map[ir.LocalID]map[ir.BlockID]bool)
	for _, b := range fn.BlockOrder {
		blk := fn.Block(b)
		for _, in := range blk.Instr {
			if in.Op == ir.OpStoreLocal {
				if defBlocks[in.Local] == nil {
					defBlocks[in.Local] = make(map[ir.BlockID]bool)
				}
				defBlocks[in.Local][b] = true
			}
		}
	}

	phiFor := make(map[ir.BlockID]map[ir.LocalID]*ir.Phi)

	// Locals are processed in declaration order and definition sites in
	// block-creation order, so phi placement (and the temp ids it
	// allocates) is identical from run to run.
	for _, lv := range fn.Locals {
		origDefs := defBlocks[lv.ID]
		if len(origDefs) == 0 {
			continue
		}
		hasPhi := make(map[ir.BlockID]bool)
		worklist := make([]ir.BlockID, 0, len(origDefs))
		for _, b := range fn.BlockOrder {
			if origDefs[b] {
				worklist = append(worklist, b)
			}
		}
		for len(worklist) > 0 {
			x := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, y := range df[x] {
				if hasPhi[y] {
					continue
				}
				hasPhi[y] = true
				t := localType[lv.ID]
				dest := fn.NewTemp(t)
				phi := &ir.Phi{Dest: dest, Type: t}
				if phiFor[y] == nil {
					phiFor[y] = make(map[ir.LocalID]*ir.Phi)
				}
				phiFor[y][lv.ID] = phi
				fn.AddPhi(y, phi)
				if !origDefs[y] {
					worklist = append(worklist, y)
				}
			}
		}
	}

	children := make(map[ir.BlockID][]ir.BlockID)
	for _, b := range dom.ReversePostorder() {
		if b == fn.Entry {
			continue
		}
		if p, ok := dom.IDom(b); ok {
			children[p] = append(children[p], b)
		}
	}

	tempSubst := make(map[ir.TempID]ir.Value)
	current := make(map[ir.LocalID]ir.Value)
	const absent ir.ValueKind = -1

	var walk func(b ir.BlockID)
	walk = func(b ir.BlockID) {
		blk := fn.Block(b)

		touched := make(map[ir.LocalID]ir.Value)
		touchedSet := make(map[ir.LocalID]bool)
		setCurrent := func(local ir.LocalID, v ir.Value) {
			if !touchedSet[local] {
				if old, ok := current[local]; ok {
					touched[local] = old
				} else {
					touched[local] = ir.Value{Kind: absent}
				}
				touchedSet[local] = true
			}
			current[local] = v
		}

		for local, phi := range phiFor[b] {
			setCurrent(local, ir.TempValue(phi.Dest, phi.Type))
		}

		kept := blk.Instr[:0]
		for _, in := range blk.Instr {
			substituteInstr(in, tempSubst)
			if in.Op == ir.OpLoadLocal {
				v, ok := current[in.Local]
				if !ok {
					v = zeroValueFor(localType[in.Local])
					loc := in.Loc
					diags.Warnf(diag.CodeUninitializedLocal, &loc, "%q is read before it is ever assigned on this path; assuming zero value", fn.Locals[in.Local].Name)
				}
				tempSubst[in.Dest] = v
				continue
			}
			if in.Op == ir.OpStoreLocal {
				setCurrent(in.Local, in.Value)
			}
			kept = append(kept, in)
		}
		blk.Instr = kept

		if blk.Term != nil {
			substituteTerm(blk.Term, tempSubst)
			for _, s := range blk.Term.Targets() {
				for local, phi := range phiFor[s] {
					v, ok := current[local]
					if !ok {
						v = zeroValueFor(localType[local])
					}
					phi.SetSource(b, v)
				}
			}
		}

		for _, c := range children[b] {
			walk(c)
		}

		for local, old := range touched {
			if old.Kind == absent {
				delete(current, local)
			} else {
				current[local] = old
			}
		}
	}
	walk(fn.Entry)
}

func zeroValueFor(t ir.Type) ir.Value {
	if t.Kind == ir.TBool {
		return ir.ConstValue(ir.BoolLiteral(false))
	}
	if t.IsPointerLike() {
		return ir.ConstValue(ir.NewBytesLiteral(t, nil))
	}
	return ir.ConstValue(ir.NewUintLiteral(t, uint256.NewInt(0)))
}

func subst(v ir.Value, t map[ir.TempID]ir.Value) ir.Value {
	if v.Kind == ir.ValTemp {
		if nv, ok := t[v.Temp]; ok {
			return nv
		}
	}
	return v
}

func substituteInstr(in *ir.Instruction, t map[ir.TempID]ir.Value) {
	switch in.Op {
	case ir.OpBinary:
		in.Lhs = subst(in.Lhs, t)
		in.Rhs = subst(in.Rhs, t)
	case ir.OpUnary, ir.OpCast:
		in.Lhs = subst(in.Lhs, t)
	case ir.OpLoadStorage:
		in.Slot = subst(in.Slot, t)
	case ir.OpStoreStorage:
		in.Slot = subst(in.Slot, t)
		in.Value = subst(in.Value, t)
	case ir.OpStoreLocal:
		in.Value = subst(in.Value, t)
	case ir.OpLoadField:
		in.Base = subst(in.Base, t)
	case ir.OpStoreField:
		in.Base = subst(in.Base, t)
		in.Value = subst(in.Value, t)
	case ir.OpLoadIndex:
		in.Base = subst(in.Base, t)
		in.Index = subst(in.Index, t)
	case ir.OpStoreIndex:
		in.Base = subst(in.Base, t)
		in.Index = subst(in.Index, t)
		in.Value = subst(in.Value, t)
	case ir.OpComputeSlot:
		in.BaseSlot = subst(in.BaseSlot, t)
		in.Key = subst(in.Key, t)
	case ir.OpComputeArraySlot, ir.OpComputeFieldOffset:
		in.BaseSlot = subst(in.BaseSlot, t)
	case ir.OpHash:
		in.Data = subst(in.Data, t)
	case ir.OpSlice:
		in.Base = subst(in.Base, t)
		in.Start = subst(in.Start, t)
		in.End = subst(in.End, t)
	case ir.OpLength:
		in.LengthOf = subst(in.LengthOf, t)
	case ir.OpCall:
		for i := range in.Args {
			in.Args[i] = subst(in.Args[i], t)
		}
	}
}

func substituteTerm(term *ir.Terminator, t map[ir.TempID]ir.Value) {
	switch term.Kind {
	case ir.TermBranch:
		term.Cond = subst(term.Cond, t)
	case ir.TermReturn:
		if term.HasValue {
			term.Value = subst(term.Value, t)
		}
	}
}

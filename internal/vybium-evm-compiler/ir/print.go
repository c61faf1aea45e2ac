package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Print renders a Module as indented pseudo-assembly text, used by the CLI
// (`-f text`, `--show-both`) and by tests asserting on IR shape.
func Print(m *Module) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	for _, s := range m.Storage {
		fmt.Fprintf(&b, "  storage %d: %s %s\n", s.Slot, s.Name, s.Type)
	}
	if m.Create != nil {
		b.WriteString("create ")
		printFunction(&b, m.Create)
	}
	for _, fn := range m.AllFunctions() {
		if fn == m.Create {
			continue
		}
		printFunction(&b, fn)
	}
	return b.String()
}

func printFunction(b *strings.Builder, fn *Function) {
	fmt.Fprintf(b, "function %s(%d params) -> %s {\n", fn.Name, fn.ParamCount, fn.ReturnType)
	ids := append([]BlockID(nil), fn.BlockOrder...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		blk := fn.Block(id)
		if blk == nil {
			continue
		}
		fmt.Fprintf(b, "  block%d: ; preds=%v\n", id, blk.Preds)
		for _, p := range blk.Phis {
			fmt.Fprintf(b, "    %%%d = phi %s %v\n", p.Dest, p.Type, p.Order)
		}
		for _, in := range blk.Instr {
			printInstr(b, in)
		}
		printTerm(b, blk.Term)
	}
	b.WriteString("}\n")
}

func printInstr(b *strings.Builder, in *Instruction) {
	prefix := ""
	if HasResult(in.Op) {
		prefix = fmt.Sprintf("%%%d = ", in.Dest)
	}
	fmt.Fprintf(b, "    %s%s\n", prefix, instrText(in))
}

func instrText(in *Instruction) string {
	switch in.Op {
	case OpConst:
		return fmt.Sprintf("const %s", in.Const)
	case OpBinary:
		return fmt.Sprintf("%s %s, %s", in.BinOp, in.Lhs, in.Rhs)
	case OpUnary:
		return fmt.Sprintf("%s %s", in.UnOp, in.Lhs)
	case OpLoadStorage:
		return fmt.Sprintf("load_storage %s", in.Slot)
	case OpStoreStorage:
		return fmt.Sprintf("store_storage %s, %s", in.Slot, in.Value)
	case OpLoadLocal:
		return fmt.Sprintf("load_local local%d", in.Local)
	case OpStoreLocal:
		return fmt.Sprintf("store_local local%d, %s", in.Local, in.Value)
	case OpLoadField:
		return fmt.Sprintf("load_field %s[%d]", in.Base, in.FieldIdx)
	case OpStoreField:
		return fmt.Sprintf("store_field %s[%d], %s", in.Base, in.FieldIdx, in.Value)
	case OpLoadIndex:
		return fmt.Sprintf("load_index %s[%s]", in.Base, in.Index)
	case OpStoreIndex:
		return fmt.Sprintf("store_index %s[%s], %s", in.Base, in.Index, in.Value)
	case OpComputeSlot:
		return fmt.Sprintf("compute_slot %s, %s", in.BaseSlot, in.Key)
	case OpComputeArraySlot:
		return fmt.Sprintf("compute_array_slot %s", in.BaseSlot)
	case OpComputeFieldOffset:
		return fmt.Sprintf("compute_field_offset %s, %d", in.BaseSlot, in.FieldIdx)
	case OpEnv:
		return fmt.Sprintf("env %s", in.EnvOp)
	case OpHash:
		return fmt.Sprintf("hash %s", in.Data)
	case OpCast:
		return fmt.Sprintf("cast %s -> %s", in.Lhs, in.Type)
	case OpSlice:
		return fmt.Sprintf("slice %s[%s:%s]", in.Base, in.Start, in.End)
	case OpLength:
		return fmt.Sprintf("length %s", in.LengthOf)
	case OpCall:
		return fmt.Sprintf("call %s(%v)", in.Callee, in.Args)
	default:
		return "?"
	}
}

func printTerm(b *strings.Builder, t *Terminator) {
	if t == nil {
		b.WriteString("    <missing terminator>\n")
		return
	}
	switch t.Kind {
	case TermJump:
		fmt.Fprintf(b, "    jump block%d\n", t.Target)
	case TermBranch:
		fmt.Fprintf(b, "    branch %s, block%d, block%d\n", t.Cond, t.TrueTarget, t.FalseTarget)
	case TermReturn:
		if t.HasValue {
			fmt.Fprintf(b, "    return %s\n", t.Value)
		} else {
			b.WriteString("    return\n")
		}
	}
}

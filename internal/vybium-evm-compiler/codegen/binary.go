package codegen

import "github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"

// genBinary lowers an OpBinary instruction. EVM's two-operand opcodes pop
// their first operand off the top of the stack (the value pushed last),
// so the commutative ops (ADD, MUL, AND, OR, XOR, EQ) push Lhs then Rhs
// in source order, as do the shifts (SHL, SHR), which take the shift
// amount (Rhs) on top and shift the value beneath it (Lhs); the
// order-sensitive arithmetic and comparison ops (SUB, DIV, MOD,
// the relational ops) push Rhs first so Lhs ends on top and lands in the
// opcode's "a" position, giving Lhs-Rhs / Lhs<Rhs rather than the reverse.
func (g *blockGen) genBinary(in *ir.Instruction) {
	signed := in.Lhs.Type.Kind == ir.TInt

	switch in.BinOp {
	case ir.Add:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opADD)
	case ir.Mul:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opMUL)
	case ir.And:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opAND)
	case ir.Or:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opOR)
	case ir.Xor:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opXOR)
	case ir.Shl:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opSHL)
	case ir.Shr:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opSHR)
	case ir.Eq:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opEQ)
	case ir.Ne:
		g.loadValue(in.Lhs)
		g.loadValue(in.Rhs)
		g.e.emit(opEQ)
		g.finishBoolNegate(in.Dest)
		return
	case ir.Sub:
		g.loadValue(in.Rhs)
		g.loadValue(in.Lhs)
		g.e.emit(opSUB)
	case ir.Div:
		g.loadValue(in.Rhs)
		g.loadValue(in.Lhs)
		if signed {
			g.e.emit(opSDIV)
		} else {
			g.e.emit(opDIV)
		}
	case ir.Mod:
		g.loadValue(in.Rhs)
		g.loadValue(in.Lhs)
		if signed {
			g.e.emit(opSMOD)
		} else {
			g.e.emit(opMOD)
		}
	case ir.Lt:
		g.loadValue(in.Rhs)
		g.loadValue(in.Lhs)
		if signed {
			g.e.emit(opSLT)
		} else {
			g.e.emit(opLT)
		}
	case ir.Gt:
		g.loadValue(in.Rhs)
		g.loadValue(in.Lhs)
		if signed {
			g.e.emit(opSGT)
		} else {
			g.e.emit(opGT)
		}
	case ir.Le:
		// Lhs <= Rhs  ==  !(Lhs > Rhs)
		g.loadValue(in.Rhs)
		g.loadValue(in.Lhs)
		if signed {
			g.e.emit(opSGT)
		} else {
			g.e.emit(opGT)
		}
		g.finishBoolNegate(in.Dest)
		return
	case ir.Ge:
		// Lhs >= Rhs  ==  !(Lhs < Rhs)
		g.loadValue(in.Rhs)
		g.loadValue(in.Lhs)
		if signed {
			g.e.emit(opSLT)
		} else {
			g.e.emit(opLT)
		}
		g.finishBoolNegate(in.Dest)
		return
	}

	g.e.popN(2)
	g.e.push(brandValue)
	g.storeResult(in.Dest)
}

// finishBoolNegate negates the single boolean result an emitted comparison
// just left pending on the real stack, used to build Ne/Le/Ge out of
// EQ/GT/LT without a dedicated opcode for each.
func (g *blockGen) finishBoolNegate(dest ir.TempID) {
	g.e.popN(2)
	g.e.push(brandBool)
	g.e.emit(opISZERO)
	g.e.popN(1)
	g.e.push(brandValue)
	g.storeResult(dest)
}

// genUnary lowers an OpUnary instruction. Neg computes two's-complement
// negation as 0 - x directly rather than via a dedicated opcode, since EVM
// has none.
func (g *blockGen) genUnary(in *ir.Instruction) {
	switch in.UnOp {
	case ir.Neg:
		g.loadValue(in.Lhs)
		g.e.pushUint(0, brandValue)
		g.e.emit(opSUB)
		g.e.popN(2)
		g.e.push(brandValue)
	case ir.Not:
		g.loadValue(in.Lhs)
		g.e.emit(opISZERO)
		g.e.popN(1)
		g.e.push(brandValue)
	case ir.BitNot:
		g.loadValue(in.Lhs)
		g.e.emit(opNOT)
		g.e.popN(1)
		g.e.push(brandValue)
	}
	g.storeResult(in.Dest)
}

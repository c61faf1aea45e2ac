package optimize

import (
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// ConstantFold replaces OpBinary/OpUnary/OpCast/OpHash instructions whose operands are
// all ValConst with an OpConst carrying the computed result. Rewriting
// in.Op to OpConst is enough to make the instruction inert everywhere
// else: Uses() switches on Op, so a folded instruction stops reporting
// its old operands as live without any other field needing to change.
func ConstantFold(mod *ir.Module, diags *diag.List) bool {
	changed := false
	for _, fn := range mod.AllFunctions() {
		for _, bID := range fn.BlockOrder {
			blk := fn.Block(bID)
			for _, in := range blk.Instr {
				if foldInstr(in) {
					changed = true
				}
			}
		}
	}
	return changed
}

func foldInstr(in *ir.Instruction) bool {
	switch in.Op {
	case ir.OpBinary:
		if in.Lhs.Kind != ir.ValConst || in.Rhs.Kind != ir.ValConst {
			return false
		}
		lit, ok := evalBinary(in.BinOp, in.Lhs.Const, in.Rhs.Const, in.Type)
		if !ok {
			return false
		}
		in.Op = ir.OpConst
		in.Const = lit
		return true

	case ir.OpUnary:
		if in.Lhs.Kind != ir.ValConst {
			return false
		}
		lit, ok := evalUnary(in.UnOp, in.Lhs.Const, in.Type)
		if !ok {
			return false
		}
		in.Op = ir.OpConst
		in.Const = lit
		return true

	case ir.OpCast:
		if in.Lhs.Kind != ir.ValConst {
			return false
		}
		lit, ok := evalCast(in.Lhs.Const, in.CastFrom, in.Type)
		if !ok {
			return false
		}
		in.Op = ir.OpConst
		in.Const = lit
		return true

	case ir.OpHash:
		if in.Data.Kind != ir.ValConst || in.Data.Const.Word == nil {
			return false
		}
		in.Const = evalHash(in.Data.Const, in.Type)
		in.Op = ir.OpConst
		return true

	default:
		return false
	}
}

// evalHash folds keccak256 over a compile-time-constant word, matching
// the runtime lowering exactly: the word is hashed as its 32-byte
// big-endian representation.
func evalHash(v ir.Literal, resultType ir.Type) ir.Literal {
	buf := v.Word.Bytes32()
	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	var sum [32]byte
	h.Sum(sum[:0])
	return ir.NewUintLiteral(resultType, new(uint256.Int).SetBytes(sum[:]))
}

func evalBinary(op ir.BinOp, lhs, rhs ir.Literal, resultType ir.Type) (ir.Literal, bool) {
	if lhs.Word == nil || rhs.Word == nil {
		return ir.Literal{}, false
	}
	signed := lhs.Type.Kind == ir.TInt
	z := new(uint256.Int)

	switch op {
	case ir.Add:
		z.Add(lhs.Word, rhs.Word)
	case ir.Sub:
		z.Sub(lhs.Word, rhs.Word)
	case ir.Mul:
		z.Mul(lhs.Word, rhs.Word)
	case ir.Div:
		if rhs.Word.IsZero() {
			return ir.Literal{}, false
		}
		if signed {
			z.SDiv(lhs.Word, rhs.Word)
		} else {
			z.Div(lhs.Word, rhs.Word)
		}
	case ir.Mod:
		if rhs.Word.IsZero() {
			return ir.Literal{}, false
		}
		if signed {
			z.SMod(lhs.Word, rhs.Word)
		} else {
			z.Mod(lhs.Word, rhs.Word)
		}
	case ir.And:
		z.And(lhs.Word, rhs.Word)
	case ir.Or:
		z.Or(lhs.Word, rhs.Word)
	case ir.Xor:
		z.Xor(lhs.Word, rhs.Word)
	case ir.Shl:
		if !rhs.Word.IsUint64() || rhs.Word.Uint64() >= 256 {
			z.Clear()
		} else {
			z.Lsh(lhs.Word, uint(rhs.Word.Uint64()))
		}
	case ir.Shr:
		if !rhs.Word.IsUint64() || rhs.Word.Uint64() >= 256 {
			z.Clear()
		} else {
			z.Rsh(lhs.Word, uint(rhs.Word.Uint64()))
		}
	case ir.Eq:
		return ir.BoolLiteral(lhs.Word.Eq(rhs.Word)), true
	case ir.Ne:
		return ir.BoolLiteral(!lhs.Word.Eq(rhs.Word)), true
	case ir.Lt:
		if signed {
			return ir.BoolLiteral(lhs.Word.Slt(rhs.Word)), true
		}
		return ir.BoolLiteral(lhs.Word.Lt(rhs.Word)), true
	case ir.Le:
		if signed {
			return ir.BoolLiteral(!lhs.Word.Sgt(rhs.Word)), true
		}
		return ir.BoolLiteral(!lhs.Word.Gt(rhs.Word)), true
	case ir.Gt:
		if signed {
			return ir.BoolLiteral(lhs.Word.Sgt(rhs.Word)), true
		}
		return ir.BoolLiteral(lhs.Word.Gt(rhs.Word)), true
	case ir.Ge:
		if signed {
			return ir.BoolLiteral(!lhs.Word.Slt(rhs.Word)), true
		}
		return ir.BoolLiteral(!lhs.Word.Lt(rhs.Word)), true
	default:
		return ir.Literal{}, false
	}
	return ir.NewUintLiteral(resultType, z), true
}

func evalUnary(op ir.UnOp, v ir.Literal, resultType ir.Type) (ir.Literal, bool) {
	if v.Word == nil {
		return ir.Literal{}, false
	}
	z := new(uint256.Int)
	switch op {
	case ir.Neg:
		z.Sub(z, v.Word)
	case ir.Not:
		return ir.BoolLiteral(v.Word.IsZero()), true
	case ir.BitNot:
		z.Not(v.Word)
	default:
		return ir.Literal{}, false
	}
	return ir.NewUintLiteral(resultType, z), true
}

// evalCast folds a compile-time-constant type conversion: narrowing masks
// to the target bit width, widening and bool/address/uint reinterpretation
// are no-ops on the underlying word.
func evalCast(v ir.Literal, from, to ir.Type) (ir.Literal, bool) {
	if v.Word == nil {
		return ir.Literal{}, false
	}
	if to.Kind != ir.TUint || to.Bits >= 256 || from.Kind == ir.TBool {
		return ir.NewUintLiteral(to, new(uint256.Int).Set(v.Word)), true
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(to.Bits))
	mask.Sub(mask, uint256.NewInt(1))
	z := new(uint256.Int).And(v.Word, mask)
	return ir.NewUintLiteral(to, z), true
}

package ir

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Location marks a span in the original source for diagnostics.
type Location struct {
	Line int
	Col  int
}

// TempID uniquely identifies an SSA temp within its owning Function.
type TempID int

// LocalID indexes a Local within its owning Function's Locals slice.
type LocalID int

// BlockID uniquely identifies a Block within its owning Function.
type BlockID int

// Literal is a compile-time constant. Word holds the value for every type
// that fits in one 32-byte slot (bool, uint, int, address, fixed bytesN);
// Bytes holds the raw content for dynamic bytes/string literals, whose
// length is not bounded to 32 bytes.
type Literal struct {
	Type  Type
	Word  *uint256.Int
	Bytes []byte // populated only when Type is dynamic bytes/string
}

// NewUintLiteral builds a literal for a fixed-width unsigned/signed/bool/
// address/fixed-bytes value already reduced to a 256-bit word.
func NewUintLiteral(t Type, w *uint256.Int) Literal {
	return Literal{Type: t, Word: w}
}

// NewBytesLiteral builds a literal for dynamic bytes or string content.
func NewBytesLiteral(t Type, data []byte) Literal {
	return Literal{Type: t, Bytes: data}
}

// BoolLiteral builds a boolean literal.
func BoolLiteral(v bool) Literal {
	n := uint256.NewInt(0)
	if v {
		n = uint256.NewInt(1)
	}
	return Literal{Type: Bool, Word: n}
}

// IsZero reports whether a word literal is the zero word.
func (l Literal) IsZero() bool {
	return l.Word != nil && l.Word.IsZero()
}

// Equal reports value+type equality, used by CSE and constant folding.
func (l Literal) Equal(o Literal) bool {
	if !l.Type.Equal(o.Type) {
		return false
	}
	if l.Word != nil && o.Word != nil {
		return l.Word.Eq(o.Word)
	}
	if l.Bytes != nil && o.Bytes != nil {
		if len(l.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range l.Bytes {
			if l.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	}
	return l.Word == nil && o.Word == nil && l.Bytes == nil && o.Bytes == nil
}

func (l Literal) String() string {
	if l.Word != nil {
		return l.Word.Dec()
	}
	return fmt.Sprintf("%q", l.Bytes)
}

// ValueKind identifies which alternative of the Value sum is populated.
type ValueKind int

const (
	ValConst ValueKind = iota
	ValTemp
	ValLocal
)

// Value is the sum type from spec §3.1: constant | temp | local.
type Value struct {
	Kind  ValueKind
	Const Literal
	Temp  TempID
	Local LocalID
	Type  Type
}

// ConstValue wraps a literal as a Value.
func ConstValue(l Literal) Value { return Value{Kind: ValConst, Const: l, Type: l.Type} }

// TempValue wraps a temp id as a Value.
func TempValue(id TempID, t Type) Value { return Value{Kind: ValTemp, Temp: id, Type: t} }

// LocalValue wraps a local id as a Value.
func LocalValue(id LocalID, t Type) Value { return Value{Kind: ValLocal, Local: id, Type: t} }

func (v Value) String() string {
	switch v.Kind {
	case ValConst:
		return v.Const.String()
	case ValTemp:
		return fmt.Sprintf("%%%d", v.Temp)
	case ValLocal:
		return fmt.Sprintf("local%d", v.Local)
	default:
		return "?"
	}
}

// BinOp enumerates the binary operators the builder can emit.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	And
	Or
	Xor
	Shl
	Shr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
)

func (op BinOp) String() string {
	names := [...]string{"add", "sub", "mul", "div", "mod", "and", "or", "xor", "shl", "shr", "eq", "ne", "lt", "le", "gt", "ge"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// UnOp enumerates the unary operators the builder can emit.
type UnOp int

const (
	Neg UnOp = iota
	Not
	BitNot
)

func (op UnOp) String() string {
	names := [...]string{"neg", "not", "bitnot"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// EnvOp enumerates the environment queries from spec §4.1 "Built-ins".
// CalldataSize is the explicit marker for `msg.data.length`: the builder
// lowers that specific length query here rather than through OpLength, so
// nothing downstream has to guess a value's calldata identity from its
// SSA id.
type EnvOp int

const (
	MsgSender EnvOp = iota
	MsgValue
	MsgData
	CalldataSize
	BlockNumber
	BlockTimestamp
)

func (op EnvOp) String() string {
	names := [...]string{"msg.sender", "msg.value", "msg.data", "calldatasize", "block.number", "block.timestamp"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// SliceKind tells the code generator which memory region a slice operation
// reads from (spec §4.6.2 "slice").
type SliceKind int

const (
	SliceMemory SliceKind = iota
	SliceCalldata
	SliceStorage
)

// Package ir defines the SSA intermediate representation produced by the
// builder and consumed by every later pass: phi insertion, liveness,
// memory planning, block layout, code generation and serialization.
package ir

import "fmt"

// TypeKind identifies which alternative of the Type sum is populated.
type TypeKind int

const (
	TUint TypeKind = iota
	TInt
	TAddress
	TBool
	TBytes  // fixed-size when Size > 0, dynamic when Size == 0
	TString
	TArray
	TMapping
	TStruct
)

// Type is the sum type described in spec §3.1: uint(bits), int(bits),
// address, bool, bytes(optional fixed size), string, array(element,
// optional size), mapping(key,value), struct(name, ordered fields with
// byte offsets).
type Type struct {
	Kind TypeKind

	Bits int // TUint / TInt

	Size int // TBytes: 0 = dynamic bytes, N = bytesN

	Elem         *Type // TArray
	ArraySize    int   // TArray: element count
	ArrayDynamic bool  // TArray: true when length is not known at compile time

	Key *Type // TMapping
	Val *Type // TMapping

	Name   string        // TStruct
	Fields []StructField // TStruct, ordered, with byte offsets already assigned
}

// StructField is one member of a TStruct type.
type StructField struct {
	Name   string
	Type   Type
	Offset int // byte offset within the struct's flattened 32-byte-word layout
}

var (
	Bool    = Type{Kind: TBool}
	Address = Type{Kind: TAddress}
	String  = Type{Kind: TString}
)

// Uint returns the uint(bits) type.
func Uint(bits int) Type { return Type{Kind: TUint, Bits: bits} }

// Int returns the int(bits) type.
func Int(bits int) Type { return Type{Kind: TInt, Bits: bits} }

// Bytes returns a fixed-size bytesN type, or dynamic bytes when size is 0.
func Bytes(size int) Type { return Type{Kind: TBytes, Size: size} }

// Array returns a fixed or dynamic array type.
func Array(elem Type, size int, dynamic bool) Type {
	e := elem
	return Type{Kind: TArray, Elem: &e, ArraySize: size, ArrayDynamic: dynamic}
}

// Mapping returns a mapping(key,value) type.
func Mapping(key, val Type) Type {
	k, v := key, val
	return Type{Kind: TMapping, Key: &k, Val: &v}
}

// Struct returns a struct type with the given fields (offsets must already
// be assigned by the caller).
func Struct(name string, fields []StructField) Type {
	return Type{Kind: TStruct, Name: name, Fields: fields}
}

// IsPointerLike reports whether values of this type are always resident in
// memory/storage by reference rather than carried directly on the stack:
// dynamic bytes, string, arrays, mappings and structs. Memory-planning
// (§4.4 "Type sizes") and code generation treat these uniformly as 32-byte
// pointers.
func (t Type) IsPointerLike() bool {
	switch t.Kind {
	case TString, TArray, TMapping, TStruct:
		return true
	case TBytes:
		return t.Size == 0
	default:
		return false
	}
}

// ByteSize returns the type's size in bytes per spec §4.4 "Type sizes
// (bytes)": bool=1, uint/int=bits/8, address=20, fixed bytesN=N, all
// pointer-typed values = 32.
func (t Type) ByteSize() int {
	switch t.Kind {
	case TBool:
		return 1
	case TUint, TInt:
		return t.Bits / 8
	case TAddress:
		return 20
	case TBytes:
		if t.Size == 0 {
			return 32
		}
		return t.Size
	default:
		return 32
	}
}

// Equal reports structural equality, used by Literal.Equal.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TUint, TInt:
		return t.Bits == o.Bits
	case TBytes:
		return t.Size == o.Size
	case TArray:
		return t.ArraySize == o.ArraySize && t.ArrayDynamic == o.ArrayDynamic && t.Elem.Equal(*o.Elem)
	case TMapping:
		return t.Key.Equal(*o.Key) && t.Val.Equal(*o.Val)
	case TStruct:
		if t.Name != o.Name || len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the type for diagnostics and IR text dumps.
func (t Type) String() string {
	switch t.Kind {
	case TUint:
		return fmt.Sprintf("uint%d", t.Bits)
	case TInt:
		return fmt.Sprintf("int%d", t.Bits)
	case TAddress:
		return "address"
	case TBool:
		return "bool"
	case TBytes:
		if t.Size == 0 {
			return "bytes"
		}
		return fmt.Sprintf("bytes%d", t.Size)
	case TString:
		return "string"
	case TArray:
		if t.ArrayDynamic {
			return fmt.Sprintf("%s[]", t.Elem.String())
		}
		return fmt.Sprintf("%s[%d]", t.Elem.String(), t.ArraySize)
	case TMapping:
		return fmt.Sprintf("mapping(%s=>%s)", t.Key.String(), t.Val.String())
	case TStruct:
		return "struct " + t.Name
	default:
		return "?"
	}
}

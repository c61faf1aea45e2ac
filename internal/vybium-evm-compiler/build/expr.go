package build

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// zeroValue returns a safe zero-valued constant of t, used whenever the
// builder must recover from an error and keep producing well-typed IR.
func zeroValue(t ir.Type) ir.Value {
	if t.Kind == ir.TBool {
		return ir.ConstValue(ir.BoolLiteral(false))
	}
	if t.IsPointerLike() {
		return ir.ConstValue(ir.NewBytesLiteral(t, nil))
	}
	return ir.ConstValue(ir.NewUintLiteral(t, newZero()))
}

// buildExpr lowers e to a Value, emitting whatever instructions are needed
// to compute it.
func (b *Builder) buildExpr(e *ast.Expr) ir.Value {
	switch e.K {
	case ast.ExprLiteral:
		return ir.ConstValue(e.Literal)

	case ast.ExprIdent:
		return b.buildIdentRead(e)

	case ast.ExprBinary:
		lhs := b.buildExpr(e.Left)
		rhs := b.buildExpr(e.Right)
		dest := b.fn.NewTemp(e.Type)
		b.emit(&ir.Instruction{Op: ir.OpBinary, Dest: dest, Type: e.Type, Loc: e.Loc, BinOp: e.Op, Lhs: lhs, Rhs: rhs})
		return ir.TempValue(dest, e.Type)

	case ast.ExprUnary:
		operand := b.buildExpr(e.Operand)
		dest := b.fn.NewTemp(e.Type)
		b.emit(&ir.Instruction{Op: ir.OpUnary, Dest: dest, Type: e.Type, Loc: e.Loc, UnOp: e.UnOp, Lhs: operand})
		return ir.TempValue(dest, e.Type)

	case ast.ExprIndex, ast.ExprMember:
		return b.buildChainRead(e)

	case ast.ExprBuiltin:
		return b.buildBuiltin(e)

	case ast.ExprCast:
		operand := b.buildExpr(e.Operand)
		dest := b.fn.NewTemp(e.CastTo)
		b.emit(&ir.Instruction{Op: ir.OpCast, Dest: dest, Type: e.CastTo, Loc: e.Loc, CastFrom: e.Operand.Type, Lhs: operand})
		return ir.TempValue(dest, e.CastTo)

	case ast.ExprCall:
		args := make([]ir.Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = b.buildExpr(a)
		}
		dest := b.fn.NewTemp(e.Type)
		b.emit(&ir.Instruction{Op: ir.OpCall, Dest: dest, Type: e.Type, Loc: e.Loc, Callee: e.Callee, Args: args})
		return ir.TempValue(dest, e.Type)

	default:
		b.diags.Errorf(diag.CodeUnsupportedExpr, &e.Loc, "unsupported expression")
		return zeroValue(e.Type)
	}
}

// buildIdentRead loads an identifier that refers to a local or a scalar
// storage declaration.
func (b *Builder) buildIdentRead(e *ast.Expr) ir.Value {
	if id, ok := b.lookupLocal(e.Name); ok {
		dest := b.fn.NewTemp(e.Type)
		b.emit(&ir.Instruction{Op: ir.OpLoadLocal, Dest: dest, Type: e.Type, Loc: e.Loc, Local: id})
		return ir.TempValue(dest, e.Type)
	}
	if decl, ok := b.storage[e.Name]; ok {
		slot := ir.ConstValue(slotLiteral(uint64(decl.Slot)))
		dest := b.fn.NewTemp(e.Type)
		b.emit(&ir.Instruction{Op: ir.OpLoadStorage, Dest: dest, Type: e.Type, Loc: e.Loc, Slot: slot})
		return ir.TempValue(dest, e.Type)
	}
	b.diags.Errorf(diag.CodeUnknownIdent, &e.Loc, "unknown identifier %q", e.Name)
	return zeroValue(e.Type)
}

// storageStep is one index/member link in a chain rooted at a storage
// declaration (spec §4.1 "Storage access").
type storageStep struct {
	index     *ast.Expr // set for a mapping key or array index
	fieldName string    // set for a struct member
	isMember  bool
}

// resolveStorageChain walks e outward to see whether it is rooted directly
// at a storage declaration, collecting the index/member links along the
// way. It returns ok=false as soon as the chain bottoms out on anything
// other than a storage identifier (a local, a call result, ...) — such
// chains are memory or stack values, not storage.
func (b *Builder) resolveStorageChain(e *ast.Expr) (root string, chain []storageStep, ok bool) {
	switch e.K {
	case ast.ExprIdent:
		if _, isStorage := b.storage[e.Name]; isStorage {
			if _, isLocal := b.lookupLocal(e.Name); !isLocal {
				return e.Name, nil, true
			}
		}
		return "", nil, false
	case ast.ExprIndex:
		root, chain, ok := b.resolveStorageChain(e.Base)
		if !ok {
			return "", nil, false
		}
		return root, append(chain, storageStep{index: e.Index}), true
	case ast.ExprMember:
		root, chain, ok := b.resolveStorageChain(e.Base)
		if !ok {
			return "", nil, false
		}
		return root, append(chain, storageStep{fieldName: e.FieldName, isMember: true}), true
	default:
		return "", nil, false
	}
}

// computeSlot lowers a storage chain into the final slot Value and the type
// stored there, emitting compute_slot/compute_array_slot/
// compute_field_offset for each link (spec §4.1 "Storage access").
func (b *Builder) computeSlot(loc ir.Location, root string, chain []storageStep) (ir.Value, ir.Type) {
	decl := b.storage[root]
	slot := ir.ConstValue(slotLiteral(uint64(decl.Slot)))
	typ := decl.Type

	for _, step := range chain {
		switch {
		case step.isMember:
			if typ.Kind != ir.TStruct {
				b.diags.Errorf(diag.CodeUnsupportedExpr, &loc, "member access on non-struct storage type %s", typ)
				return slot, typ
			}
			idx, fieldType, found := findField(typ, step.fieldName)
			if !found {
				b.diags.Errorf(diag.CodeUnknownIdent, &loc, "unknown field %q on struct %s", step.fieldName, typ.Name)
				return slot, typ
			}
			dest := b.fn.NewTemp(ir.Uint(256))
			b.emit(&ir.Instruction{Op: ir.OpComputeFieldOffset, Dest: dest, Type: ir.Uint(256), Loc: loc, BaseSlot: slot, FieldIdx: idx})
			slot = ir.TempValue(dest, ir.Uint(256))
			typ = fieldType

		case typ.Kind == ir.TMapping:
			key := b.buildExpr(step.index)
			dest := b.fn.NewTemp(ir.Uint(256))
			b.emit(&ir.Instruction{Op: ir.OpComputeSlot, Dest: dest, Type: ir.Uint(256), Loc: loc, BaseSlot: slot, Key: key, KeyType: *typ.Key})
			slot = ir.TempValue(dest, ir.Uint(256))
			typ = *typ.Val

		case typ.Kind == ir.TArray:
			base := b.fn.NewTemp(ir.Uint(256))
			b.emit(&ir.Instruction{Op: ir.OpComputeArraySlot, Dest: base, Type: ir.Uint(256), Loc: loc, BaseSlot: slot})
			idx := b.buildExpr(step.index)
			sum := b.fn.NewTemp(ir.Uint(256))
			b.emit(&ir.Instruction{Op: ir.OpBinary, Dest: sum, Type: ir.Uint(256), Loc: loc, BinOp: ir.Add, Lhs: ir.TempValue(base, ir.Uint(256)), Rhs: idx})
			slot = ir.TempValue(sum, ir.Uint(256))
			typ = *typ.Elem

		default:
			b.diags.Errorf(diag.CodeUnsupportedExpr, &loc, "index access on non-indexable storage type %s", typ)
			return slot, typ
		}
	}
	return slot, typ
}

func findField(t ir.Type, name string) (int, ir.Type, bool) {
	for i, f := range t.Fields {
		if f.Name == name {
			return i, f.Type, true
		}
	}
	return 0, ir.Type{}, false
}

// buildChainRead lowers an index/member expression read (storage, or
// memory-resident local composite).
func (b *Builder) buildChainRead(e *ast.Expr) ir.Value {
	if alias := b.aliasErrorAt(e.Base); alias {
		return zeroValue(e.Type)
	}
	if root, chain, ok := b.resolveStorageChain(e); ok {
		slot, typ := b.computeSlot(e.Loc, root, chain)
		dest := b.fn.NewTemp(typ)
		b.emit(&ir.Instruction{Op: ir.OpLoadStorage, Dest: dest, Type: typ, Loc: e.Loc, Slot: slot})
		return ir.TempValue(dest, typ)
	}

	base := b.buildExpr(e.Base)
	dest := b.fn.NewTemp(e.Type)
	if e.K == ast.ExprIndex {
		idx := b.buildExpr(e.Index)
		b.emit(&ir.Instruction{Op: ir.OpLoadIndex, Dest: dest, Type: e.Type, Loc: e.Loc, Base: base, Index: idx})
	} else {
		idx, _, found := findField(e.Base.Type, e.FieldName)
		if !found {
			b.diags.Errorf(diag.CodeUnknownIdent, &e.Loc, "unknown field %q", e.FieldName)
			return zeroValue(e.Type)
		}
		b.emit(&ir.Instruction{Op: ir.OpLoadField, Dest: dest, Type: e.Type, Loc: e.Loc, Base: base, FieldIdx: idx})
	}
	return ir.TempValue(dest, e.Type)
}

// aliasErrorAt reports (and records) the "storage access through a local
// that aliases a whole storage composite" error if base is such a local
// (spec §4.1 "Failures": storage-access-through-local).
func (b *Builder) aliasErrorAt(base *ast.Expr) bool {
	if base.K != ast.ExprIdent {
		return false
	}
	id, ok := b.lookupLocal(base.Name)
	if !ok || !b.refAliases[id] {
		return false
	}
	b.diags.Errorf(diag.CodeStorageThroughLocal, &base.Loc, "cannot access storage through local %q; assign scalar fields individually instead", base.Name)
	return true
}

func (b *Builder) buildBuiltin(e *ast.Expr) ir.Value {
	switch e.Builtin {
	case ast.BuiltinKeccak256:
		data := b.buildExpr(e.Base)
		dest := b.fn.NewTemp(ir.Bytes(32))
		b.emit(&ir.Instruction{Op: ir.OpHash, Dest: dest, Type: ir.Bytes(32), Loc: e.Loc, Data: data})
		return ir.TempValue(dest, ir.Bytes(32))

	case ast.BuiltinLength:
		// msg.data.length carries an explicit calldata marker instead of
		// going through the generic length instruction, so its identity
		// never has to be reconstructed from the operand downstream.
		if e.Base.K == ast.ExprBuiltin && e.Base.Builtin == ast.BuiltinMsgData {
			return b.buildEnv(e, ir.CalldataSize, ir.Uint(256))
		}
		region := ir.SliceMemory
		if _, _, rooted := b.resolveStorageChain(e.Base); rooted && isDynamicLength(e.Base.Type) {
			region = ir.SliceStorage
		}
		v := b.buildExpr(e.Base)
		dest := b.fn.NewTemp(ir.Uint(256))
		b.emit(&ir.Instruction{Op: ir.OpLength, Dest: dest, Type: ir.Uint(256), Loc: e.Loc, LengthOf: v, SliceKind: region})
		return ir.TempValue(dest, ir.Uint(256))

	case ast.BuiltinMsgSender:
		return b.buildEnv(e, ir.MsgSender, ir.Address)
	case ast.BuiltinMsgValue:
		return b.buildEnv(e, ir.MsgValue, ir.Uint(256))
	case ast.BuiltinMsgData:
		return b.buildEnv(e, ir.MsgData, ir.Bytes(0))
	case ast.BuiltinBlockNumber:
		return b.buildEnv(e, ir.BlockNumber, ir.Uint(256))
	case ast.BuiltinBlockTimestamp:
		return b.buildEnv(e, ir.BlockTimestamp, ir.Uint(256))

	default:
		b.diags.Errorf(diag.CodeUnsupportedExpr, &e.Loc, "unsupported built-in")
		return zeroValue(e.Type)
	}
}

// isDynamicLength reports whether a value of type t stores its length at
// runtime rather than in the type itself.
func isDynamicLength(t ir.Type) bool {
	switch t.Kind {
	case ir.TString:
		return true
	case ir.TBytes:
		return t.Size == 0
	case ir.TArray:
		return t.ArrayDynamic
	default:
		return false
	}
}

func (b *Builder) buildEnv(e *ast.Expr, op ir.EnvOp, t ir.Type) ir.Value {
	dest := b.fn.NewTemp(t)
	b.emit(&ir.Instruction{Op: ir.OpEnv, Dest: dest, Type: t, Loc: e.Loc, EnvOp: op})
	return ir.TempValue(dest, t)
}

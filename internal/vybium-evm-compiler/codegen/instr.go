package codegen

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/memplan"
)

// loadValue pushes v onto the real stack, brand chosen by the caller's
// context via the type of v where it matters (callers needing a specific
// brand re-tag after the push; the default here is brandValue).
func (g *blockGen) loadValue(v ir.Value) {
	switch v.Kind {
	case ir.ValConst:
		g.pushLiteral(v.Const)
	case ir.ValTemp:
		off := g.resolveTemp(v.Temp)
		g.e.pushUint(uint64(off), brandOffset)
		g.e.emit(opMLOAD)
		g.e.popN(1)
		g.e.push(brandValue)
	case ir.ValLocal:
		off, _ := g.fl.plan.OffsetOfLocal(v.Local)
		g.e.pushUint(uint64(off), brandOffset)
		g.e.emit(opMLOAD)
		g.e.popN(1)
		g.e.push(brandValue)
	default:
		g.e.emit(opPUSH0)
		g.e.push(brandValue)
	}
}

func (g *blockGen) pushLiteral(l ir.Literal) {
	if l.Word != nil {
		g.e.pushWord(l.Word, brandValue)
		return
	}
	g.genBytesLiteral(l.Bytes)
}

// genBytesLiteral materializes a dynamic bytes/string constant in heap
// memory: allocate a 32-byte length word plus the data rounded up to whole
// words, write the length, then write the data packed big-endian one word
// at a time. The allocation's offset is left on the stack as the value.
func (g *blockGen) genBytesLiteral(data []byte) {
	words := (len(data) + 31) / 32
	g.emitAllocate(uint64(32 + words*32))

	g.e.dupN(1)
	g.e.pushUint(uint64(len(data)), brandSize)
	g.e.swapN(1)
	g.e.emit(opMSTORE)
	g.e.popN(2)

	for i := 0; i < words; i++ {
		var w [32]byte
		copy(w[:], data[i*32:])
		g.e.pushWord(new(uint256.Int).SetBytes(w[:]), brandValue)
		g.e.dupN(2)
		g.e.pushUint(uint64(32+i*32), brandSize)
		g.e.emit(opADD)
		g.e.popN(2)
		g.e.push(brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)
	}
}

// emitAllocate reserves size bytes of heap memory (spec's free-memory-
// pointer convention): load the pointer, keep a copy as the allocation's
// offset, bump it by size, store it back. Leaves the offset on the stack.
func (g *blockGen) emitAllocate(size uint64) {
	g.e.pushUint(memplan.FreeMemPtrSlot, brandOffset)
	g.e.emit(opMLOAD)
	g.e.popN(1)
	g.e.push(brandOffset)
	g.e.dupN(1)
	g.e.pushUint(size, brandSize)
	g.e.emit(opADD)
	g.e.popN(2)
	g.e.push(brandValue)
	g.e.pushUint(memplan.FreeMemPtrSlot, brandOffset)
	g.e.emit(opMSTORE)
	g.e.popN(2)
}

// emitAllocateFromStack is emitAllocate with the size taken from the top
// of the stack instead of an immediate: consumes [size], leaves [offset].
func (g *blockGen) emitAllocateFromStack() {
	g.e.pushUint(memplan.FreeMemPtrSlot, brandOffset)
	g.e.emit(opMLOAD)
	g.e.popN(1)
	g.e.push(brandOffset)
	g.e.swapN(1)
	g.e.dupN(2)
	g.e.emit(opADD)
	g.e.popN(2)
	g.e.push(brandValue)
	g.e.pushUint(memplan.FreeMemPtrSlot, brandOffset)
	g.e.emit(opMSTORE)
	g.e.popN(2)
}

// storeResult writes the top of the real stack into dest's memory slot and
// pops it, per this generator's "every temp lives in memory" design.
func (g *blockGen) storeResult(dest ir.TempID) {
	off := g.resolveTemp(dest)
	g.e.pushUint(uint64(off), brandOffset)
	g.e.emit(opMSTORE)
	g.e.popN(2)
}

func (g *blockGen) genInstr(in *ir.Instruction) {
	switch in.Op {
	case ir.OpConst:
		g.pushLiteral(in.Const)
		g.storeResult(in.Dest)

	case ir.OpBinary:
		g.genBinary(in)

	case ir.OpUnary:
		g.genUnary(in)

	case ir.OpLoadStorage:
		g.loadValue(in.Slot)
		g.e.emit(opSLOAD)
		g.e.popN(1)
		g.e.push(brandValue)
		g.storeResult(in.Dest)

	case ir.OpStoreStorage:
		// SSTORE pops key then value, i.e. value must be pushed first so
		// the key ends up on top.
		g.loadValue(in.Value)
		g.loadValue(in.Slot)
		g.e.emit(opSSTORE)
		g.e.popN(2)

	case ir.OpLoadLocal:
		off, _ := g.fl.plan.OffsetOfLocal(in.Local)
		g.e.pushUint(uint64(off), brandOffset)
		g.e.emit(opMLOAD)
		g.e.popN(1)
		g.e.push(brandValue)
		g.storeResult(in.Dest)

	case ir.OpStoreLocal:
		off, _ := g.fl.plan.OffsetOfLocal(in.Local)
		if in.Type.Kind == ir.TBytes && in.Type.Size == 0 && in.Value.Type.Kind == ir.TBytes && in.Value.Type.Size > 0 {
			g.genFixedToDynamicBytes(in.Value)
		} else {
			g.loadValue(in.Value)
		}
		g.e.pushUint(uint64(off), brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)

	case ir.OpLoadField:
		g.loadValue(in.Base)
		g.e.pushUint(uint64(in.FieldIdx*32), brandSize)
		g.e.emit(opADD)
		g.e.popN(2)
		g.e.push(brandOffset)
		g.e.emit(opMLOAD)
		g.e.popN(1)
		g.e.push(brandValue)
		g.storeResult(in.Dest)

	case ir.OpStoreField:
		g.loadValue(in.Value)
		g.loadValue(in.Base)
		g.e.pushUint(uint64(in.FieldIdx*32), brandSize)
		g.e.emit(opADD)
		g.e.popN(2)
		g.e.push(brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)

	case ir.OpLoadIndex:
		g.loadValue(in.Base)
		g.loadValue(in.Index)
		g.e.pushUint(32, brandSize)
		g.e.emit(opMUL)
		g.e.popN(2)
		g.e.push(brandSize)
		g.e.emit(opADD)
		g.e.popN(2)
		g.e.push(brandOffset)
		g.e.emit(opMLOAD)
		g.e.popN(1)
		g.e.push(brandValue)
		g.storeResult(in.Dest)

	case ir.OpStoreIndex:
		g.loadValue(in.Value)
		g.loadValue(in.Base)
		g.loadValue(in.Index)
		g.e.pushUint(32, brandSize)
		g.e.emit(opMUL)
		g.e.popN(2)
		g.e.push(brandSize)
		g.e.emit(opADD)
		g.e.popN(2)
		g.e.push(brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)

	case ir.OpComputeSlot:
		g.genComputeMappingSlot(in)

	case ir.OpComputeArraySlot:
		g.loadValue(in.BaseSlot)
		g.e.pushUint(0, brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)
		g.e.pushUint(32, brandSize)
		g.e.pushUint(0, brandOffset)
		g.e.emit(opKECCAK256)
		g.e.popN(2)
		g.e.push(brandSlot)
		g.storeResult(in.Dest)

	case ir.OpComputeFieldOffset:
		g.loadValue(in.BaseSlot)
		g.e.pushUint(uint64(in.FieldIdx), brandSlot)
		g.e.emit(opADD)
		g.e.popN(2)
		g.e.push(brandSlot)
		g.storeResult(in.Dest)

	case ir.OpEnv:
		g.genEnv(in)

	case ir.OpHash:
		g.loadValue(in.Data)
		g.e.pushUint(0, brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)
		g.e.pushUint(32, brandSize)
		g.e.pushUint(0, brandOffset)
		g.e.emit(opKECCAK256)
		g.e.popN(2)
		g.e.push(brandValue)
		g.storeResult(in.Dest)

	case ir.OpCast:
		g.genCast(in)

	case ir.OpSlice:
		g.genSlice(in)

	case ir.OpLength:
		g.genLength(in)

	case ir.OpCall:
		g.genCall(in)

	default:
		g.diags.Warnf(diag.CodeUnsupportedInstr, nil, "codegen: unhandled op %v", in.Op)
	}
}

// genComputeMappingSlot computes keccak256(key ‖ baseSlot), the standard
// mapping-slot derivation: key written to scratch A, base slot to scratch
// B, then hash the 64-byte region.
func (g *blockGen) genComputeMappingSlot(in *ir.Instruction) {
	g.loadValue(in.Key)
	g.e.pushUint(0, brandOffset)
	g.e.emit(opMSTORE)
	g.e.popN(2)
	g.loadValue(in.BaseSlot)
	g.e.pushUint(32, brandOffset)
	g.e.emit(opMSTORE)
	g.e.popN(2)
	g.e.pushUint(64, brandSize)
	g.e.pushUint(0, brandOffset)
	g.e.emit(opKECCAK256)
	g.e.popN(2)
	g.e.push(brandSlot)
	g.storeResult(in.Dest)
}

func (g *blockGen) genEnv(in *ir.Instruction) {
	switch in.EnvOp {
	case ir.MsgSender:
		g.e.emit(opCALLER)
		g.e.push(brandAddress)
	case ir.MsgValue:
		g.e.emit(opCALLVALUE)
		g.e.push(brandValue)
	case ir.MsgData:
		// msg.data is represented as its starting offset into calldata,
		// which is always zero; slices and length queries against it carry
		// the explicit calldata marker the builder attaches, so nothing
		// ever dereferences this as a memory pointer.
		g.e.emit(opPUSH0)
		g.e.push(brandOffset)
	case ir.CalldataSize:
		g.e.emit(opCALLDATASIZE)
		g.e.push(brandSize)
	case ir.BlockNumber:
		g.e.emit(opNUMBER)
		g.e.push(brandValue)
	case ir.BlockTimestamp:
		g.e.emit(opTIMESTAMP)
		g.e.push(brandValue)
	}
	g.storeResult(in.Dest)
}

func (g *blockGen) genCast(in *ir.Instruction) {
	g.loadValue(in.Lhs)
	// Narrowing an unsigned value to fewer bits: mask with (1<<bits)-1.
	// Widening, bool<->uint, and address<->uint casts are representation-
	// preserving in a 256-bit word and need no instructions; the type
	// system (not codegen) is responsible for any sign-extension semantics
	// required when CastFrom is signed and narrower than Type.
	if in.Type.Kind == ir.TUint && in.Type.Bits < 256 && in.CastFrom.Kind != ir.TBool {
		mask := maskFor(in.Type.Bits)
		g.e.pushWord(mask, brandValue)
		g.e.emit(opAND)
		g.e.popN(2)
		g.e.push(brandValue)
	}
	g.storeResult(in.Dest)
}

// genSlice lowers a slice over memory or calldata: allocate
// (end-start)*elementSize bytes and copy from base+(start*elementSize)
// (skipping the 32-byte length header for memory-resident dynamic
// bytes/strings). Storage slices have no lowering and produce a warning
// plus a zero pointer rather than silently wrong bytes.
func (g *blockGen) genSlice(in *ir.Instruction) {
	if in.SliceKind == ir.SliceStorage {
		g.diags.Warnf(diag.CodeSliceOfStorage, nil, "codegen: slicing a storage value is not supported")
		g.e.emit(opPUSH0)
		g.e.push(brandValue)
		g.storeResult(in.Dest)
		return
	}

	elemSize := uint64(32)
	header := false
	if in.Base.Type.Kind == ir.TBytes || in.Base.Type.Kind == ir.TString {
		elemSize = 1
		header = in.SliceKind == ir.SliceMemory
	}

	g.loadValue(in.Start)
	g.loadValue(in.End)
	g.e.emit(opSUB)
	g.e.popN(2)
	g.e.push(brandSize)
	if elemSize != 1 {
		g.e.pushUint(elemSize, brandSize)
		g.e.emit(opMUL)
		g.e.popN(2)
		g.e.push(brandSize)
	}

	g.e.dupN(1)
	g.emitAllocateFromStack()
	g.e.dupN(1)
	g.storeResult(in.Dest)

	g.loadValue(in.Base)
	g.loadValue(in.Start)
	if elemSize != 1 {
		g.e.pushUint(elemSize, brandSize)
		g.e.emit(opMUL)
		g.e.popN(2)
		g.e.push(brandSize)
	}
	g.e.emit(opADD)
	g.e.popN(2)
	g.e.push(brandOffset)
	if header {
		g.e.pushUint(32, brandSize)
		g.e.emit(opADD)
		g.e.popN(2)
		g.e.push(brandOffset)
	}

	g.e.swapN(1)
	if in.SliceKind == ir.SliceCalldata {
		g.e.emit(opCALLDATACOPY)
	} else {
		g.e.emit(opMCOPY)
	}
	g.e.popN(3)
}

// genLength lowers a length query. Fixed-size bytes and arrays resolve at
// compile time; storage-resident dynamic bytes decode the packed length
// word; memory-resident dynamic values read the length word their pointer
// addresses. msg.data lengths never reach here — the builder lowers them
// to a CALLDATASIZE env query directly.
func (g *blockGen) genLength(in *ir.Instruction) {
	t := in.LengthOf.Type
	switch {
	case t.Kind == ir.TBytes && t.Size > 0:
		g.e.pushUint(uint64(t.Size), brandSize)

	case t.Kind == ir.TArray && !t.ArrayDynamic:
		g.e.pushUint(uint64(t.ArraySize), brandSize)

	case in.SliceKind == ir.SliceStorage:
		// Long-encoding storage strings keep 2*length+1 in the slot word,
		// so length = (word - 1) >> 1.
		// TODO: decode short-string encoding (length packed into the low
		// byte); values of 31 bytes or fewer currently read back wrong.
		g.e.pushUint(1, brandValue)
		g.loadValue(in.LengthOf)
		g.e.emit(opSUB)
		g.e.popN(2)
		g.e.push(brandValue)
		g.e.pushUint(1, brandValue)
		g.e.emit(opSHR)
		g.e.popN(2)
		g.e.push(brandSize)

	default:
		g.loadValue(in.LengthOf)
		g.e.emit(opMLOAD)
		g.e.popN(1)
		g.e.push(brandSize)
	}
	g.storeResult(in.Dest)
}

// genFixedToDynamicBytes coerces a fixed bytesN value into a freshly
// allocated dynamic bytes layout: 64 bytes of heap holding the length word
// and the (left-aligned) data word. Leaves the allocation's offset on the
// stack as the coerced value.
func (g *blockGen) genFixedToDynamicBytes(v ir.Value) {
	g.loadValue(v)
	g.emitAllocate(64)

	g.e.dupN(1)
	g.e.pushUint(uint64(v.Type.Size), brandSize)
	g.e.swapN(1)
	g.e.emit(opMSTORE)
	g.e.popN(2)

	g.e.swapN(1)
	g.e.dupN(2)
	g.e.pushUint(32, brandSize)
	g.e.emit(opADD)
	g.e.popN(2)
	g.e.push(brandOffset)
	g.e.emit(opMSTORE)
	g.e.popN(2)
}

// genCall lowers a call to another function in the same module. Arguments
// are written directly into the callee's parameter locals (both functions
// share one flat memory space but occupy disjoint regions assigned by
// EmitModule), a return label is pushed and stashed in the global
// call-return-address slot, then control jumps to the callee's entry.
// The callee's own genInternalReturn jumps back here once it is done; the
// label's position is marked with a JUMPDEST so the dynamic jump back
// lands on a valid target (spec §8 property 7's "every JUMPDEST
// reachable" extends to call returns, not just branch targets).
func (g *blockGen) genCall(in *ir.Instruction) {
	callee, ok := g.fl.fns[in.Callee]
	if !ok {
		g.diags.Errorf(diag.CodeUnsupportedInstr, nil, "codegen: call to unknown function %q", in.Callee)
		g.e.pushUint(0, brandValue)
		g.storeResult(in.Dest)
		return
	}

	for i, arg := range in.Args {
		if i >= len(callee.fn.Locals) {
			break
		}
		off, _ := callee.plan.OffsetOfLocal(callee.fn.Locals[i].ID)
		g.loadValue(arg)
		g.e.pushUint(uint64(off), brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)
	}

	retLabel := g.e.newLabel()
	g.e.pushLabelTarget(retLabel)
	g.e.pushUint(globalRetAddrSlot, brandOffset)
	g.e.emit(opMSTORE)
	g.e.popN(2)

	g.e.pushCallTarget(in.Callee)
	g.e.emit(opJUMP)
	g.e.popN(1)

	g.e.markLabel(retLabel)
	g.e.emit(opJUMPDEST)

	if ir.HasResult(in.Op) {
		g.e.pushUint(globalRetValueSlot, brandOffset)
		g.e.emit(opMLOAD)
		g.e.popN(1)
		g.e.push(brandValue)
		g.storeResult(in.Dest)
	}
}

// genReturnValue halts execution returning 32 bytes of memory. A temp or
// local already has a memory slot in this generator's model, so the value
// is returned straight from there; a constant has no slot and is staged
// at the heap base first (nothing allocates after a RETURN, so clobbering
// prospective heap space is harmless).
func (g *blockGen) genReturnValue(v ir.Value) {
	var off int
	switch v.Kind {
	case ir.ValTemp:
		off = g.resolveTemp(v.Temp)
	case ir.ValLocal:
		off, _ = g.fl.plan.OffsetOfLocal(v.Local)
	default:
		off = g.fl.heapBase
		g.pushLiteral(v.Const)
		g.e.pushUint(uint64(off), brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)
	}
	g.e.pushUint(32, brandSize)
	g.e.pushUint(uint64(off), brandOffset)
	g.e.emit(opRETURN)
	g.e.popN(2)
}

func maskFor(bits int) *uint256.Int {
	m := new(uint256.Int)
	if bits >= 256 {
		return m.Not(m)
	}
	one := uint256.NewInt(1)
	m.Lsh(one, uint(bits))
	return m.Sub(m, uint256.NewInt(1))
}

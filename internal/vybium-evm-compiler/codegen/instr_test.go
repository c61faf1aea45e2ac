package codegen

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

func opIndex(code []byte, want op) int {
	for i := 0; i < len(code); i++ {
		b := op(code[i])
		if b == want {
			return i
		}
		if b >= opPUSH1 && b <= opPUSH1+31 {
			i += int(b-opPUSH1) + 1 // skip the immediate
		}
	}
	return -1
}

// TestEmitModuleEmptyProgram mirrors the "minimal empty program" case: a
// module whose main has no instructions lowers to a zero-length runtime,
// and the deployment bytecode is just the stub, ending in RETURN.
func TestEmitModuleEmptyProgram(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	entry := fn.NewBlock()
	fn.Entry = entry
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn})

	mod := ir.NewModule("X")
	mod.AddFunction(fn)

	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if len(result.Runtime) != 0 {
		t.Fatalf("expected an empty runtime for an empty program, got %d bytes", len(result.Runtime))
	}
	if len(result.Create) == 0 || result.Create[len(result.Create)-1] != byte(opRETURN) {
		t.Fatalf("expected deployment bytecode ending in RETURN, got %x", result.Create)
	}
}

// TestEmitMappingWriteOperandOrder checks the canonical mapping-store
// sequence: CALLER and CALLVALUE materialize the key and value, the key
// and base slot are staged in scratch memory, KECCAK256 derives the slot,
// SSTORE writes through it — in that order.
func TestEmitMappingWriteOperandOrder(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	entry := fn.NewBlock()
	fn.Entry = entry

	key := fn.NewTemp(ir.Address)
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpEnv, Dest: key, Type: ir.Address, EnvOp: ir.MsgSender})
	val := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpEnv, Dest: val, Type: ir.Uint(256), EnvOp: ir.MsgValue})
	slot := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(entry, &ir.Instruction{
		Op: ir.OpComputeSlot, Dest: slot, Type: ir.Uint(256),
		BaseSlot: ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(0))),
		Key:      ir.TempValue(key, ir.Address),
		KeyType:  ir.Address,
	})
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpStoreStorage, Slot: ir.TempValue(slot, ir.Uint(256)), Value: ir.TempValue(val, ir.Uint(256))})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn})

	mod := ir.NewModule("Bank")
	mod.AddFunction(fn)
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}

	caller := opIndex(result.Runtime, opCALLER)
	callvalue := opIndex(result.Runtime, opCALLVALUE)
	keccak := opIndex(result.Runtime, opKECCAK256)
	sstore := opIndex(result.Runtime, opSSTORE)
	if caller < 0 || callvalue < 0 || keccak < 0 || sstore < 0 {
		t.Fatalf("expected CALLER, CALLVALUE, KECCAK256 and SSTORE in %x", result.Runtime)
	}
	if !(caller < callvalue && callvalue < keccak && keccak < sstore) {
		t.Fatalf("expected CALLER < CALLVALUE < KECCAK256 < SSTORE, got %d/%d/%d/%d", caller, callvalue, keccak, sstore)
	}
	// The hash must cover the 64-byte key ‖ slot region: a PUSH1 0x40
	// immediately precedes the offset push and KECCAK256.
	foundSize := false
	for i := caller; i < keccak; i++ {
		if result.Runtime[i] == byte(opPUSH1) && result.Runtime[i+1] == 0x40 {
			foundSize = true
		}
	}
	if !foundSize {
		t.Fatal("expected a PUSH1 0x40 (64-byte hash width) before KECCAK256")
	}
}

func TestEmitCalldataSizeEnv(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	fn.ReturnType = ir.Uint(256)
	fn.HasReturn = true
	entry := fn.NewBlock()
	fn.Entry = entry
	size := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpEnv, Dest: size, Type: ir.Uint(256), EnvOp: ir.CalldataSize})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(size, ir.Uint(256))})

	mod := ir.NewModule("C")
	mod.AddFunction(fn)
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if opIndex(result.Runtime, opCALLDATASIZE) < 0 {
		t.Fatalf("expected a CALLDATASIZE opcode in %x", result.Runtime)
	}
}

// TestEmitStorageLengthDecodesPackedWord checks that a length query tagged
// as storage-resident decodes (word - 1) >> 1 instead of dereferencing the
// word as a memory pointer.
func TestEmitStorageLengthDecodesPackedWord(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	fn.ReturnType = ir.Uint(256)
	fn.HasReturn = true
	entry := fn.NewBlock()
	fn.Entry = entry

	word := fn.NewTemp(ir.String)
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpLoadStorage, Dest: word, Type: ir.String, Slot: ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(0)))})
	length := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpLength, Dest: length, Type: ir.Uint(256), LengthOf: ir.TempValue(word, ir.String), SliceKind: ir.SliceStorage})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(length, ir.Uint(256))})

	mod := ir.NewModule("S")
	mod.AddFunction(fn)
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if opIndex(result.Runtime, opSUB) < 0 || opIndex(result.Runtime, opSHR) < 0 {
		t.Fatalf("expected SUB and SHR in the storage-length decode, got %x", result.Runtime)
	}
}

func TestEmitFixedLengthIsCompileTimeConstant(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	fn.ReturnType = ir.Uint(256)
	fn.HasReturn = true
	entry := fn.NewBlock()
	fn.Entry = entry

	arr := fn.NewTemp(ir.Array(ir.Uint(256), 7, false))
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpConst, Dest: arr, Type: ir.Array(ir.Uint(256), 7, false), Const: ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(0))})
	length := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpLength, Dest: length, Type: ir.Uint(256), LengthOf: ir.TempValue(arr, ir.Array(ir.Uint(256), 7, false))})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(length, ir.Uint(256))})

	mod := ir.NewModule("F")
	mod.AddFunction(fn)
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	found := false
	for i := 0; i+1 < len(result.Runtime); i++ {
		if result.Runtime[i] == byte(opPUSH1) && result.Runtime[i+1] == 7 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the fixed array length 7 to be pushed as an immediate")
	}
}

func TestEmitMemorySliceCopiesWithMcopy(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	fn.ReturnType = ir.Bytes(0)
	fn.HasReturn = true
	entry := fn.NewBlock()
	fn.Entry = entry

	base := fn.NewTemp(ir.Bytes(0))
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpConst, Dest: base, Type: ir.Bytes(0), Const: ir.NewBytesLiteral(ir.Bytes(0), []byte("hello world"))})
	sliced := fn.NewTemp(ir.Bytes(0))
	fn.AddInstr(entry, &ir.Instruction{
		Op: ir.OpSlice, Dest: sliced, Type: ir.Bytes(0), SliceKind: ir.SliceMemory,
		Base:  ir.TempValue(base, ir.Bytes(0)),
		Start: ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(0))),
		End:   ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(5))),
	})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(sliced, ir.Bytes(0))})

	mod := ir.NewModule("M")
	mod.AddFunction(fn)
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if opIndex(result.Runtime, opMCOPY) < 0 {
		t.Fatalf("expected an MCOPY for the memory slice, got %x", result.Runtime)
	}
}

func TestEmitStorageSliceWarnsInsteadOfMislowering(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	entry := fn.NewBlock()
	fn.Entry = entry

	sliced := fn.NewTemp(ir.Bytes(0))
	fn.AddInstr(entry, &ir.Instruction{
		Op: ir.OpSlice, Dest: sliced, Type: ir.Bytes(0), SliceKind: ir.SliceStorage,
		Base:  ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(0))),
		Start: ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(0))),
		End:   ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(1))),
	})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn})

	mod := ir.NewModule("W")
	mod.AddFunction(fn)
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("storage slices must warn, not error: %v", diags.Items())
	}
	warned := false
	for _, d := range diags.Items() {
		if d.Code == "W_SLICE_OF_STORAGE" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected a slice-of-storage warning")
	}
	if opIndex(result.Runtime, opMCOPY) >= 0 {
		t.Fatal("storage slices must not emit an MCOPY")
	}
}

// TestWrapDeploymentSizeFixedPoint checks the stub-length fixed point: the
// offset the stub CODECOPYs from equals the create code length plus the
// stub's own final length, and wrapping is deterministic.
func TestWrapDeploymentSizeFixedPoint(t *testing.T) {
	runtime := make([]byte, 300) // large enough that the length needs PUSH2
	create := make([]byte, 5)
	wrapped := Wrap(create, runtime)

	stubLen := len(wrapped) - len(create) - len(runtime)
	if stubLen <= 0 {
		t.Fatalf("expected a non-empty stub, total %d", len(wrapped))
	}

	stub := wrapped[len(create) : len(create)+stubLen]
	cc := opIndex(stub, opCODECOPY)
	if cc < 0 {
		t.Fatalf("expected CODECOPY in the stub %x", stub)
	}
	// Stub shape: PUSH len, PUSH offset, PUSH0, CODECOPY. Decode the
	// offset immediate and compare against the fixed point.
	if stub[cc-1] != byte(opPUSH0) {
		t.Fatalf("expected PUSH0 dest before CODECOPY, got 0x%02x", stub[cc-1])
	}
	offPushEnd := cc - 1
	var offset int
	switch op(stub[offPushEnd-3]) {
	case opPUSH2:
		offset = int(stub[offPushEnd-2])<<8 | int(stub[offPushEnd-1])
	default:
		offset = int(stub[offPushEnd-1])
	}
	if offset != len(create)+stubLen {
		t.Fatalf("stub runtime offset %d, want %d", offset, len(create)+stubLen)
	}

	again := Wrap(create, runtime)
	if len(again) != len(wrapped) {
		t.Fatalf("wrapping is not deterministic: %d vs %d bytes", len(again), len(wrapped))
	}
}

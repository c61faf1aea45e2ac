package codegen

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/liveness"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/memplan"
)

// buildConstReturn builds `code { return 42; }` directly in IR, mirroring
// spec §8 scenario 2 ("Single constant return").
func buildConstReturn() *ir.Module {
	fn := ir.NewFunction("main")
	fn.External = true
	fn.ReturnType = ir.Uint(256)
	fn.HasReturn = true
	entry := fn.NewBlock()
	fn.Entry = entry

	dest := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpConst, Dest: dest, Type: ir.Uint(256), Const: ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(42))})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(dest, ir.Uint(256))})

	mod := ir.NewModule("X")
	mod.AddFunction(fn)
	return mod
}

func TestEmitModuleConstReturn(t *testing.T) {
	mod := buildConstReturn()
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if len(result.Runtime) == 0 {
		t.Fatal("expected non-empty runtime bytecode")
	}
	if result.Runtime[len(result.Runtime)-1] != byte(opRETURN) {
		t.Fatalf("expected runtime to end with RETURN, got final byte 0x%02x", result.Runtime[len(result.Runtime)-1])
	}
	foundPush1 := false
	for i := 0; i+1 < len(result.Runtime); i++ {
		if result.Runtime[i] == byte(opPUSH1) && result.Runtime[i+1] == 0x2a {
			foundPush1 = true
		}
	}
	if !foundPush1 {
		t.Fatal("expected a PUSH1 0x2a for the constant 42")
	}
}

// buildBranchModule builds `code { if (1) {} else {} }` (spec §8 scenario 3).
func buildBranchModule() *ir.Module {
	fn := ir.NewFunction("main")
	fn.External = true
	entry := fn.NewBlock()
	fn.Entry = entry
	thenB := fn.NewBlock()
	elseB := fn.NewBlock()
	join := fn.NewBlock()

	one := ir.ConstValue(ir.BoolLiteral(true))
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermBranch, Cond: one, TrueTarget: thenB, FalseTarget: elseB})
	fn.SetTerminator(thenB, &ir.Terminator{Kind: ir.TermJump, Target: join})
	fn.SetTerminator(elseB, &ir.Terminator{Kind: ir.TermJump, Target: join})
	fn.SetTerminator(join, &ir.Terminator{Kind: ir.TermReturn})

	mod := ir.NewModule("Y")
	mod.AddFunction(fn)
	return mod
}

func TestEmitModuleBranchPatchesJumps(t *testing.T) {
	mod := buildBranchModule()
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	jumpis, jumps := 0, 0
	for i, b := range result.Runtime {
		switch op(b) {
		case opJUMPI:
			jumpis++
		case opJUMP:
			jumps++
		case opPUSH2:
			if i+2 >= len(result.Runtime) {
				t.Fatal("PUSH2 placeholder truncated")
			}
			if result.Runtime[i+1] == 0 && result.Runtime[i+2] == 0 {
				t.Fatal("found an unpatched 0x0000 PUSH2 placeholder")
			}
		}
	}
	if jumpis != 1 {
		t.Fatalf("expected exactly one JUMPI, got %d", jumpis)
	}
	if jumps != 2 {
		t.Fatalf("expected exactly two JUMPs (false edge + else-block merge), got %d", jumps)
	}
}

// buildCallModule builds a two-function module where main calls a helper
// `double(x) = x + x` and returns its result, exercising the internal
// call/return linking convention in module.go.
func buildCallModule() *ir.Module {
	helper := ir.NewFunction("double")
	helper.ParamCount = 1
	helper.ReturnType = ir.Uint(256)
	helper.HasReturn = true
	p := helper.AddLocal("x", ir.Uint(256), nil)
	hEntry := helper.NewBlock()
	helper.Entry = hEntry
	loaded := helper.NewTemp(ir.Uint(256))
	helper.AddInstr(hEntry, &ir.Instruction{Op: ir.OpLoadLocal, Dest: loaded, Type: ir.Uint(256), Local: p})
	sum := helper.NewTemp(ir.Uint(256))
	helper.AddInstr(hEntry, &ir.Instruction{Op: ir.OpBinary, Dest: sum, Type: ir.Uint(256), BinOp: ir.Add, Lhs: ir.TempValue(loaded, ir.Uint(256)), Rhs: ir.TempValue(loaded, ir.Uint(256))})
	helper.SetTerminator(hEntry, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(sum, ir.Uint(256))})

	main := ir.NewFunction("main")
	main.External = true
	main.ReturnType = ir.Uint(256)
	main.HasReturn = true
	mEntry := main.NewBlock()
	main.Entry = mEntry
	arg := ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(5)))
	callRes := main.NewTemp(ir.Uint(256))
	main.AddInstr(mEntry, &ir.Instruction{Op: ir.OpCall, Dest: callRes, Type: ir.Uint(256), Callee: "double", Args: []ir.Value{arg}})
	main.SetTerminator(mEntry, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(callRes, ir.Uint(256))})

	mod := ir.NewModule("Z")
	mod.AddFunction(main)
	mod.AddFunction(helper)
	return mod
}

func TestEmitModuleInternalCall(t *testing.T) {
	mod := buildCallModule()
	result, diags := EmitModule(mod)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	for i := 0; i+1 < len(result.Runtime); i++ {
		if result.Runtime[i] == byte(opPUSH2) && result.Runtime[i+1] == 0 && result.Runtime[i+2] == 0 {
			t.Fatal("found an unpatched call-target placeholder")
		}
	}
	if len(result.Runtime) == 0 {
		t.Fatal("expected non-empty runtime")
	}
}

func TestGenerateSingleFunctionStandalone(t *testing.T) {
	fn := ir.NewFunction("main")
	fn.External = true
	entry := fn.NewBlock()
	fn.Entry = entry
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermReturn})

	live := liveness.Analyze(fn)
	plan, _ := memplan.Plan(fn, live)
	code, blockStart, calls, diags := Generate(fn, plan, GenOptions{TopLevel: true})
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if len(calls) != 0 {
		t.Fatal("expected no call patches for a call-free function")
	}
	if blockStart[entry] != 0 {
		t.Fatalf("expected entry block at offset 0, got %d", blockStart[entry])
	}
	if len(code) == 0 || code[len(code)-1] != byte(opSTOP) {
		t.Fatal("expected a bare `return;` to lower to STOP")
	}
}

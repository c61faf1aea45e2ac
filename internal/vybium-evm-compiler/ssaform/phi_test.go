package ssaform

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// buildLoopFunction constructs, by hand, the IR a builder would emit for:
//
//	let i = 0
//	while (i < 10) {
//	    i = i + 1
//	}
//	return i
func buildLoopFunction() *ir.Function {
	fn := ir.NewFunction("count")
	fn.ReturnType = ir.Uint(256)
	fn.HasReturn = true
	i := fn.AddLocal("i", ir.Uint(256), nil)

	entry := fn.NewBlock()
	header := fn.NewBlock()
	body := fn.NewBlock()
	exit := fn.NewBlock()
	fn.Entry = entry

	fn.AddInstr(entry, &ir.Instruction{Op: ir.OpStoreLocal, Local: i, Value: ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(0)))})
	fn.SetTerminator(entry, &ir.Terminator{Kind: ir.TermJump, Target: header})

	loadHeader := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(header, &ir.Instruction{Op: ir.OpLoadLocal, Dest: loadHeader, Type: ir.Uint(256), Local: i})
	cond := fn.NewTemp(ir.Bool)
	fn.AddInstr(header, &ir.Instruction{Op: ir.OpBinary, Dest: cond, Type: ir.Bool, BinOp: ir.Lt, Lhs: ir.TempValue(loadHeader, ir.Uint(256)), Rhs: ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(10)))})
	fn.SetTerminator(header, &ir.Terminator{Kind: ir.TermBranch, Cond: ir.TempValue(cond, ir.Bool), TrueTarget: body, FalseTarget: exit})

	loadBody := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(body, &ir.Instruction{Op: ir.OpLoadLocal, Dest: loadBody, Type: ir.Uint(256), Local: i})
	inc := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(body, &ir.Instruction{Op: ir.OpBinary, Dest: inc, Type: ir.Uint(256), BinOp: ir.Add, Lhs: ir.TempValue(loadBody, ir.Uint(256)), Rhs: ir.ConstValue(ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(1)))})
	fn.AddInstr(body, &ir.Instruction{Op: ir.OpStoreLocal, Local: i, Value: ir.TempValue(inc, ir.Uint(256))})
	fn.SetTerminator(body, &ir.Terminator{Kind: ir.TermJump, Target: header})

	loadExit := fn.NewTemp(ir.Uint(256))
	fn.AddInstr(exit, &ir.Instruction{Op: ir.OpLoadLocal, Dest: loadExit, Type: ir.Uint(256), Local: i})
	fn.SetTerminator(exit, &ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: ir.TempValue(loadExit, ir.Uint(256))})

	return fn
}

func TestPromoteInsertsHeaderPhi(t *testing.T) {
	fn := buildLoopFunction()
	diags := &diag.List{}
	promoteFunction(fn, diags)

	header := fn.BlockOrder[1]
	blk := fn.Block(header)
	if len(blk.Phis) != 1 {
		t.Fatalf("expected one phi at the loop header, got %d", len(blk.Phis))
	}
	phi := blk.Phis[0]
	if len(phi.Sources) != 2 {
		t.Fatalf("expected phi to have 2 sources (entry, body), got %d", len(phi.Sources))
	}
}

func TestPromoteRemovesResolvedLoads(t *testing.T) {
	fn := buildLoopFunction()
	diags := &diag.List{}
	promoteFunction(fn, diags)

	for _, b := range fn.BlockOrder {
		for _, in := range fn.Block(b).Instr {
			if in.Op == ir.OpLoadLocal {
				t.Fatalf("expected every load_local to be promoted away, found one in block %d", b)
			}
		}
	}
}

func TestPromoteKeepsStores(t *testing.T) {
	fn := buildLoopFunction()
	diags := &diag.List{}
	promoteFunction(fn, diags)

	var stores int
	for _, b := range fn.BlockOrder {
		for _, in := range fn.Block(b).Instr {
			if in.Op == ir.OpStoreLocal {
				stores++
			}
		}
	}
	if stores != 2 {
		t.Fatalf("expected the entry and body store_local instructions to survive, got %d", stores)
	}
}

func TestDominatorBasics(t *testing.T) {
	fn := buildLoopFunction()
	dom := BuildDomTree(fn)
	entry, header, body, exit := fn.BlockOrder[0], fn.BlockOrder[1], fn.BlockOrder[2], fn.BlockOrder[3]

	if !dom.Dominates(entry, header) || !dom.Dominates(header, body) || !dom.Dominates(header, exit) {
		t.Fatalf("expected entry to dominate header, header to dominate body and exit")
	}
	if dom.Dominates(body, header) {
		t.Fatalf("a loop body must not dominate its own header")
	}
}

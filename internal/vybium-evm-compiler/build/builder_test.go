package build

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

func litExpr(v uint64) *ast.Expr {
	u256 := ir.Uint(256)
	return &ast.Expr{K: ast.ExprLiteral, Type: u256, Literal: ir.NewUintLiteral(u256, uint256.NewInt(v))}
}

// counterProgram builds the typed AST for:
//
//	storage count: uint256 @ slot 0
//
//	fn main() {
//	    let i = 0
//	    while (i < 5) {
//	        count = count + 1
//	        i = i + 1
//	    }
//	    return
//	}
func counterProgram() *ast.Program {
	u256 := ir.Uint(256)
	countIdent := &ast.Expr{K: ast.ExprIdent, Type: u256, Name: "count"}
	iIdent := &ast.Expr{K: ast.ExprIdent, Type: u256, Name: "i"}

	body := []ast.Stmt{
		{K: ast.StmtLet, LetName: "i", LetType: u256, LetInit: litExpr(0)},
		{
			K:    ast.StmtWhile,
			Cond: &ast.Expr{K: ast.ExprBinary, Type: ir.Bool, Op: ir.Lt, Left: iIdent, Right: litExpr(5)},
			Body: []ast.Stmt{
				{K: ast.StmtAssign, Target: countIdent, Value: &ast.Expr{K: ast.ExprBinary, Type: u256, Op: ir.Add, Left: countIdent, Right: litExpr(1)}},
				{K: ast.StmtAssign, Target: iIdent, Value: &ast.Expr{K: ast.ExprBinary, Type: u256, Op: ir.Add, Left: iIdent, Right: litExpr(1)}},
			},
		},
		{K: ast.StmtReturn},
	}

	return &ast.Program{
		Name:    "Counter",
		Storage: []ast.StorageDecl{{Name: "count", Type: u256, Slot: 0}},
		Funcs: []*ast.FuncDecl{
			{Name: "main", Body: body},
		},
	}
}

func TestBuildProducesEntryAndLoopBlocks(t *testing.T) {
	prog := counterProgram()
	mod, diags := Build(prog)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	fn := mod.Functions["main"]
	if fn == nil {
		t.Fatal("expected a main function")
	}
	if len(fn.BlockOrder) < 4 {
		t.Fatalf("expected at least 4 blocks (entry, header, body, exit), got %d", len(fn.BlockOrder))
	}
}

func TestBuildRejectsUnknownIdentifier(t *testing.T) {
	prog := counterProgram()
	prog.Funcs[0].Body[2] = ast.Stmt{
		K:      ast.StmtAssign,
		Target: &ast.Expr{K: ast.ExprIdent, Type: ir.Uint(256), Name: "nope"},
		Value:  litExpr(1),
	}
	_, diags := Build(prog)
	if !diags.HasErrors() {
		t.Fatal("expected an unknown-identifier error")
	}
}

func TestBuildMsgDataLengthUsesCalldataSize(t *testing.T) {
	u256 := ir.Uint(256)
	msgData := &ast.Expr{K: ast.ExprBuiltin, Type: ir.Bytes(0), Builtin: ast.BuiltinMsgData}
	lengthOf := &ast.Expr{K: ast.ExprBuiltin, Type: u256, Builtin: ast.BuiltinLength, Base: msgData}

	prog := &ast.Program{
		Name: "Sized",
		Funcs: []*ast.FuncDecl{
			{Name: "main", ReturnType: u256, HasReturn: true, Body: []ast.Stmt{
				{K: ast.StmtReturn, ReturnValue: lengthOf},
			}},
		},
	}

	mod, diags := Build(prog)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	entry := mod.Functions["main"].Block(mod.Functions["main"].Entry)
	if len(entry.Instr) != 1 || entry.Instr[0].Op != ir.OpEnv || entry.Instr[0].EnvOp != ir.CalldataSize {
		t.Fatalf("expected msg.data.length to lower to a calldatasize env query, got %v", entry.Instr)
	}
}

func TestBuildStorageMappingChain(t *testing.T) {
	u256 := ir.Uint(256)
	mapType := ir.Mapping(ir.Address, u256)
	balancesIdent := &ast.Expr{K: ast.ExprIdent, Type: mapType, Name: "balances"}
	keyExpr := &ast.Expr{K: ast.ExprBuiltin, Type: ir.Address, Builtin: ast.BuiltinMsgSender}
	indexed := &ast.Expr{K: ast.ExprIndex, Type: u256, Base: balancesIdent, Index: keyExpr}

	prog := &ast.Program{
		Name:    "Bank",
		Storage: []ast.StorageDecl{{Name: "balances", Type: mapType, Slot: 0}},
		Funcs: []*ast.FuncDecl{
			{Name: "main", Body: []ast.Stmt{
				{K: ast.StmtAssign, Target: indexed, Value: litExpr(100)},
				{K: ast.StmtReturn},
			}},
		},
	}

	mod, diags := Build(prog)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	fn := mod.Functions["main"]
	entry := fn.Block(fn.Entry)
	var sawComputeSlot, sawStoreStorage bool
	for _, in := range entry.Instr {
		if in.Op == ir.OpComputeSlot {
			sawComputeSlot = true
		}
		if in.Op == ir.OpStoreStorage {
			sawStoreStorage = true
		}
	}
	if !sawComputeSlot || !sawStoreStorage {
		t.Fatalf("expected compute_slot + store_storage for a mapping write, entry=%v", entry.Instr)
	}
}

package stats

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/build"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/liveness"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/memplan"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ssaform"
)

func accumulatorProgram() *ast.Program {
	u256 := ir.Uint(256)
	iIdent := &ast.Expr{K: ast.ExprIdent, Type: u256, Name: "i"}
	litExpr := func(v uint64) *ast.Expr {
		return &ast.Expr{K: ast.ExprLiteral, Type: u256, Literal: ir.NewUintLiteral(u256, uint256.NewInt(v))}
	}

	body := []ast.Stmt{
		{K: ast.StmtLet, LetName: "i", LetType: u256, LetInit: litExpr(0)},
		{
			K:    ast.StmtWhile,
			Cond: &ast.Expr{K: ast.ExprBinary, Type: ir.Bool, Op: ir.Lt, Left: iIdent, Right: litExpr(5)},
			Body: []ast.Stmt{
				{K: ast.StmtAssign, Target: iIdent, Value: &ast.Expr{K: ast.ExprBinary, Type: u256, Op: ir.Add, Left: iIdent, Right: litExpr(1)}},
			},
		},
		{K: ast.StmtReturn},
	}

	return &ast.Program{Name: "Accumulator", Funcs: []*ast.FuncDecl{{Name: "main", Body: body}}}
}

func TestCollectCountsBlocksInstructionsAndPhis(t *testing.T) {
	mod, diags := build.Build(accumulatorProgram())
	if diags.HasErrors() {
		t.Fatalf("unexpected build errors: %v", diags.Items())
	}
	mod, phiDiags := ssaform.Run(mod)
	if phiDiags.HasErrors() {
		t.Fatalf("unexpected phi errors: %v", phiDiags.Items())
	}

	s := Collect(mod, nil)
	if len(s.Functions) != 1 || s.Functions[0].Name != "main" {
		t.Fatalf("expected one function named main, got %+v", s.Functions)
	}
	if s.Functions[0].Blocks < 4 {
		t.Fatalf("expected at least 4 blocks, got %d", s.Functions[0].Blocks)
	}
	if s.TotalPhis == 0 {
		t.Fatal("expected the loop-carried accumulator to produce at least one phi")
	}
}

func TestCollectSpillsFromMemoryPlan(t *testing.T) {
	mod, diags := build.Build(accumulatorProgram())
	if diags.HasErrors() {
		t.Fatalf("unexpected build errors: %v", diags.Items())
	}
	mod, _ = ssaform.Run(mod)

	fn := mod.Functions["main"]
	live := liveness.Analyze(fn)
	plan, planDiags := memplan.Plan(fn, live)
	if planDiags.HasErrors() {
		t.Fatalf("unexpected memplan errors: %v", planDiags.Items())
	}

	plans := map[string]*memplan.MemoryPlan{"main": plan}
	s := Collect(mod, plans)
	if s.Functions[0].Spills == 0 {
		t.Fatal("expected the accumulator local to be spilled")
	}
	if s.TotalSpills != s.Functions[0].Spills {
		t.Fatalf("total spills %d should match the single function's %d", s.TotalSpills, s.Functions[0].Spills)
	}
}

func TestModuleStringFormatsCounts(t *testing.T) {
	s := &Module{
		Functions:         []Function{{Name: "main", Blocks: 2, Instructions: 3, Phis: 1, Spills: 1}},
		TotalBlocks:       2,
		TotalInstructions: 3,
		TotalPhis:         1,
		TotalSpills:       1,
	}
	out := s.String()
	if out == "" {
		t.Fatal("expected non-empty stats text")
	}
}

package vybiumevmcompiler

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// constReturnProgram builds `fn main() returns uint256 { return 42 }`,
// matching spec §8 scenario 2.
func constReturnProgram() *ast.Program {
	u256 := ir.Uint(256)
	lit := ir.NewUintLiteral(u256, uint256.NewInt(42))
	return &ast.Program{
		Name: "ConstReturn",
		Funcs: []*ast.FuncDecl{
			{
				Name:       "main",
				ReturnType: u256,
				HasReturn:  true,
				Body: []ast.Stmt{
					{K: ast.StmtReturn, ReturnValue: &ast.Expr{K: ast.ExprLiteral, Type: u256, Literal: lit}},
				},
			},
		},
	}
}

func TestCompileToAST(t *testing.T) {
	prog := constReturnProgram()
	result, err := Compile(DefaultOptions().WithProgram(prog).WithTo(ArtifactAST))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AST != prog {
		t.Fatal("expected Compile to return the same Program pointer for ArtifactAST")
	}
}

func TestCompileToIR(t *testing.T) {
	prog := constReturnProgram()
	result, err := Compile(DefaultOptions().WithProgram(prog).WithTo(ArtifactIR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IR == nil || result.IR.Functions["main"] == nil {
		t.Fatal("expected an IR module with a main function")
	}
}

func TestCompileToBytecode(t *testing.T) {
	prog := constReturnProgram()
	result, err := Compile(DefaultOptions().WithProgram(prog).WithTo(ArtifactBytecode))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Bytecode.Runtime) == 0 {
		t.Fatal("expected non-empty runtime bytecode")
	}
	if len(result.Bytecode.Create) == 0 {
		t.Fatal("expected deployment bytecode wrapping the runtime")
	}
}

func TestCompileWithOptimizerFixedPoint(t *testing.T) {
	prog := constReturnProgram()
	result, err := Compile(DefaultOptions().WithProgram(prog).WithTo(ArtifactBytecode).WithOptimizerLevel(3))
	if err != nil {
		t.Fatalf("unexpected error with optimizer level 3: %v", err)
	}
	if len(result.Bytecode.Runtime) == 0 {
		t.Fatal("expected non-empty runtime bytecode")
	}
}

// loopProgram builds a while-loop accumulator, the smallest program whose
// loop-carried local forces a header phi through the whole pipeline.
func loopProgram() *ast.Program {
	u256 := ir.Uint(256)
	lit := func(v uint64) *ast.Expr {
		return &ast.Expr{K: ast.ExprLiteral, Type: u256, Literal: ir.NewUintLiteral(u256, uint256.NewInt(v))}
	}
	iIdent := &ast.Expr{K: ast.ExprIdent, Type: u256, Name: "i"}
	return &ast.Program{
		Name: "Loop",
		Funcs: []*ast.FuncDecl{
			{Name: "main", ReturnType: u256, HasReturn: true, Body: []ast.Stmt{
				{K: ast.StmtLet, LetName: "i", LetType: u256, LetInit: lit(0)},
				{
					K:    ast.StmtWhile,
					Cond: &ast.Expr{K: ast.ExprBinary, Type: ir.Bool, Op: ir.Lt, Left: iIdent, Right: lit(10)},
					Body: []ast.Stmt{
						{K: ast.StmtAssign, Target: iIdent, Value: &ast.Expr{K: ast.ExprBinary, Type: u256, Op: ir.Add, Left: iIdent, Right: lit(1)}},
					},
				},
				{K: ast.StmtReturn, ReturnValue: iIdent},
			}},
		},
	}
}

func TestCompileLoopCarriedPhiToBytecode(t *testing.T) {
	prog := loopProgram()

	irResult, err := Compile(DefaultOptions().WithProgram(prog).WithTo(ArtifactIR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	phis := 0
	fn := irResult.IR.Functions["main"]
	for _, b := range fn.BlockOrder {
		phis += len(fn.Block(b).Phis)
	}
	if phis == 0 {
		t.Fatal("expected the loop header to carry a phi for the accumulator")
	}

	bcResult, err := Compile(DefaultOptions().WithProgram(prog).WithTo(ArtifactBytecode))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bcResult.Bytecode.Runtime) == 0 {
		t.Fatal("expected non-empty runtime bytecode for the loop program")
	}
}

func TestCompileRejectsMissingProgram(t *testing.T) {
	_, err := Compile(DefaultOptions().WithTo(ArtifactBytecode))
	if err == nil {
		t.Fatal("expected an error for a nil Program")
	}
	ce, ok := err.(*CompileError)
	if !ok || ce.Code != ErrInvalidOptions {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestCompileSurfacesBuildErrors(t *testing.T) {
	prog := &ast.Program{
		Name: "Bad",
		Funcs: []*ast.FuncDecl{
			{Name: "main", Body: []ast.Stmt{
				{K: ast.StmtAssign,
					Target: &ast.Expr{K: ast.ExprIdent, Type: ir.Uint(256), Name: "undefined"},
					Value:  &ast.Expr{K: ast.ExprLiteral, Type: ir.Uint(256), Literal: ir.NewUintLiteral(ir.Uint(256), uint256.NewInt(1))},
				},
				{K: ast.StmtReturn},
			}},
		},
	}

	_, err := Compile(DefaultOptions().WithProgram(prog).WithTo(ArtifactBytecode))
	if err == nil {
		t.Fatal("expected a build error for an assignment to an undefined identifier")
	}
	ce, ok := err.(*CompileError)
	if !ok || ce.Code != ErrBuildFailed {
		t.Fatalf("expected ErrBuildFailed, got %v", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions().WithOptimizerLevel(4)
	if err := opts.Validate(); err == nil {
		t.Fatal("expected an error for optimizer level 4")
	}
}

func TestOptionsClone(t *testing.T) {
	prog := constReturnProgram()
	opts := DefaultOptions().WithProgram(prog).WithOptimizerLevel(2)
	clone := opts.Clone()
	clone.OptimizerLevel = 0
	if opts.OptimizerLevel != 2 {
		t.Fatal("mutating the clone must not affect the original")
	}
	if clone.Program != prog {
		t.Fatal("Clone should share the Program pointer")
	}
}

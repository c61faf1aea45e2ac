package build

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ast"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

func (b *Builder) buildStmts(stmts []ast.Stmt) {
	for i := range stmts {
		if b.terminated() {
			return
		}
		b.buildStmt(&stmts[i])
	}
}

func (b *Builder) buildStmt(s *ast.Stmt) {
	switch s.K {
	case ast.StmtLet:
		b.buildLet(s)
	case ast.StmtAssign:
		val := b.buildExpr(s.Value)
		b.buildAssign(s.Target, val)
	case ast.StmtIf:
		b.buildIf(s)
	case ast.StmtWhile:
		b.buildWhile(s)
	case ast.StmtFor:
		b.buildFor(s)
	case ast.StmtBreak:
		b.buildBreak(s)
	case ast.StmtContinue:
		b.buildContinue(s)
	case ast.StmtReturn:
		b.buildReturn(s)
	case ast.StmtExpr:
		b.buildExpr(s.Expr)
	default:
		b.diags.Errorf(diag.CodeUnsupportedExpr, &s.Loc, "unsupported statement")
	}
}

func (b *Builder) buildLet(s *ast.Stmt) {
	id := b.fn.AddLocal(s.LetName, s.LetType, &s.Loc)
	b.define(s.LetName, id)
	if s.LetInit == nil {
		return
	}
	val := b.buildExpr(s.LetInit)
	b.emit(&ir.Instruction{Op: ir.OpStoreLocal, Type: s.LetType, Loc: s.Loc, Local: id, Value: val})

	if s.LetType.IsPointerLike() {
		if _, _, rootedInStorage := b.resolveStorageChain(s.LetInit); rootedInStorage && s.LetInit.Type.IsPointerLike() {
			b.refAliases[id] = true
		}
	}
}

// buildAssign lowers an lvalue store: identifier, storage/memory index, or
// storage/memory member.
func (b *Builder) buildAssign(target *ast.Expr, val ir.Value) {
	switch target.K {
	case ast.ExprIdent:
		if id, ok := b.lookupLocal(target.Name); ok {
			b.emit(&ir.Instruction{Op: ir.OpStoreLocal, Type: target.Type, Loc: target.Loc, Local: id, Value: val})
			return
		}
		if decl, ok := b.storage[target.Name]; ok {
			slot := ir.ConstValue(slotLiteral(uint64(decl.Slot)))
			b.emit(&ir.Instruction{Op: ir.OpStoreStorage, Type: target.Type, Loc: target.Loc, Slot: slot, Value: val})
			return
		}
		b.diags.Errorf(diag.CodeUnknownIdent, &target.Loc, "unknown identifier %q", target.Name)

	case ast.ExprIndex, ast.ExprMember:
		if b.aliasErrorAt(target.Base) {
			return
		}
		if root, chain, ok := b.resolveStorageChain(target); ok {
			slot, typ := b.computeSlot(target.Loc, root, chain)
			b.emit(&ir.Instruction{Op: ir.OpStoreStorage, Type: typ, Loc: target.Loc, Slot: slot, Value: val})
			return
		}
		base := b.buildExpr(target.Base)
		if target.K == ast.ExprIndex {
			idx := b.buildExpr(target.Index)
			b.emit(&ir.Instruction{Op: ir.OpStoreIndex, Type: target.Type, Loc: target.Loc, Base: base, Index: idx, Value: val})
		} else {
			idx, _, found := findField(target.Base.Type, target.FieldName)
			if !found {
				b.diags.Errorf(diag.CodeUnknownIdent, &target.Loc, "unknown field %q", target.FieldName)
				return
			}
			b.emit(&ir.Instruction{Op: ir.OpStoreField, Type: target.Type, Loc: target.Loc, Base: base, FieldIdx: idx, Value: val})
		}

	default:
		b.diags.Errorf(diag.CodeInvalidLValue, &target.Loc, "invalid assignment target")
	}
}

func (b *Builder) buildIf(s *ast.Stmt) {
	cond := b.buildExpr(s.Cond)
	thenBlock := b.newBlock()
	elseBlock := b.newBlock()
	join := b.newBlock()

	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermBranch, Loc: s.Loc, Cond: cond, TrueTarget: thenBlock, FalseTarget: elseBlock})

	b.pushScope()
	b.block = thenBlock
	b.buildStmts(s.Then)
	if !b.terminated() {
		b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Target: join})
	}
	b.popScope()

	b.pushScope()
	b.block = elseBlock
	b.buildStmts(s.Else)
	if !b.terminated() {
		b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Target: join})
	}
	b.popScope()

	b.block = join
}

func (b *Builder) buildWhile(s *ast.Stmt) {
	header := b.newBlock()
	body := b.newBlock()
	exit := b.newBlock()

	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Target: header})

	b.block = header
	cond := b.buildExpr(s.Cond)
	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermBranch, Loc: s.Loc, Cond: cond, TrueTarget: body, FalseTarget: exit})

	b.loops = append(b.loops, loopCtx{continueTarget: header, breakTarget: exit})
	b.pushScope()
	b.block = body
	b.buildStmts(s.Body)
	if !b.terminated() {
		b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Target: header})
	}
	b.popScope()
	b.loops = b.loops[:len(b.loops)-1]

	b.block = exit
}

func (b *Builder) buildFor(s *ast.Stmt) {
	b.pushScope()
	if s.ForInit != nil {
		b.buildStmt(s.ForInit)
	}

	header := b.newBlock()
	body := b.newBlock()
	update := b.newBlock()
	exit := b.newBlock()

	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Target: header})

	b.block = header
	cond := b.buildExpr(s.Cond)
	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermBranch, Loc: s.Loc, Cond: cond, TrueTarget: body, FalseTarget: exit})

	b.loops = append(b.loops, loopCtx{continueTarget: update, breakTarget: exit})
	b.pushScope()
	b.block = body
	b.buildStmts(s.Body)
	if !b.terminated() {
		b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Target: update})
	}
	b.popScope()
	b.loops = b.loops[:len(b.loops)-1]

	b.block = update
	if s.ForUpdate != nil && !b.terminated() {
		b.buildStmt(s.ForUpdate)
	}
	if !b.terminated() {
		b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Target: header})
	}

	b.popScope()
	b.block = exit
}

func (b *Builder) buildBreak(s *ast.Stmt) {
	if len(b.loops) == 0 {
		b.diags.Errorf(diag.CodeUnsupportedExpr, &s.Loc, "break outside of a loop")
		return
	}
	target := b.loops[len(b.loops)-1].breakTarget
	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Loc: s.Loc, Target: target})
}

func (b *Builder) buildContinue(s *ast.Stmt) {
	if len(b.loops) == 0 {
		b.diags.Errorf(diag.CodeUnsupportedExpr, &s.Loc, "continue outside of a loop")
		return
	}
	target := b.loops[len(b.loops)-1].continueTarget
	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermJump, Loc: s.Loc, Target: target})
}

func (b *Builder) buildReturn(s *ast.Stmt) {
	if s.ReturnValue == nil {
		if b.fn.HasReturn {
			b.diags.Errorf(diag.CodeMissingReturn, &s.Loc, "function %q must return a value", b.fn.Name)
		}
		b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermReturn, Loc: s.Loc})
		return
	}
	val := b.buildExpr(s.ReturnValue)
	b.fn.SetTerminator(b.block, &ir.Terminator{Kind: ir.TermReturn, Loc: s.Loc, HasValue: true, Value: val})
}

// Package layout implements the Block Layout Planner (spec §4.5): a
// depth-first linearization of a function's blocks, starting at the
// entry block and visiting a branch's true target before its false
// target, with any block the traversal never reaches appended at the
// tail in creation order.
package layout

import "github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"

// Order returns fn's blocks in emission order.
func Order(fn *ir.Function) []ir.BlockID {
	visited := make(map[ir.BlockID]bool, len(fn.Blocks))
	var order []ir.BlockID

	var visit func(ir.BlockID)
	visit = func(id ir.BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)

		blk := fn.Block(id)
		if blk == nil || blk.Term == nil {
			return
		}
		switch blk.Term.Kind {
		case ir.TermBranch:
			visit(blk.Term.TrueTarget)
			visit(blk.Term.FalseTarget)
		case ir.TermJump:
			visit(blk.Term.Target)
		}
	}
	visit(fn.Entry)

	for _, id := range fn.BlockOrder {
		if !visited[id] {
			visit(id)
		}
	}

	return order
}

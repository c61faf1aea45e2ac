// Package ssaform implements the Phi Inserter (spec §4.2): it computes
// dominance over a function's control-flow graph, places phi nodes at the
// iterated dominance frontier of each local's definitions, and rewrites
// load_local uses to reference the reaching SSA value.
package ssaform

import "github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"

// DomTree is the dominator tree of one function's control-flow graph,
// computed with the iterative algorithm of Cooper, Harvey & Kennedy ("A
// Simple, Fast Dominance Algorithm"), which converges in a handful of
// passes over a reverse-postorder block list without requiring an
// explicit semi-dominator/link-eval structure.
type DomTree struct {
	fn       *ir.Function
	rpo      []ir.BlockID
	rpoIndex map[ir.BlockID]int
	idom     map[ir.BlockID]ir.BlockID
}

// reversePostorder returns the function's blocks in reverse postorder from
// the entry block, following terminator targets in their fixed
// true-then-false order (spec §4.5's own traversal order, reused here so
// both passes agree on "the" natural block order).
func reversePostorder(fn *ir.Function) []ir.BlockID {
	visited := make(map[ir.BlockID]bool, len(fn.Blocks))
	var post []ir.BlockID

	var visit func(ir.BlockID)
	visit = func(id ir.BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		if blk := fn.Block(id); blk != nil && blk.Term != nil {
			for _, t := range blk.Term.Targets() {
				visit(t)
			}
		}
		post = append(post, id)
	}
	visit(fn.Entry)

	rpo := make([]ir.BlockID, len(post))
	for i, id := range post {
		rpo[len(post)-1-i] = id
	}
	return rpo
}

// BuildDomTree computes the dominator tree for fn. Unreachable blocks (no
// path from Entry — the builder never produces these, but a pass must not
// assume it) are simply absent from the tree.
func BuildDomTree(fn *ir.Function) *DomTree {
	rpo := reversePostorder(fn)
	rpoIndex := make(map[ir.BlockID]int, len(rpo))
	for i, id := range rpo {
		rpoIndex[id] = i
	}

	idom := make(map[ir.BlockID]ir.BlockID)
	idom[fn.Entry] = fn.Entry

	for changed := true; changed; {
		changed = false
		for _, b := range rpo {
			if b == fn.Entry {
				continue
			}
			blk := fn.Block(b)
			var newIdom ir.BlockID
			found := false
			for _, p := range blk.Preds {
				if _, ok := idom[p]; !ok {
					continue
				}
				if !found {
					newIdom = p
					found = true
					continue
				}
				newIdom = intersect(idom, rpoIndex, newIdom, p)
			}
			if !found {
				continue
			}
			if cur, ok := idom[b]; !ok || cur != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	return &DomTree{fn: fn, rpo: rpo, rpoIndex: rpoIndex, idom: idom}
}

func intersect(idom map[ir.BlockID]ir.BlockID, rpoIndex map[ir.BlockID]int, a, b ir.BlockID) ir.BlockID {
	for a != b {
		for rpoIndex[a] > rpoIndex[b] {
			a = idom[a]
		}
		for rpoIndex[b] > rpoIndex[a] {
			b = idom[b]
		}
	}
	return a
}

// IDom returns b's immediate dominator, or (fn.Entry, false) if b is
// unreachable.
func (d *DomTree) IDom(b ir.BlockID) (ir.BlockID, bool) {
	id, ok := d.idom[b]
	return id, ok
}

// Dominates reports whether a dominates b (every a == b case is true).
func (d *DomTree) Dominates(a, b ir.BlockID) bool {
	if _, ok := d.idom[b]; !ok {
		return false
	}
	for {
		if a == b {
			return true
		}
		if b == d.fn.Entry {
			return a == d.fn.Entry
		}
		b = d.idom[b]
	}
}

// ReversePostorder exposes the traversal order the tree was built from.
func (d *DomTree) ReversePostorder() []ir.BlockID { return d.rpo }

// Frontier computes the dominance frontier of every reachable block:
// DF(n) is the set of blocks b such that n dominates an immediate
// predecessor of b but does not strictly dominate b itself.
func (d *DomTree) Frontier() map[ir.BlockID][]ir.BlockID {
	df := make(map[ir.BlockID][]ir.BlockID)
	for _, b := range d.rpo {
		blk := d.fn.Block(b)
		if len(blk.Preds) < 2 {
			continue
		}
		for _, p := range blk.Preds {
			if _, ok := d.idom[p]; !ok {
				continue
			}
			runner := p
			for runner != d.idom[b] {
				df[runner] = appendUnique(df[runner], b)
				if runner == d.fn.Entry {
					break
				}
				runner = d.idom[runner]
			}
		}
	}
	return df
}

func appendUnique(list []ir.BlockID, id ir.BlockID) []ir.BlockID {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

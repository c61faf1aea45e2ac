// Package liveness implements the Liveness Analyzer (spec §4.3): a
// backward fixed-point dataflow over each function's use/def sets,
// producing per-block liveIn/liveOut sets and the function-wide set of
// temps that cross a block boundary — the input the Memory Planner (§4.4)
// needs to decide what must be spilled to memory.
package liveness

import "github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"

// BlockLiveness holds the four sets classically associated with one block
// in a liveness analysis.
type BlockLiveness struct {
	Use map[ir.TempID]bool
	Def map[ir.TempID]bool
	In  map[ir.TempID]bool
	Out map[ir.TempID]bool
}

// FunctionLiveness is the result of analyzing one function.
type FunctionLiveness struct {
	Blocks map[ir.BlockID]*BlockLiveness
	// CrossBlockValues are temps that are live into at least one block
	// other than the one that defines them — candidates the memory
	// planner must consider spilling (spec §4.4 "Why spilling required").
	CrossBlockValues map[ir.TempID]bool
}

type edge struct {
	pred, succ ir.BlockID
}

// Analyze computes liveness for fn. fn is expected to have already gone
// through phi insertion (internal/.../ssaform); liveness tracks SSA temps
// only — locals always live in memory regardless of liveness (spec
// §4.4(d)) and are out of scope here.
func Analyze(fn *ir.Function) *FunctionLiveness {
	fl := &FunctionLiveness{Blocks: make(map[ir.BlockID]*BlockLiveness, len(fn.BlockOrder))}
	defBlockOf := make(map[ir.TempID]ir.BlockID)

	for _, b := range fn.BlockOrder {
		blk := fn.Block(b)
		bl := &BlockLiveness{Use: map[ir.TempID]bool{}, Def: map[ir.TempID]bool{}}

		for _, phi := range blk.Phis {
			bl.Def[phi.Dest] = true
			defBlockOf[phi.Dest] = b
		}
		for _, in := range blk.Instr {
			for _, v := range in.Uses() {
				if v.Kind == ir.ValTemp && !bl.Def[v.Temp] {
					bl.Use[v.Temp] = true
				}
			}
			if ir.HasResult(in.Op) {
				bl.Def[in.Dest] = true
				defBlockOf[in.Dest] = b
			}
		}
		if blk.Term != nil {
			for _, v := range termUses(blk.Term) {
				if v.Kind == ir.ValTemp && !bl.Def[v.Temp] {
					bl.Use[v.Temp] = true
				}
			}
		}
		fl.Blocks[b] = bl
	}

	phiUses := make(map[edge]map[ir.TempID]bool)
	for _, b := range fn.BlockOrder {
		for _, phi := range fn.Block(b).Phis {
			for pred, v := range phi.Sources {
				if v.Kind != ir.ValTemp {
					continue
				}
				e := edge{pred, b}
				if phiUses[e] == nil {
					phiUses[e] = map[ir.TempID]bool{}
				}
				phiUses[e][v.Temp] = true
			}
		}
	}

	for _, bl := range fl.Blocks {
		bl.In = map[ir.TempID]bool{}
		bl.Out = map[ir.TempID]bool{}
	}

	for changed := true; changed; {
		changed = false
		for _, b := range fn.BlockOrder {
			blk := fn.Block(b)
			bl := fl.Blocks[b]

			newOut := map[ir.TempID]bool{}
			if blk.Term != nil {
				for _, s := range blk.Term.Targets() {
					sPhiDefs := map[ir.TempID]bool{}
					for _, phi := range fn.Block(s).Phis {
						sPhiDefs[phi.Dest] = true
					}
					for t := range fl.Blocks[s].In {
						if !sPhiDefs[t] {
							newOut[t] = true
						}
					}
					if pu, ok := phiUses[edge{b, s}]; ok {
						for t := range pu {
							newOut[t] = true
						}
					}
				}
			}

			newIn := map[ir.TempID]bool{}
			for t := range bl.Use {
				newIn[t] = true
			}
			for t := range newOut {
				if !bl.Def[t] {
					newIn[t] = true
				}
			}

			if !equalSet(newIn, bl.In) || !equalSet(newOut, bl.Out) {
				bl.In = newIn
				bl.Out = newOut
				changed = true
			}
		}
	}

	cross := make(map[ir.TempID]bool)
	for b, bl := range fl.Blocks {
		for t := range bl.In {
			if defBlockOf[t] != b {
				cross[t] = true
			}
		}
	}
	fl.CrossBlockValues = cross
	return fl
}

func termUses(t *ir.Terminator) []ir.Value {
	switch t.Kind {
	case ir.TermBranch:
		return []ir.Value{t.Cond}
	case ir.TermReturn:
		if t.HasValue {
			return []ir.Value{t.Value}
		}
	}
	return nil
}

func equalSet(a, b map[ir.TempID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for t := range a {
		if !b[t] {
			return false
		}
	}
	return true
}

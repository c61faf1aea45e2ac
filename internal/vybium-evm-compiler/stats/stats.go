// Package stats computes per-module IR statistics for the CLI's --stats
// flag: counts of functions, blocks, instructions, phis and (when a
// memory plan is available) spilled values. It is read-only over the IR
// and over memplan's output; it never drives compilation decisions.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/memplan"
)

// Function holds one function's counts.
type Function struct {
	Name         string
	Blocks       int
	Instructions int
	Phis         int
	Spills       int // populated only when a MemoryPlan is supplied
}

// Module holds the whole module's counts: the per-function breakdown plus
// totals.
type Module struct {
	Functions []Function

	TotalBlocks       int
	TotalInstructions int
	TotalPhis         int
	TotalSpills       int
}

// Collect walks mod and every function named in it, counting blocks,
// instructions and phis. plans maps function name to its memory plan, for
// when the CLI has already run memplan (nil entries, or a nil map, are
// fine: Spills is simply left at zero for those functions).
func Collect(mod *ir.Module, plans map[string]*memplan.MemoryPlan) *Module {
	out := &Module{}
	for _, fn := range mod.AllFunctions() {
		f := Function{Name: fn.Name}
		for _, id := range fn.BlockOrder {
			blk := fn.Block(id)
			if blk == nil {
				continue
			}
			f.Blocks++
			f.Instructions += len(blk.Instr)
			f.Phis += len(blk.Phis)
		}
		if plans != nil {
			if plan := plans[fn.Name]; plan != nil {
				f.Spills = len(plan.Offsets)
			}
		}
		out.Functions = append(out.Functions, f)
		out.TotalBlocks += f.Blocks
		out.TotalInstructions += f.Instructions
		out.TotalPhis += f.Phis
		out.TotalSpills += f.Spills
	}
	sort.Slice(out.Functions, func(i, j int) bool { return out.Functions[i].Name < out.Functions[j].Name })
	return out
}

// String renders the statistics as the CLI's --stats text block.
func (m *Module) String() string {
	var b strings.Builder
	for _, f := range m.Functions {
		fmt.Fprintf(&b, "function %s: %d blocks, %d instructions, %d phis, %d spills\n",
			f.Name, f.Blocks, f.Instructions, f.Phis, f.Spills)
	}
	fmt.Fprintf(&b, "total: %d blocks, %d instructions, %d phis, %d spills\n",
		m.TotalBlocks, m.TotalInstructions, m.TotalPhis, m.TotalSpills)
	return b.String()
}

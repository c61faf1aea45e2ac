// Package memplan implements the Memory Planner (spec §4.4): it decides
// which SSA values must live in scratch memory rather than the 16-deep
// addressable VM stack, and assigns every spilled value and every named
// local a fixed offset within the module's linear memory layout.
package memplan

import (
	"sort"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/liveness"
)

// Fixed memory region layout (spec §4.4 "Memory layout"): two 32-byte
// scratch slots the code generator may clobber freely within a single
// instruction's lowering (e.g. hashing operands), the free-memory-pointer
// cell, a permanent zero slot, and everything from StaticBase up used for
// spilled values and locals.
const (
	ScratchSlotA   = 0x00
	ScratchSlotB   = 0x20
	FreeMemPtrSlot = 0x40
	ZeroSlot       = 0x60
	StaticBase     = 0x80

	// maxStackDepth is the VM's addressable operand-stack depth; spillThreshold
	// leaves headroom for the operands of the instruction being lowered.
	maxStackDepth    = 16
	spillThreshold   = 14
	maxSpillsAllowed = 1000
)

// SpillKind distinguishes the two kinds of value the planner allocates
// memory for.
type SpillKind int

const (
	SpillTemp SpillKind = iota
	SpillLocal
)

// SpillKey identifies one memory-resident value.
type SpillKey struct {
	Kind  SpillKind
	Temp  ir.TempID
	Local ir.LocalID
}

// MemoryPlan is the offset assignment for one function.
type MemoryPlan struct {
	Offsets  map[SpillKey]int
	NextFree int // first unused byte offset, where dynamic allocation can begin
}

// OffsetOfTemp returns the memory offset for temp t, if it was spilled.
func (p *MemoryPlan) OffsetOfTemp(t ir.TempID) (int, bool) {
	off, ok := p.Offsets[SpillKey{Kind: SpillTemp, Temp: t}]
	return off, ok
}

// OffsetOfLocal returns the memory offset for local l. Every local is
// always spilled (spec §4.4(d)), so this always succeeds for a valid id.
func (p *MemoryPlan) OffsetOfLocal(l ir.LocalID) (int, bool) {
	off, ok := p.Offsets[SpillKey{Kind: SpillLocal, Local: l}]
	return off, ok
}

// IsTempSpilled reports whether t has a memory offset.
func (p *MemoryPlan) IsTempSpilled(t ir.TempID) bool {
	_, ok := p.OffsetOfTemp(t)
	return ok
}

// Plan computes the memory layout for fn given its liveness result, with
// spilled values and locals starting at StaticBase.
func Plan(fn *ir.Function, live *liveness.FunctionLiveness) (*MemoryPlan, *diag.List) {
	return PlanAt(fn, live, StaticBase)
}

// PlanAt computes the memory layout for fn exactly as Plan does, except
// spilled values and locals are packed starting at base rather than the
// fixed StaticBase. A module linking several functions into one runtime
// (internal/.../codegen's module-level emission) gives each function a
// distinct base so their static regions never overlap.
func PlanAt(fn *ir.Function, live *liveness.FunctionLiveness, base int) (*MemoryPlan, *diag.List) {
	diags := &diag.List{}
	tempType := make(map[ir.TempID]ir.Type)
	for _, b := range fn.BlockOrder {
		blk := fn.Block(b)
		for _, phi := range blk.Phis {
			tempType[phi.Dest] = phi.Type
		}
		for _, in := range blk.Instr {
			if ir.HasResult(in.Op) {
				tempType[in.Dest] = in.Type
			}
		}
	}

	// Start with the union of cross-block values and phi destinations
	// (spec §4.4 item 1); phi destinations are added explicitly because
	// liveness does not report a phi destination as cross-block when it
	// is used only in its own block.
	spill := make(map[ir.TempID]bool)
	for t := range live.CrossBlockValues {
		spill[t] = true
	}
	for _, b := range fn.BlockOrder {
		for _, phi := range fn.Block(b).Phis {
			spill[phi.Dest] = true
		}
	}

	// Per-block stack simulation: any additional temp whose live range
	// within its own block would push the simulated operand stack past
	// spillThreshold also gets spilled.
	for _, b := range fn.BlockOrder {
		simulateAndSpillBlock(fn.Block(b), spill)
	}

	type candidate struct {
		key  SpillKey
		size int
	}
	var candidates []candidate
	for t := range spill {
		typ, ok := tempType[t]
		if !ok {
			diags.Errorf(diag.CodeAllocationFailed, nil, "temp %%%d has no recorded type; cannot allocate memory", t)
			continue
		}
		candidates = append(candidates, candidate{key: SpillKey{Kind: SpillTemp, Temp: t}, size: typ.ByteSize()})
	}
	for _, l := range fn.Locals {
		candidates = append(candidates, candidate{key: SpillKey{Kind: SpillLocal, Local: l.ID}, size: l.Type.ByteSize()})
	}

	// Order by descending type size (spec §4.4 "Packing"); ties broken
	// deterministically by kind then id so output is stable across runs.
	// Each value then takes a whole 32-byte word of its own: values
	// smaller than 32 bytes are not packed together into a shared word.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].size != candidates[j].size {
			return candidates[i].size > candidates[j].size
		}
		ki, kj := candidates[i].key, candidates[j].key
		if ki.Kind != kj.Kind {
			return ki.Kind < kj.Kind
		}
		if ki.Kind == SpillTemp {
			return ki.Temp < kj.Temp
		}
		return ki.Local < kj.Local
	})

	if len(candidates) > maxSpillsAllowed {
		diags.Errorf(diag.CodeAllocationFailed, nil, "function %q requires %d spilled values, exceeding the %d limit", fn.Name, len(candidates), maxSpillsAllowed)
		candidates = candidates[:maxSpillsAllowed]
	}

	plan := &MemoryPlan{Offsets: make(map[SpillKey]int, len(candidates))}
	offset := base
	for _, c := range candidates {
		plan.Offsets[c.key] = offset
		offset += 32
	}
	plan.NextFree = offset

	return plan, diags
}

// simulateAndSpillBlock walks one block's instructions, tracking the
// simulated operand-stack depth of temps that are defined and consumed
// purely within this block (temps already in spill live in memory, not on
// the stack, so they never contribute to depth). Whenever depth would
// exceed spillThreshold, the earliest-defined live temp is spilled.
func simulateAndSpillBlock(blk *ir.Block, spill map[ir.TempID]bool) {
	lastUse := make(map[ir.TempID]int)
	for idx, in := range blk.Instr {
		for _, v := range in.Uses() {
			if v.Kind == ir.ValTemp {
				lastUse[v.Temp] = idx
			}
		}
	}
	if blk.Term != nil {
		for _, v := range termUses(blk.Term) {
			if v.Kind == ir.ValTemp {
				lastUse[v.Temp] = len(blk.Instr)
			}
		}
	}

	var live []ir.TempID
	for idx, in := range blk.Instr {
		var stillLive []ir.TempID
		for _, t := range live {
			if lastUse[t] >= idx {
				stillLive = append(stillLive, t)
			}
		}
		live = stillLive

		if ir.HasResult(in.Op) && !spill[in.Dest] {
			live = append(live, in.Dest)
		}

		for len(live) > spillThreshold {
			victim := live[0]
			spill[victim] = true
			live = live[1:]
		}
	}
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

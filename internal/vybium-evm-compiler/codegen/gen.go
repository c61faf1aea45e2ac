package codegen

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/layout"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/memplan"
)

// funcInfo is what a call site needs to know about another function in
// the same module: where its parameters live in memory, so the caller
// can write arguments directly into the callee's locals before jumping
// in (spec leaves "call" as a bare instruction kind; this is the linking
// convention internal/.../codegen supplies for it — see EmitModule).
type funcInfo struct {
	fn   *ir.Function
	plan *memplan.MemoryPlan
}

// GenOptions configures one function's lowering.
type GenOptions struct {
	// TopLevel marks a function whose byte 0 is reached by falling into
	// it (the runtime entry, or a constructor body): its entry block gets
	// the free-memory-pointer initialization instead of a JUMPDEST, and
	// its returns halt execution (RETURN/STOP) rather than jumping back
	// through the internal-call convention. Non-top-level functions are
	// only ever entered via an internal call, so their entry keeps its
	// JUMPDEST and their returns go through the call-return slots.
	TopLevel bool
	// LastInModule marks the function emitted last in the concatenated
	// runtime: a value-less return in its final laid-out block can fall
	// off the end of the code (the VM stops implicitly) instead of
	// emitting a STOP. For a constructor this is what lets the body fall
	// through into the deployment stub that follows it.
	LastInModule bool
	// HeapBase, when non-zero, overrides where the free-memory pointer
	// starts: a module with several functions passes the first byte above
	// every function's static region, so runtime heap allocations never
	// land inside another function's spill space.
	HeapBase int
	// BaseOffset is this function's byte position within the concatenated
	// runtime. VM jump targets are absolute, so every in-function jump
	// and call-return label is rebased by it at patch time.
	BaseOffset int
	// Fns gives every function callable via OpCall its parameter memory
	// layout, for modules with more than one function (nil for a
	// single-function Generate call with no internal calls to resolve).
	Fns map[string]*funcInfo
}

// funcLayout is everything the generator needs once per function: its
// emission order, each block's index within that order (for patch
// resolution), and the memory offset assigned to every temp.
type funcLayout struct {
	fn           *ir.Function
	plan         *memplan.MemoryPlan
	order        []ir.BlockID
	blockIndex   map[ir.BlockID]int
	tempSlot     map[ir.TempID]int
	fns          map[string]*funcInfo
	heapBase     int
	topLevel     bool
	lastInModule bool
}

// Generate lowers fn to bytecode using plan's memory assignment. Returns
// the function's own code, the byte position of each of its blocks'
// JUMPDEST relative to the start of this function's code, any call-target
// patches still needing another function's final offset, and diagnostics.
func Generate(fn *ir.Function, plan *memplan.MemoryPlan, opts GenOptions) ([]byte, map[ir.BlockID]int, []CallPatch, *diag.List) {
	diags := &diag.List{}
	order := layout.Order(fn)
	blockIndex := make(map[ir.BlockID]int, len(order))
	for i, b := range order {
		blockIndex[b] = i
	}

	tempSlot := make(map[ir.TempID]int)
	nextFree := plan.NextFree
	resolveTemp := func(t ir.TempID) int {
		if off, ok := plan.OffsetOfTemp(t); ok {
			return off
		}
		if off, ok := tempSlot[t]; ok {
			return off
		}
		off := nextFree
		nextFree += 32
		tempSlot[t] = off
		return off
	}

	// Pre-assign a slot to every temp defined anywhere in the function so
	// the heap (the free-memory-pointer's starting value) sits above
	// everything codegen will ever write. needsMemory stays false only for
	// a function with no instructions, phis or allocations at all, in
	// which case the pointer initialization is dropped and an empty
	// function lowers to zero bytes.
	needsMemory := len(plan.Offsets) > 0
	for _, b := range order {
		blk := fn.Block(b)
		if blk == nil {
			continue
		}
		for _, phi := range blk.Phis {
			needsMemory = true
			resolveTemp(phi.Dest)
		}
		for _, in := range blk.Instr {
			needsMemory = true
			if ir.HasResult(in.Op) {
				resolveTemp(in.Dest)
			}
		}
	}
	heapBase := nextFree
	if opts.HeapBase > heapBase {
		heapBase = opts.HeapBase
	}

	fl := &funcLayout{
		fn:           fn,
		plan:         plan,
		order:        order,
		blockIndex:   blockIndex,
		tempSlot:     tempSlot,
		fns:          opts.Fns,
		heapBase:     heapBase,
		topLevel:     opts.TopLevel,
		lastInModule: opts.LastInModule,
	}

	e := newEmitter()
	blockPos := make([]int, len(order))

	for i, b := range order {
		blockPos[i] = e.pos()
		e.resetBlockStack()
		if i == 0 && opts.TopLevel {
			if needsMemory {
				emitFreeMemPtrInit(e, heapBase)
			}
		} else {
			e.emit(opJUMPDEST)
		}
		g := &blockGen{e: e, fl: fl, resolveTemp: resolveTemp, diags: diags, blockID: b}
		g.genBlock(fn.Block(b))
	}

	calls := e.patchJumps(blockPos, opts.BaseOffset)

	blockStart := make(map[ir.BlockID]int, len(order))
	for i, b := range order {
		blockStart[b] = blockPos[i]
	}

	if len(fn.Blocks) == 0 {
		diags.Errorf(diag.CodeInvalidLayout, nil, "function %q has no blocks", fn.Name)
	}

	return e.buf, blockStart, calls, diags
}

// emitFreeMemPtrInit writes nextStatic into the free-memory-pointer cell
// (spec §4.4 "0x40..0x5f: free-memory-pointer cell", §4.6.3 step 2),
// marking every byte below it as already in use by spills and locals.
func emitFreeMemPtrInit(e *emitter, nextStatic int) {
	e.pushUint(uint64(nextStatic), brandValue)
	e.pushUint(memplan.FreeMemPtrSlot, brandOffset)
	e.emit(opMSTORE)
	e.popN(2)
}

// blockGen lowers a single block's phis, instructions and terminator.
type blockGen struct {
	e           *emitter
	fl          *funcLayout
	resolveTemp func(ir.TempID) int
	diags       *diag.List
	blockID     ir.BlockID
}

func (g *blockGen) genBlock(blk *ir.Block) {
	if blk == nil {
		return
	}
	for _, in := range blk.Instr {
		g.genInstr(in)
	}
	g.genTerm(blk.Term)
}

// materializePhisInto writes the value flowing from the current block
// into every phi destination of target, via MSTORE at the phi's memory
// slot. This is done on the predecessor edge, before the jump/branch that
// leaves this block, so a join with several predecessors receives the
// right value no matter which block the final layout places before it.
func (g *blockGen) materializePhisInto(target ir.BlockID) {
	blk := g.fl.fn.Block(target)
	for _, phi := range blk.Phis {
		v, ok := phi.SourceFor(g.blockID)
		if !ok {
			g.diags.Errorf(diag.CodeUnresolvedPhi, nil, "phi for temp %%%d in block %d has no source from predecessor %d", phi.Dest, target, g.blockID)
			continue
		}
		off := g.resolveTemp(phi.Dest)
		g.loadValue(v)
		g.e.pushUint(uint64(off), brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)
	}
}

func (g *blockGen) genTerm(t *ir.Terminator) {
	if t == nil {
		return
	}
	switch t.Kind {
	case ir.TermJump:
		g.materializePhisInto(t.Target)
		if g.fallsThroughTo(t.Target) {
			return
		}
		g.e.pushJumpTarget(g.fl.blockIndex[t.Target])
		g.e.emit(opJUMP)
		g.e.popN(1)

	case ir.TermBranch:
		// Both successors may have phis. Each edge's writes must land
		// before control actually leaves along that edge: the true
		// edge's writes go before the JUMPI (since taking it skips
		// everything after), the false edge's go in the fallthrough
		// path before its own JUMP.
		g.materializePhisInto(t.TrueTarget)
		trueIdx := g.fl.blockIndex[t.TrueTarget]
		g.loadValue(t.Cond)
		g.e.pushJumpTarget(trueIdx)
		g.e.emit(opJUMPI)
		g.e.popN(2)
		g.materializePhisInto(t.FalseTarget)
		if g.fallsThroughTo(t.FalseTarget) {
			return
		}
		g.e.pushJumpTarget(g.fl.blockIndex[t.FalseTarget])
		g.e.emit(opJUMP)
		g.e.popN(1)

	case ir.TermReturn:
		if g.fl.topLevel {
			if !t.HasValue {
				if g.fl.lastInModule && g.fl.blockIndex[g.blockID] == len(g.fl.order)-1 {
					// Falling off the end of the code stops the VM
					// implicitly; for a constructor body it falls through
					// into the deployment stub appended right after.
					return
				}
				g.e.emit(opSTOP)
				return
			}
			g.genReturnValue(t.Value)
			return
		}
		g.genInternalReturn(t)
	}
}

// fallsThroughTo reports whether target is the block emitted immediately
// after the current one, in which case a jump to it is dropped and
// execution falls into its JUMPDEST.
func (g *blockGen) fallsThroughTo(target ir.BlockID) bool {
	return g.fl.blockIndex[target] == g.fl.blockIndex[g.blockID]+1
}

// genInternalReturn lowers a return from an internally callable function:
// the value, if any, is written to the module-wide call-return slot and
// control jumps back to the dynamic return address the caller stored
// before jumping in, rather than halting execution with RETURN/STOP (see
// EmitModule for the calling convention this implements).
func (g *blockGen) genInternalReturn(t *ir.Terminator) {
	if t.HasValue {
		g.loadValue(t.Value)
		g.e.pushUint(globalRetValueSlot, brandOffset)
		g.e.emit(opMSTORE)
		g.e.popN(2)
	}
	g.e.pushUint(globalRetAddrSlot, brandOffset)
	g.e.emit(opMLOAD)
	g.e.popN(1)
	g.e.push(brandOffset)
	g.e.emit(opJUMP)
	g.e.popN(1)
}

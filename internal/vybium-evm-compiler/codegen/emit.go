package codegen

import "github.com/holiman/uint256"

// brand tags the logical role of a value the generator has just pushed
// onto the real operand stack, purely for internal sanity-checking: a
// lowering routine that pops and uses a brand it didn't expect signals a
// bug in this package, not in the compiled program.
type brand string

const (
	brandValue   brand = "value"
	brandOffset  brand = "offset"
	brandSize    brand = "size"
	brandSlot    brand = "slot"
	brandAddress brand = "address"
	brandBool    brand = "bool"
	brandRaw     brand = "raw"
)

// emitter accumulates bytecode for one function and tracks the brands of
// the values currently believed to be on the real stack, strictly for
// assertions — it is reset at the start of every block, since the
// generator never keeps a value live across a block boundary on the
// actual stack (spec §4.6 "Memory, not the stack, crosses blocks").
type emitter struct {
	buf       []byte
	stack     []brand
	patches   []jumpPatch
	nextLabel int
	labelPos  map[int]int
}

// patchKind tells patchJumps how to resolve a jumpPatch's target: either
// a block's index in the final layout order, or a free-standing label
// (used for call/return-address linkage, which targets an arbitrary
// mid-block position rather than a block start).
type patchKind int

const (
	patchBlock patchKind = iota
	patchLabel
	patchCall
)

// jumpPatch records a 2-byte big-endian offset placeholder (after a
// PUSH2) that must be rewritten once positions are known. patchCall
// entries are never resolved by patchJumps: a call target lives in
// another function, whose final offset is only known once the whole
// module's functions are concatenated, so patchJumps hands them back to
// its caller instead (see codegen.CallPatch / EmitModule).
type jumpPatch struct {
	pos    int
	kind   patchKind
	target int
	callee string
}

func newEmitter() *emitter { return &emitter{labelPos: make(map[int]int)} }

// newLabel allocates a fresh label id, to be fixed to a position later via
// markLabel.
func (e *emitter) newLabel() int {
	id := e.nextLabel
	e.nextLabel++
	return id
}

// markLabel records the current position as label id's resolved target.
func (e *emitter) markLabel(id int) {
	e.labelPos[id] = e.pos()
}

// pushLabelTarget emits a PUSH2 placeholder resolved against a label
// rather than a block index.
func (e *emitter) pushLabelTarget(id int) {
	e.emit(opPUSH2)
	patchPos := e.pos()
	e.buf = append(e.buf, 0x00, 0x00)
	e.patches = append(e.patches, jumpPatch{pos: patchPos, kind: patchLabel, target: id})
	e.push(brandOffset)
}

func (e *emitter) pos() int { return len(e.buf) }

func (e *emitter) emit(o op) {
	e.buf = append(e.buf, byte(o))
}

func (e *emitter) push(b brand) { e.stack = append(e.stack, b) }

func (e *emitter) pop() brand {
	if len(e.stack) == 0 {
		return brandRaw
	}
	b := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return b
}

func (e *emitter) popN(n int) {
	for i := 0; i < n; i++ {
		e.pop()
	}
}

// pushWord emits the minimal-width PUSH for w (PUSH0 for zero, otherwise
// the narrowest PUSHn that holds it), per spec §4.6 "minimal PUSH width".
func (e *emitter) pushWord(w *uint256.Int, b brand) {
	if w.IsZero() {
		e.emit(opPUSH0)
		e.push(b)
		return
	}
	raw := w.Bytes()
	e.emit(pushOpFor(len(raw)))
	e.buf = append(e.buf, raw...)
	e.push(b)
}

// pushUint pushes a small non-negative literal, used for internal
// constants (field indices, struct offsets, slot numbers).
func (e *emitter) pushUint(v uint64, b brand) {
	e.pushWord(uint256.NewInt(v), b)
}

// pushJumpTarget emits a PUSH2 placeholder for a jump destination,
// recording a patch to resolve once the target block's JUMPDEST position
// is known. PUSH2 is always used here (rather than the minimal width) so
// every forward reference has a fixed, patchable size before any
// position in the program is final.
func (e *emitter) pushJumpTarget(targetBlockIndex int) {
	e.emit(opPUSH2)
	patchPos := e.pos()
	e.buf = append(e.buf, 0x00, 0x00)
	e.patches = append(e.patches, jumpPatch{pos: patchPos, kind: patchBlock, target: targetBlockIndex})
	e.push(brandOffset)
}

// pushCallTarget emits a PUSH2 placeholder for a call to another
// function's entry point, to be resolved once that function's final
// position within the concatenated runtime is known.
func (e *emitter) pushCallTarget(callee string) {
	e.emit(opPUSH2)
	patchPos := e.pos()
	e.buf = append(e.buf, 0x00, 0x00)
	e.patches = append(e.patches, jumpPatch{pos: patchPos, kind: patchCall, callee: callee})
	e.push(brandOffset)
}

// dupN duplicates the n-th stack item (1-based from top) to the top.
func (e *emitter) dupN(n int) {
	e.emit(dup(n))
	e.push(e.stack[len(e.stack)-n])
}

// swapN swaps the top item with the item n places below it (n = 1 is
// the second-from-top), as SWAPn does.
func (e *emitter) swapN(n int) {
	e.emit(swap(n))
	top := len(e.stack) - 1
	other := top - n
	e.stack[top], e.stack[other] = e.stack[other], e.stack[top]
}

// resetBlockStack clears the tracked stack at a block boundary: nothing
// but memory survives a control-flow edge in this generator.
func (e *emitter) resetBlockStack() {
	e.stack = e.stack[:0]
}

// CallPatch records a call-target PUSH2 placeholder left unresolved by
// patchJumps, relative to the start of the function that emitted it.
type CallPatch struct {
	Pos    int
	Callee string
}

// patchJumps rewrites every recorded in-function PUSH2 placeholder
// (block jumps and labels) with the final byte offset of its target, and
// returns any call-target placeholders for the caller to resolve once
// every function's position in the concatenated runtime is known. base is
// the function's own byte offset within that runtime: VM jump targets are
// absolute, so every block/label position is rebased by it.
func (e *emitter) patchJumps(blockPos []int, base int) []CallPatch {
	var calls []CallPatch
	for _, p := range e.patches {
		switch p.kind {
		case patchCall:
			calls = append(calls, CallPatch{Pos: p.pos, Callee: p.callee})
			continue
		case patchLabel:
			target := base + e.labelPos[p.target]
			e.buf[p.pos] = byte(target >> 8)
			e.buf[p.pos+1] = byte(target)
		default:
			target := base + blockPos[p.target]
			e.buf[p.pos] = byte(target >> 8)
			e.buf[p.pos+1] = byte(target)
		}
	}
	return calls
}

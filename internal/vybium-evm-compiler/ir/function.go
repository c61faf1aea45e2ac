package ir

// Local is a named source-level variable (spec §3.1).
type Local struct {
	ID   LocalID
	Name string
	Type Type
	Loc  *Location
}

// Block is a basic block: phis, straight-line instructions, and exactly
// one terminator (spec §3.1).
type Block struct {
	ID    BlockID
	Phis  []*Phi
	Instr []*Instruction
	Term  *Terminator
	// Preds lists predecessor block ids in the order edges were added
	// (spec §4.2 "Determinism"); never pointers, per the design notes on
	// avoiding cyclic ownership.
	Preds []BlockID
}

// AddPred records pred as a predecessor of this block if not already
// present, preserving insertion order.
func (b *Block) AddPred(pred BlockID) {
	for _, p := range b.Preds {
		if p == pred {
			return
		}
	}
	b.Preds = append(b.Preds, pred)
}

// Function owns its Locals and Blocks; Values within it never reference
// another Function's ids (spec §3.1 "Lifecycles").
type Function struct {
	Name       string
	External   bool
	Locals     []*Local
	ParamCount int
	ReturnType Type
	HasReturn  bool // false for void functions
	Entry      BlockID
	Blocks     map[BlockID]*Block
	// BlockOrder records block-creation order; the block layout planner
	// (§4.5) produces a separate, traversal-based order for emission.
	BlockOrder []BlockID

	nextTemp  TempID
	nextBlock BlockID
}

// NewFunction creates an empty function with no blocks.
func NewFunction(name string) *Function {
	return &Function{
		Name:   name,
		Blocks: make(map[BlockID]*Block),
	}
}

// AddLocal appends a new Local, returning its id. Parameters must be added
// first and ParamCount set to match, per spec §3.1.
func (f *Function) AddLocal(name string, t Type, loc *Location) LocalID {
	id := LocalID(len(f.Locals))
	f.Locals = append(f.Locals, &Local{ID: id, Name: name, Type: t, Loc: loc})
	return id
}

// Local looks up a local by id.
func (f *Function) Local(id LocalID) *Local {
	if int(id) < 0 || int(id) >= len(f.Locals) {
		return nil
	}
	return f.Locals[id]
}

// NewBlock allocates a fresh block id and registers an empty Block.
func (f *Function) NewBlock() BlockID {
	id := f.nextBlock
	f.nextBlock++
	f.Blocks[id] = &Block{ID: id}
	f.BlockOrder = append(f.BlockOrder, id)
	return id
}

// Block looks up a block by id.
func (f *Function) Block(id BlockID) *Block {
	return f.Blocks[id]
}

// NewTemp allocates a fresh SSA temp id of the given type. Every temp id
// is the destination of exactly one instruction or phi (spec §8 property
// 1); callers must not reuse the returned id as a destination twice.
func (f *Function) NewTemp(t Type) TempID {
	id := f.nextTemp
	f.nextTemp++
	return id
}

// TempCount returns the number of temps allocated so far, used by passes
// that size per-temp arrays/maps.
func (f *Function) TempCount() int {
	return int(f.nextTemp)
}

// AddEdge links pred -> succ: succ gains pred as a predecessor. Callers
// build the CFG by calling this whenever they attach a terminator whose
// targets include succ.
func (f *Function) AddEdge(pred, succ BlockID) {
	if b := f.Block(succ); b != nil {
		b.AddPred(pred)
	}
}

// SetTerminator installs term as b's terminator and wires predecessor
// edges for every target it names.
func (f *Function) SetTerminator(b BlockID, term *Terminator) {
	blk := f.Block(b)
	blk.Term = term
	for _, target := range term.Targets() {
		f.AddEdge(b, target)
	}
}

// AddInstr appends an instruction to block b.
func (f *Function) AddInstr(b BlockID, in *Instruction) {
	blk := f.Block(b)
	blk.Instr = append(blk.Instr, in)
}

// AddPhi appends a phi to block b.
func (f *Function) AddPhi(b BlockID, p *Phi) {
	blk := f.Block(b)
	blk.Phis = append(blk.Phis, p)
}

package codegen

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/liveness"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/memplan"
)

// Module-wide memory cells used by the internal calling convention
// (genCall / genInternalReturn): a single in-flight call's return value
// and return address, plus the base and per-function stride of the
// static region each function's spills and locals are packed into, kept
// far enough apart that the largest allowed spill count (1000 temps,
// spec §4.4 "Failures") never runs two functions' regions together.
const (
	globalRetValueSlot = 0x80
	globalRetAddrSlot  = 0xa0
	functionRegionBase = 0xc0
	functionRegionSize = 0x10000
)

// ModuleResult is the output of lowering an entire ir.Module: the
// concatenated runtime (the module's "main" entry followed by every
// other named function, so internal calls resolve to in-range jump
// targets) and the full deployment bytecode produced by Wrap, which is
// present for every module (with zero constructor bytes when the module
// declares no constructor).
type ModuleResult struct {
	Runtime []byte
	Create  []byte
}

// EmitModule lowers every function in mod and links them into one
// runtime blob, then wraps it with a deployment prefix whether or not
// mod.Create is present (spec §4.6.6). "main" is emitted first, at byte offset 0, since
// it is the function the VM begins executing at; every other named
// function is only reachable via an internal call from it (or
// transitively), so it is placed wherever is convenient and patched in
// by name once every function's final position is known.
func EmitModule(mod *ir.Module) (*ModuleResult, *diag.List) {
	diags := &diag.List{}

	var order []*ir.Function
	if mod.Main != nil {
		order = append(order, mod.Main)
	} else {
		diags.Errorf(diag.CodeInternal, nil, "module %q has no main function", mod.Name)
	}
	for _, name := range mod.FunctionOrder {
		fn := mod.Functions[name]
		if fn == nil || fn == mod.Main {
			continue
		}
		order = append(order, fn)
	}

	infos := make(map[string]*funcInfo, len(order))
	for i, fn := range order {
		live := liveness.Analyze(fn)
		base := functionRegionBase + i*functionRegionSize
		plan, d := memplan.PlanAt(fn, live, base)
		diags.Merge(d)
		infos[fn.Name] = &funcInfo{fn: fn, plan: plan}
	}

	var runtime []byte
	funcStart := make(map[string]int, len(order))
	type pendingCall struct {
		globalPos int
		callee    string
	}
	var pending []pendingCall

	// The runtime heap begins above every function's static region, so a
	// dynamic allocation in one function can never land inside another's
	// spill space.
	heapBase := functionRegionBase + len(order)*functionRegionSize

	for i, fn := range order {
		info := infos[fn.Name]
		start := len(runtime)
		code, _, calls, d := Generate(fn, info.plan, GenOptions{
			TopLevel:     i == 0,
			LastInModule: i == len(order)-1,
			HeapBase:     heapBase,
			BaseOffset:   start,
			Fns:          infos,
		})
		diags.Merge(d)
		funcStart[fn.Name] = start
		for _, c := range calls {
			pending = append(pending, pendingCall{globalPos: start + c.Pos, callee: c.Callee})
		}
		runtime = append(runtime, code...)
	}

	for _, c := range pending {
		target, ok := funcStart[c.callee]
		if !ok {
			diags.Errorf(diag.CodeJumpTargetMissing, nil, "call to unresolved function %q", c.callee)
			continue
		}
		runtime[c.globalPos] = byte(target >> 8)
		runtime[c.globalPos+1] = byte(target)
	}

	result := &ModuleResult{Runtime: runtime}

	var createCode []byte
	if mod.Create != nil {
		live := liveness.Analyze(mod.Create)
		plan, d := memplan.PlanAt(mod.Create, live, memplan.StaticBase)
		diags.Merge(d)
		code, _, calls, d2 := Generate(mod.Create, plan, GenOptions{TopLevel: true, LastInModule: true})
		diags.Merge(d2)
		if len(calls) > 0 {
			diags.Errorf(diag.CodeUnsupportedInstr, nil, "constructor calls to named functions are not supported")
		}
		createCode = code
	}
	result.Create = Wrap(createCode, runtime)

	return result, diags
}

// Wrap composes the deployment bytecode: createCode ‖ stub ‖ runtime,
// where the stub pushes [runtime_length, runtime_offset, 0], CODECOPYs
// the runtime into memory, then RETURNs it (spec §4.6.6). runtime_offset
// is createCode's length plus the stub's own length, which itself depends
// on the PUSH widths chosen for those two immediates — so the stub is
// rebuilt against a length guess until the guess and the rebuilt result
// agree.
func Wrap(createCode, runtime []byte) []byte {
	stubLen := 0
	var stub []byte
	for {
		offset := len(createCode) + stubLen
		stub = buildStub(len(runtime), offset)
		if len(stub) == stubLen {
			break
		}
		stubLen = len(stub)
	}

	out := make([]byte, 0, len(createCode)+len(stub)+len(runtime))
	out = append(out, createCode...)
	out = append(out, stub...)
	out = append(out, runtime...)
	return out
}

func buildStub(runtimeLen, runtimeOffset int) []byte {
	e := newEmitter()
	e.pushUint(uint64(runtimeLen), brandSize)
	e.pushUint(uint64(runtimeOffset), brandOffset)
	e.pushUint(0, brandOffset)
	e.emit(opCODECOPY)
	e.popN(3)
	e.pushUint(uint64(runtimeLen), brandSize)
	e.pushUint(0, brandOffset)
	e.emit(opRETURN)
	e.popN(2)
	return e.buf
}

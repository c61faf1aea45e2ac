// Package optimize implements the pluggable fixed-point IR optimizer
// spec.md treats as an external collaborator with a fixed contract
// (optimizer.level 0-3, JSON/structural fixed point at level >= 2,
// monotonically non-increasing instruction count). Every optimization is a
// Pass, func(*ir.Module, *diag.List) bool, that rewrites the module in
// place and reports whether it changed anything; Run composes them by
// level.
package optimize

import (
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// Pass rewrites mod in place and reports whether it changed anything.
type Pass func(mod *ir.Module, diags *diag.List) bool

// maxFixedPointIterations bounds level 2/3's re-run loop: a driver bug that
// never converges must not hang the compiler.
const maxFixedPointIterations = 64

// Run applies the optimizations for level (0-3) to mod and returns the
// accumulated diagnostics. Level 0 is a no-op. Levels 1 runs its pass set
// once; levels 2 and 3 re-run their (larger) pass sets until StructuralHash
// stops changing or the iteration cap is hit (spec §9 "Optimizer fixed
// point").
func Run(mod *ir.Module, level int) (*ir.Module, *diag.List) {
	diags := &diag.List{}
	if level <= 0 {
		return mod, diags
	}

	passes := passesForLevel(level)

	if level == 1 {
		for _, p := range passes {
			p(mod, diags)
		}
		return mod, diags
	}

	prevHash := ir.StructuralHash(mod)
	for i := 0; i < maxFixedPointIterations; i++ {
		for _, p := range passes {
			p(mod, diags)
		}
		h := ir.StructuralHash(mod)
		if h == prevHash {
			break
		}
		prevHash = h
	}
	return mod, diags
}

func passesForLevel(level int) []Pass {
	passes := []Pass{ConstantFold, ConstantPropagate, DeadCodeElim}
	if level >= 2 {
		passes = append(passes, CommonSubexpressionElim, JumpOptimize)
	}
	if level >= 3 {
		passes = append(passes, BlockMerge, ReturnMerge)
	}
	return passes
}

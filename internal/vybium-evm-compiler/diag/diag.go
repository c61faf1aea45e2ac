// Package diag provides the diagnostic taxonomy shared by every pass
// (spec §7 "Error Handling Design"). Passes accumulate diagnostics rather
// than short-circuiting, so multiple problems can surface from one run;
// a pass only fails when it cannot construct partial output at all.
package diag

import (
	"fmt"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/ir"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Code is a stable identifier for a diagnostic kind (spec §7 taxonomy).
type Code string

const (
	CodeUnknownIdent        Code = "E_UNKNOWN_IDENT"
	CodeUnknownType         Code = "E_UNKNOWN_TYPE"
	CodeInvalidLValue       Code = "E_INVALID_LVALUE"
	CodeMissingReturn       Code = "E_MISSING_RETURN"
	CodeStorageThroughLocal Code = "E_STORAGE_THROUGH_LOCAL"
	CodeUnsupportedExpr     Code = "E_UNSUPPORTED_EXPR"
	CodeAllocationFailed    Code = "E_ALLOC_FAILED"
	CodeInvalidLayout       Code = "E_INVALID_LAYOUT"
	CodeUnresolvedPhi       Code = "E_UNRESOLVED_PHI"
	CodeUnallocatedMemory   Code = "E_UNALLOCATED_MEMORY"
	CodeUnsupportedInstr    Code = "W_UNSUPPORTED_INSTR"
	CodeSliceOfStorage      Code = "W_SLICE_OF_STORAGE"
	CodeJumpTargetMissing   Code = "E_JUMP_TARGET_MISSING"
	CodeUninitializedLocal  Code = "W_UNINITIALIZED_LOCAL"
	CodeInternal            Code = "E_INTERNAL"
)

// Diagnostic is one reported problem, optionally located in source.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Location *ir.Location
	Message  string
}

func (d Diagnostic) String() string {
	if d.Location != nil {
		return fmt.Sprintf("%s[%s] %d:%d: %s", d.Severity, d.Code, d.Location.Line, d.Location.Col, d.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", d.Severity, d.Code, d.Message)
}

// List is an append-only diagnostic collection. A pass's output never
// aliases its input's list; each pass returns a fresh List (spec §5
// "Shared resources").
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
}

// Errorf appends an Error-severity diagnostic built from a format string.
func (l *List) Errorf(code Code, loc *ir.Location, format string, args ...interface{}) {
	l.Add(Diagnostic{Severity: Error, Code: code, Location: loc, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a Warning-severity diagnostic built from a format string.
func (l *List) Warnf(code Code, loc *ir.Location, format string, args ...interface{}) {
	l.Add(Diagnostic{Severity: Warning, Code: code, Location: loc, Message: fmt.Sprintf(format, args...)})
}

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (l *List) HasErrors() bool {
	for _, d := range l.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Items returns every accumulated diagnostic, in the order they were
// added.
func (l *List) Items() []Diagnostic {
	return l.items
}

// Merge appends every diagnostic from other onto l, preserving order,
// used by the driver to aggregate diagnostics across passes (spec §7
// "Propagation").
func (l *List) Merge(other *List) {
	if other == nil {
		return
	}
	l.items = append(l.items, other.items...)
}

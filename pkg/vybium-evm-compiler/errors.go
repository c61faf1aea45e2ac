package vybiumevmcompiler

import (
	"fmt"

	"github.com/vybium/vybium-evm-compiler/internal/vybium-evm-compiler/diag"
)

// ErrorCode represents a Vybium EVM compiler error code.
type ErrorCode int

const (
	// ErrUnknown represents an unknown error.
	ErrUnknown ErrorCode = iota

	// ErrInvalidOptions represents an invalid Options error.
	ErrInvalidOptions

	// ErrBuildFailed represents an IR-builder failure (spec §7 "IR build
	// errors").
	ErrBuildFailed

	// ErrMemoryPlanFailed represents a memory-planning failure (spec §7
	// "Memory-planning errors").
	ErrMemoryPlanFailed

	// ErrCodeGenFailed represents a code-generation failure (spec §7
	// "Code-generation errors").
	ErrCodeGenFailed

	// ErrInternal represents an invariant violation caught by a later
	// pass (spec §7 "Internal errors").
	ErrInternal
)

// CompileError is the error type Compile returns on failure: it wraps the
// accumulated diagnostic list behind a Code/Message pair plus the usual
// Error/Unwrap/Is trio, so callers can match on Code the way they would
// match a sentinel error.
type CompileError struct {
	Code        ErrorCode
	Message     string
	Diagnostics *diag.List
}

// Error returns the error message, including the first few diagnostics
// for context.
func (e *CompileError) Error() string {
	if e.Diagnostics == nil || len(e.Diagnostics.Items()) == 0 {
		return fmt.Sprintf("vybium-evm-compiler error [%d]: %s", e.Code, e.Message)
	}
	items := e.Diagnostics.Items()
	return fmt.Sprintf("vybium-evm-compiler error [%d]: %s (%d diagnostic(s), first: %s)",
		e.Code, e.Message, len(items), items[0])
}

// Unwrap exposes the underlying diagnostic list's first error, if any, so
// errors.Is/errors.As chains can reach it.
func (e *CompileError) Unwrap() error {
	if e.Diagnostics == nil {
		return nil
	}
	for _, d := range e.Diagnostics.Items() {
		if d.Severity == diag.Error {
			return fmt.Errorf("%s", d.String())
		}
	}
	return nil
}

// Is reports whether target is a *CompileError with the same Code.
func (e *CompileError) Is(target error) bool {
	t, ok := target.(*CompileError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

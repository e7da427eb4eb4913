// Package errors provides standardized error messaging for the finalizer
// core: the builder (including stitching) and the byte-code instruction
// decoder return a *StandardError (or wrap one) instead of an ad hoc
// string; other packages such as regalloc and config return their own
// error types or fmt errors. This lets the builder classify and surface
// the first error without cascading diagnostics (see the propagation
// policy: first error wins, downstream diagnostics are suppressed).
package errors

import (
	"fmt"
	"runtime"
)

// ErrorCategory groups errors the way the finalizer's callers need to
// react to them: an IR-validation failure discards the in-progress
// compilation outright, an allocation failure still yields partial JIT
// metadata with isSpill=true, and so on.
type ErrorCategory string

const (
	CategoryIR        ErrorCategory = "IR"        // malformed declaration, operand, or instruction
	CategoryBytecode  ErrorCategory = "BYTECODE"  // byte-code version mismatch, truncated stream, unknown opcode
	CategoryBuilder   ErrorCategory = "BUILDER"   // builder misuse: append after finalize, double compile, etc.
	CategoryAlloc     ErrorCategory = "ALLOC"     // register allocation could not place a live range
	CategorySpill     ErrorCategory = "SPILL"     // spill manager could not materialize a rewrite
	CategoryStitching ErrorCategory = "STITCHING" // function stitching / un-stitching invariant violation
)

// StandardError is the one error shape every core package returns.
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]any
	Caller   string
}

// Error implements the error interface.
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// NewStandardError creates a new standardized error, capturing the
// immediate caller for diagnosability without a stack trace.
func NewStandardError(category ErrorCategory, code, message string, context map[string]any) *StandardError {
	pc, _, _, ok := runtime.Caller(1)

	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// UnknownOpcode reports a byte-code opcode byte with no entry in the wire
// opcode table.
func UnknownOpcode(opcode byte, bytePos int) *StandardError {
	return NewStandardError(CategoryBytecode, "UNKNOWN_OPCODE",
		fmt.Sprintf("unknown opcode 0x%02x at byte position %d", opcode, bytePos),
		map[string]any{"opcode": opcode, "bytePos": bytePos})
}

// VersionMismatch reports an unsupported (major, minor) byte-code header.
func VersionMismatch(major, minor uint8) *StandardError {
	return NewStandardError(CategoryBytecode, "VERSION_MISMATCH",
		fmt.Sprintf("unsupported vISA byte-code version %d.%d", major, minor),
		map[string]any{"major": major, "minor": minor})
}

// UndefinedVariable reports a reference to a declaration id the builder
// never created.
func UndefinedVariable(id uint32) *StandardError {
	return NewStandardError(CategoryIR, "UNDEFINED_VARIABLE",
		fmt.Sprintf("reference to undefined declaration id %d", id),
		map[string]any{"declId": id})
}

// TypeMismatch reports an operand whose scalar type is incompatible with
// its instruction's opcode.
func TypeMismatch(opcode string, operandType string) *StandardError {
	return NewStandardError(CategoryIR, "TYPE_MISMATCH",
		fmt.Sprintf("operand type %s incompatible with opcode %s", operandType, opcode),
		map[string]any{"opcode": opcode, "operandType": operandType})
}

// BuilderMisuse reports an API call that is invalid given the builder's
// current state (Building / Finalized / EmittingBinary).
func BuilderMisuse(operation, state string) *StandardError {
	return NewStandardError(CategoryBuilder, "BUILDER_MISUSE",
		fmt.Sprintf("operation %q invalid in builder state %s", operation, state),
		map[string]any{"operation": operation, "state": state})
}

// InsufficientPhysicalRegisters reports a register-allocation failure
// that survived every spill iteration.
func InsufficientPhysicalRegisters(kernel string, stillSpilled []string) *StandardError {
	return NewStandardError(CategoryAlloc, "INSUFFICIENT_PHYSICAL_REGISTERS",
		fmt.Sprintf("insufficient physical registers for kernel %s", kernel),
		map[string]any{"kernel": kernel, "stillSpilled": stillSpilled})
}

// AbortOnSpillThreshold reports an early compilation abort triggered by
// the reference-weighted spill ratio exceeding the configured fraction.
func AbortOnSpillThreshold(kernel string, ratio, threshold float64) *StandardError {
	return NewStandardError(CategoryAlloc, "ABORT_ON_SPILL_THRESHOLD",
		fmt.Sprintf("kernel %s exceeded abort-on-spill threshold (%.3f > %.3f)", kernel, ratio, threshold),
		map[string]any{"kernel": kernel, "ratio": ratio, "threshold": threshold})
}

// StitchingInvariant reports a violated stitching invariant (§4.1):
// entry/exit edge multiplicities, GRF-count mismatch across participants.
func StitchingInvariant(detail string) *StandardError {
	return NewStandardError(CategoryStitching, "STITCHING_INVARIANT", detail, nil)
}

// Package vmerrors collects the sentinel errors used across the VM,
// generalizing the teacher's pkg/bitnet/errors table of package-level
// sentinel values from tensor/bitlinear errors to bytecode/dispatch
// errors, plus the two structured error kinds spec.md §7 requires:
// RtError (recoverable at VM top level) and BugError (a bug indicator
// that should never occur for well-formed bytecode).
package vmerrors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	// Decode / encoding
	ErrIllegalOpcode      = errors.New("vm: illegal opcode")
	ErrDecodeOutOfBounds  = errors.New("vm: decode read past end of buffer")
	ErrUnknownTokenKind   = errors.New("vm: unknown token kind for operand position")
	ErrUnsupportedMnemonic = errors.New("vm: unsupported opcode mnemonic")

	// Shape / type
	ErrShapeMismatch    = errors.New("vm: shape mismatch")
	ErrInvalidShape     = errors.New("vm: invalid shape")
	ErrDTypeMismatch    = errors.New("vm: element type mismatch")
	ErrInvalidReshape   = errors.New("vm: reshape changes element count")
	ErrInvalidTranspose = errors.New("vm: invalid transpose order")

	// Slot table / signals
	ErrSlotNotFound    = errors.New("vm: slot not found")
	ErrEmptySignalQueue = errors.New("vm: pop from empty readiness signal queue")
	ErrSignalAlreadyFired = errors.New("vm: readiness signal already fired")

	// Backend / dispatch
	ErrUnsupportedOperation = errors.New("vm: backend does not support this operation")
	ErrUnknownBackendTag    = errors.New("vm: unknown executor backend tag")
	ErrNoAffinityExecutor   = errors.New("vm: no executor available for requested affinity")

	// Interpreter
	ErrNotRunning = errors.New("vm: interpreter is not in a runnable state")
)

// RtError is the fatal, recoverable-at-top-level error kind from
// spec.md §7: it names the opcode and slot involved and wraps a cause
// sentinel, following the teacher's InterpreterImpl.ExecuteInstruction
// practice of wrapping errors with the opcode/destination in context
// ("[%s]: ExecuteInstructionBlock: ... error: %v").
type RtError struct {
	Op    string
	Slot  int
	Cause error
}

func (e *RtError) Error() string {
	if e.Slot >= 0 {
		return e.Op + ": slot " + itoa(e.Slot) + ": " + e.Cause.Error()
	}
	return e.Op + ": " + e.Cause.Error()
}

func (e *RtError) Unwrap() error { return e.Cause }

// NewRtError builds an RtError for an opcode/slot pair. cause is
// annotated with a stack trace via pkg/errors.WithStack so a top-level
// recovery handler can print where the condition actually occurred,
// not just the sentinel's static message.
func NewRtError(op string, slot int, cause error) *RtError {
	return &RtError{Op: op, Slot: slot, Cause: pkgerrors.WithStack(cause)}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// BugError signals a condition that must never happen for
// well-formed bytecode (spec.md §7's "assertions"): an unsupported
// token-in-position combination, popping an empty signal queue where
// one is required, or a binary-op dtype mismatch. Callers panic with a
// *BugError rather than returning it, mirroring the spec's description
// of these as process-aborting conditions rather than user-triggerable
// runtime errors.
type BugError struct {
	Msg   string
	Cause error
}

func (e *BugError) Error() string {
	if e.Cause != nil {
		return "vm bug: " + e.Msg + ": " + e.Cause.Error()
	}
	return "vm bug: " + e.Msg
}

func (e *BugError) Unwrap() error { return e.Cause }

// Bug panics with a *BugError built from msg and an optional cause,
// stack-annotated the same way NewRtError annotates cause.
func Bug(msg string, cause error) {
	if cause != nil {
		cause = pkgerrors.WithStack(cause)
	}
	panic(&BugError{Msg: msg, Cause: cause})
}

package executor

import (
	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/token"
)

// Backend is the operation interface every executor kernel set
// implements (spec.md §4.4): unary / binary / ternary compute plus a
// DMA shape-update. It generalizes the teacher's
// primitive_types.Primitive (Name() string, Execute(args) (any,
// error)) into four typed methods plus the NewWithTypeID/Init
// lifecycle spec.md §6 requires of an executor backend.
type Backend interface {
	// TypeID reports the tag this backend instance was constructed
	// with (its device index, or NoAffinity for a tag-wide instance).
	TypeID() uint8

	// Init prepares the backend for dispatch (e.g. warms any backing
	// engine). Called once before the backend is registered with a
	// Pool.
	Init() error

	Unary(op token.Opcode, in *tensor.Tensor, extra int32) (*tensor.Tensor, error)
	Binary(op token.Opcode, lhs, rhs *tensor.Tensor) (*tensor.Tensor, error)
	Ternary(op token.Opcode, a, b, c *tensor.Tensor) (*tensor.Tensor, error)
	DMA(op token.Opcode, in *tensor.Tensor, newShape []int) (*tensor.Tensor, error)
}

// Constructor builds a Backend instance bound to tag (spec.md §6's
// device index, 0..254, or NoAffinity for an instance that answers
// any-affinity dispatch).
type Constructor func(tag uint8) Backend

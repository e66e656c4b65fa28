// Package executor implements the dispatcher + executor pool of
// spec.md §4.4: typed operation messages routed to a pool of backend
// executors, each a tagged variant over kernel sets (CPU, GPU, mock).
package executor

import (
	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/tensorslot"
	"github.com/crtlang/crt/internal/token"
)

// NoAffinity routes a message to any executor of the matching backend
// tag rather than a pinned instance.
const NoAffinity = token.AnyDevice

// Result is a kernel's outcome, returned directly by Pool.Unary and
// Pool.Binary for UnaryCompute and BinaryCompute requests.
type Result struct {
	Out *tensor.Tensor
	Err error
}

// UnaryCompute is a blocking unary request: Pool.Unary runs it
// synchronously against the pool's default backend and returns its
// Result directly (no reply channel — the caller is already blocked).
type UnaryCompute struct {
	Op    token.Opcode
	In    *tensor.Tensor
	Extra int32 // window size, etc., where the opcode needs a scalar parameter
}

// BinaryCompute is a blocking binary request, the two-input analogue
// of UnaryCompute.
type BinaryCompute struct {
	Op  token.Opcode
	Lhs *tensor.Tensor
	Rhs *tensor.Tensor
}

// NonRetUnary is a non-blocking unary request: it waits on InReady,
// writes its result into Out in place, then calls Reply. Reply closes
// over the destination slot rather than carrying a fixed slice of
// signals, so it wakes whatever the slot's live roster holds at
// completion time, including signals a consumer allocated on demand
// after this message was already dispatched.
type NonRetUnary struct {
	Op       token.Opcode
	In       *tensor.Tensor
	Out      *tensor.Tensor
	Extra    int32
	InReady  *tensorslot.Signal
	Reply    func()
	Affinity uint8
}

// NonRetBinary is the two-input analogue of NonRetUnary.
type NonRetBinary struct {
	Op       token.Opcode
	Lhs      *tensor.Tensor
	Rhs      *tensor.Tensor
	Out      *tensor.Tensor
	LhsReady *tensorslot.Signal
	RhsReady *tensorslot.Signal
	Reply    func()
	Affinity uint8
}

// NonRetTernary is the three-input analogue (convadd, gemm).
type NonRetTernary struct {
	Op       token.Opcode
	A, B, C  *tensor.Tensor
	Out      *tensor.Tensor
	AReady   *tensorslot.Signal
	BReady   *tensorslot.Signal
	CReady   *tensorslot.Signal
	Reply    func()
	Affinity uint8
}

// DMAOperation is a non-blocking shape-update message: reshape or
// transpose, performed as either an in-place rewrite or a copy.
type DMAOperation struct {
	Op       token.Opcode
	In       *tensor.Tensor
	Out      *tensor.Tensor
	NewShape []int
	InReady  *tensorslot.Signal
	Reply    func()
	Affinity uint8
}

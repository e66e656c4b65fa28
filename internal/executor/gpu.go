package executor

import (
	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/token"
)

func init() {
	Register("gpu", func(tag uint8) Backend { return &GPU{tag: tag, fallback: &CPU{tag: tag}} })
}

// GPU is a specialization-constant-driven shim standing in for real
// shader dispatch. No GPU driver is in scope here (spec.md §1 treats
// concrete numeric kernels as a black box), so GPU depends on an
// internal CPU backend for actual numeric results — the same "thin
// wrapper, swap the body later" shape as the pack's Metal engine
// wrapping a CPU standard engine as its initial backing store, with
// the GPU-specific methods reserved for a future native kernel.
//
// SpecializationConstant is threaded through so a future native
// implementation can select its shader variant the way spec.md §4.4
// describes, without the interpreter or dispatcher changing at all.
type GPU struct {
	tag      uint8
	fallback *CPU
}

func (g *GPU) TypeID() uint8 { return g.tag }

func (g *GPU) Init() error { return g.fallback.Init() }

func (g *GPU) Unary(op token.Opcode, in *tensor.Tensor, extra int32) (*tensor.Tensor, error) {
	_ = op.SpecializationConstant()
	return g.fallback.Unary(op, in, extra)
}

func (g *GPU) Binary(op token.Opcode, lhs, rhs *tensor.Tensor) (*tensor.Tensor, error) {
	_ = op.SpecializationConstant()
	return g.fallback.Binary(op, lhs, rhs)
}

func (g *GPU) Ternary(op token.Opcode, a, b, c *tensor.Tensor) (*tensor.Tensor, error) {
	return g.fallback.Ternary(op, a, b, c)
}

func (g *GPU) DMA(op token.Opcode, in *tensor.Tensor, newShape []int) (*tensor.Tensor, error) {
	return g.fallback.DMA(op, in, newShape)
}

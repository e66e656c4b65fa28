package executor

import (
	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/token"
)

func init() {
	Register("mock", func(tag uint8) Backend { return &Mock{tag: tag} })
}

// Mock is a fixed-output backend for tests: every kernel returns a
// tensor of the requested shape filled with a constant, regardless of
// which opcode was dispatched. It generalizes the teacher's pattern of
// trivial stub primitives (a primitive whose Execute ignores its
// arguments and returns a canned value) used across the unit tests.
type Mock struct {
	tag  uint8
	Fill float64
}

func (m *Mock) TypeID() uint8 { return m.tag }

func (m *Mock) Init() error { return nil }

func (m *Mock) Unary(op token.Opcode, in *tensor.Tensor, extra int32) (*tensor.Tensor, error) {
	out := tensor.New(in.DType(), in.Shape())
	out.Fill(m.Fill)
	return out, nil
}

func (m *Mock) Binary(op token.Opcode, lhs, rhs *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(lhs.DType(), lhs.Shape())
	out.Fill(m.Fill)
	return out, nil
}

func (m *Mock) Ternary(op token.Opcode, a, b, c *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(a.DType(), a.Shape())
	out.Fill(m.Fill)
	return out, nil
}

func (m *Mock) DMA(op token.Opcode, in *tensor.Tensor, newShape []int) (*tensor.Tensor, error) {
	out := tensor.New(in.DType(), newShape)
	out.Fill(m.Fill)
	return out, nil
}

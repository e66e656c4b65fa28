// Package vm implements the interpreter state machine of spec.md
// §4.5: the decode/dispatch loop that turns a token.Program into
// executor.Pool messages routed through a tensorslot.SlotTable,
// generalizing the teacher's InterpreterImpl.ExecuteInstruction
// (decode opcode → resolve operands from Slots → call into
// primitive.Get(op.Opcode) → store result in Slots[op.Destination])
// from string-slot/any-value semantics to typed-slot/tensor-handle
// semantics.
package vm

import (
	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/token"
	"github.com/crtlang/crt/internal/vmerrors"
)

// outputShape computes the destination placeholder's dtype and shape
// from an instruction's already-known input shapes, without touching
// any tensor's data — the lazy dispatch loop needs this before the
// actual kernel has run (spec.md §4.5 step 3: "acquire or create a
// placeholder tensor with the expected output shape (computed from
// inputs per §4.4)").
func outputShape(ins *token.Instruction, inputs ...*tensor.Tensor) (tensor.DType, []int, error) {
	switch ins.Op {
	case token.RNGTENSOR:
		return tensor.F32, ins.Operands[0].Shape, nil

	case token.EXP_F32, token.RELU, token.SOFTMAX:
		return inputs[0].DType(), inputs[0].Shape(), nil

	case token.REDUCEMEAN:
		shape := inputs[0].Shape()
		if len(shape) == 0 {
			return 0, nil, vmerrors.ErrInvalidShape
		}
		return inputs[0].DType(), shape[:len(shape)-1], nil

	case token.FLATTEN:
		shape := inputs[0].Shape()
		if len(shape) < 2 {
			return inputs[0].DType(), shape, nil
		}
		rest := 1
		for _, d := range shape[1:] {
			rest *= d
		}
		return inputs[0].DType(), []int{shape[0], rest}, nil

	case token.MAXPOOL:
		shape := inputs[0].Shape()
		window := int(ins.Operands[1].Int32)
		if len(shape) != 2 || window <= 0 {
			return 0, nil, vmerrors.ErrInvalidShape
		}
		return inputs[0].DType(), []int{shape[0] / window, shape[1] / window}, nil

	case token.ADD_I32, token.SUB_I32, token.MUL_I32, token.FLOORDIV_I32,
		token.ADD_F32, token.SUB_F32, token.MUL_F32, token.DIV_F32:
		return inputs[0].DType(), inputs[0].Shape(), nil

	case token.MATMUL_F32:
		lhs, rhs := inputs[0].Shape(), inputs[1].Shape()
		if len(lhs) < 2 || len(rhs) != 2 || lhs[len(lhs)-1] != rhs[0] {
			return 0, nil, vmerrors.ErrShapeMismatch
		}
		m, n := lhs[len(lhs)-2], rhs[1]
		out := append(append([]int(nil), lhs[:len(lhs)-2]...), m, n)
		return tensor.F32, out, nil

	case token.GEMM:
		lhs, rhs := inputs[0].Shape(), inputs[1].Shape()
		if len(lhs) < 2 || len(rhs) != 2 || lhs[len(lhs)-1] != rhs[0] {
			return 0, nil, vmerrors.ErrShapeMismatch
		}
		m, n := lhs[len(lhs)-2], rhs[1]
		out := append(append([]int(nil), lhs[:len(lhs)-2]...), m, n)
		return tensor.F32, out, nil

	case token.CONVADD:
		t, kernel := inputs[0].Shape(), inputs[1].Shape()
		if len(t) != 2 || len(kernel) != 2 {
			return 0, nil, vmerrors.ErrInvalidShape
		}
		oh, ow := t[0]-kernel[0]+1, t[1]-kernel[1]+1
		return tensor.F32, []int{oh, ow}, nil

	case token.RESHAPE:
		return inputs[0].DType(), ins.Operands[1].Shape, nil

	case token.TRANSPOSE:
		shape := inputs[0].Shape()
		order := ins.Operands[1].Shape
		if len(order) != len(shape) {
			return 0, nil, vmerrors.ErrInvalidTranspose
		}
		out := make([]int, len(order))
		for i, axis := range order {
			if axis < 0 || axis >= len(shape) {
				return 0, nil, vmerrors.ErrInvalidTranspose
			}
			out[i] = shape[axis]
		}
		return inputs[0].DType(), out, nil

	default:
		return 0, nil, vmerrors.ErrUnsupportedOperation
	}
}

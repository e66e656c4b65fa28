package executor

import (
	"math/rand/v2"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/token"
	"github.com/crtlang/crt/internal/vmerrors"
)

func init() {
	Register("cpu", func(tag uint8) Backend { return &CPU{tag: tag} })
}

// CPU is the reference backend: every kernel runs against
// internal/tensor's dense, goroutine-parallel implementations. It is
// the backend a freshly constructed VM uses when no affinity is
// requested.
type CPU struct {
	tag uint8
	rng *rand.Rand
}

func (c *CPU) TypeID() uint8 { return c.tag }

func (c *CPU) Init() error {
	c.rng = rand.New(rand.NewPCG(uint64(c.tag)+1, 1))
	return nil
}

func (c *CPU) Unary(op token.Opcode, in *tensor.Tensor, extra int32) (*tensor.Tensor, error) {
	switch op {
	case token.EXP_F32:
		return tensor.Exp(in)
	case token.RELU:
		return tensor.Relu(in)
	case token.SOFTMAX:
		return tensor.Softmax(in)
	case token.REDUCEMEAN:
		return tensor.ReduceMean(in)
	case token.FLATTEN:
		return tensor.Flatten(in)
	case token.MAXPOOL:
		return tensor.MaxPool(in, int(extra))
	case token.RNGTENSOR:
		return tensor.RNGTensor(tensor.Distribution(extra), in.Shape(), c.rng), nil
	default:
		return nil, vmerrors.ErrUnsupportedOperation
	}
}

func (c *CPU) Binary(op token.Opcode, lhs, rhs *tensor.Tensor) (*tensor.Tensor, error) {
	switch op {
	case token.ADD_I32, token.ADD_F32:
		return tensor.Binary(tensor.OpAdd, lhs, rhs)
	case token.SUB_I32, token.SUB_F32:
		return tensor.Binary(tensor.OpSub, lhs, rhs)
	case token.MUL_I32, token.MUL_F32:
		return tensor.Binary(tensor.OpMul, lhs, rhs)
	case token.DIV_F32:
		return tensor.Binary(tensor.OpDiv, lhs, rhs)
	case token.FLOORDIV_I32:
		return tensor.Binary(tensor.OpFloorDiv, lhs, rhs)
	case token.MATMUL_F32:
		return tensor.MatMul(lhs, rhs)
	default:
		return nil, vmerrors.ErrUnsupportedOperation
	}
}

func (c *CPU) Ternary(op token.Opcode, a, b, cc *tensor.Tensor) (*tensor.Tensor, error) {
	switch op {
	case token.CONVADD:
		return tensor.ConvAdd(a, b, cc)
	case token.GEMM:
		return tensor.Gemm(a, b, cc, 1, 1)
	default:
		return nil, vmerrors.ErrUnsupportedOperation
	}
}

func (c *CPU) DMA(op token.Opcode, in *tensor.Tensor, newShape []int) (*tensor.Tensor, error) {
	switch op {
	case token.RESHAPE:
		if err := in.ReshapeInPlace(newShape); err != nil {
			return nil, err
		}
		return in, nil
	case token.TRANSPOSE:
		return in.Transpose(newShape)
	default:
		return nil, vmerrors.ErrUnsupportedOperation
	}
}

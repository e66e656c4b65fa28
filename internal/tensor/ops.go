package tensor

import (
	"math"
	"runtime"
	"sync"

	"github.com/crtlang/crt/internal/vmerrors"
)

// BinaryOp names the arithmetic performed by an elementwise binary
// kernel. OpAdd..OpDiv (0..3) line up with the GPU specialization
// constants of spec.md §4.4 (0=add, 1=sub, 2=mul, 3=div); OpFloorDiv
// is 4 here, whereas FLOORDIV_I32's specialization constant reuses
// div's 3 and 4 is matmul's (see token's opcode table).
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
)

// Binary performs an elementwise binary operation. Per spec.md §4.4,
// "Elementwise binary: output shape equals left operand shape; a
// mismatched right operand is a fatal error (no broadcasting)."
func Binary(op BinaryOp, lhs, rhs *Tensor) (*Tensor, error) {
	lhs.mu.RLock()
	rhs.mu.RLock()
	defer lhs.mu.RUnlock()
	defer rhs.mu.RUnlock()

	if lhs.dtype != rhs.dtype {
		return nil, vmerrors.ErrDTypeMismatch
	}
	if !EqualShape(lhs.shape, rhs.shape) {
		return nil, vmerrors.ErrShapeMismatch
	}

	out := New(lhs.dtype, lhs.shape)
	switch lhs.dtype {
	case I32:
		for i := range lhs.i32 {
			out.i32[i] = applyI32(op, lhs.i32[i], rhs.i32[i])
		}
	case I64:
		for i := range lhs.i64 {
			out.i64[i] = applyI64(op, lhs.i64[i], rhs.i64[i])
		}
	case F32:
		for i := range lhs.f32 {
			out.f32[i] = applyF32(op, lhs.f32[i], rhs.f32[i])
		}
	}
	return out, nil
}

func applyI32(op BinaryOp, a, b int32) int32 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpFloorDiv:
		return floorDivI32(a, b)
	default:
		vmerrors.Bug("unsupported i32 binary op", vmerrors.ErrUnsupportedOperation)
		return 0
	}
}

func floorDivI32(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func applyI64(op BinaryOp, a, b int64) int64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpFloorDiv:
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q
	default:
		vmerrors.Bug("unsupported i64 binary op", vmerrors.ErrUnsupportedOperation)
		return 0
	}
}

func applyF32(op BinaryOp, a, b float32) float32 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	default:
		vmerrors.Bug("unsupported f32 binary op", vmerrors.ErrUnsupportedOperation)
		return 0
	}
}

// MatMul implements spec.md §4.4's matrix multiply: left [...,m,k] ×
// right [k,n] = [...,m,n], parallelised across output rows the way
// the teacher's Tensor.MatMul splits work across runtime.NumCPU
// goroutines.
func MatMul(lhs, rhs *Tensor) (*Tensor, error) {
	lhs.mu.RLock()
	rhs.mu.RLock()
	defer lhs.mu.RUnlock()
	defer rhs.mu.RUnlock()

	if lhs.dtype != F32 || rhs.dtype != F32 {
		return nil, vmerrors.ErrDTypeMismatch
	}
	if len(lhs.shape) < 2 || len(rhs.shape) != 2 {
		return nil, vmerrors.ErrInvalidShape
	}
	k := lhs.shape[len(lhs.shape)-1]
	if k != rhs.shape[0] {
		return nil, vmerrors.ErrShapeMismatch
	}
	n := rhs.shape[1]
	m := lhs.shape[len(lhs.shape)-2]

	batch := 1
	for _, d := range lhs.shape[:len(lhs.shape)-2] {
		batch *= d
	}

	outShape := append(append([]int(nil), lhs.shape[:len(lhs.shape)-2]...), m, n)
	out := New(F32, outShape)

	numWorkers := runtime.NumCPU()
	if numWorkers < 1 {
		numWorkers = 1
	}
	rows := batch * m
	chunk := (rows + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < rows; start += chunk {
		end := start + chunk
		if end > rows {
			end = rows
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for r := start; r < end; r++ {
				b := r / m
				i := r % m
				lhsBase := b*m*k + i*k
				outBase := b*m*n + i*n
				for j := 0; j < n; j++ {
					var sum float32
					for x := 0; x < k; x++ {
						sum += lhs.f32[lhsBase+x] * rhs.f32[x*n+j]
					}
					out.f32[outBase+j] = sum
				}
			}
		}(start, end)
	}
	wg.Wait()

	return out, nil
}

// unaryF32 applies fn elementwise to an f32 tensor, returning a new
// tensor of the same shape (spec.md's Exp and the building block for
// Relu/Softmax below).
func unaryF32(t *Tensor, fn func(float32) float32) (*Tensor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dtype != F32 {
		return nil, vmerrors.ErrDTypeMismatch
	}
	out := New(F32, t.shape)
	for i, v := range t.f32 {
		out.f32[i] = fn(v)
	}
	return out, nil
}

// Exp computes elementwise e^x (crt.exp.f32).
func Exp(t *Tensor) (*Tensor, error) {
	return unaryF32(t, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Relu computes elementwise max(0, x).
func Relu(t *Tensor) (*Tensor, error) {
	return unaryF32(t, func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	})
}

// Softmax applies softmax along the last axis, generalizing the
// teacher's Tensor.Softmax (numerically-stable max-subtraction,
// per-row normalisation) from an int8 ternary output to float32.
func Softmax(t *Tensor) (*Tensor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dtype != F32 {
		return nil, vmerrors.ErrDTypeMismatch
	}
	if len(t.shape) == 0 {
		return nil, vmerrors.ErrInvalidShape
	}
	axis := len(t.shape) - 1
	width := t.shape[axis]
	out := New(F32, t.shape)
	rows := numElements(t.shape) / width

	for r := 0; r < rows; r++ {
		base := r * width
		var maxVal float32 = t.f32[base]
		for k := 1; k < width; k++ {
			if t.f32[base+k] > maxVal {
				maxVal = t.f32[base+k]
			}
		}
		var sum float32
		for k := 0; k < width; k++ {
			e := float32(math.Exp(float64(t.f32[base+k] - maxVal)))
			out.f32[base+k] = e
			sum += e
		}
		for k := 0; k < width; k++ {
			out.f32[base+k] /= sum
		}
	}
	return out, nil
}

// ReduceMean reduces the last axis by averaging (crt.reducemean).
func ReduceMean(t *Tensor) (*Tensor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dtype != F32 {
		return nil, vmerrors.ErrDTypeMismatch
	}
	if len(t.shape) == 0 {
		return nil, vmerrors.ErrInvalidShape
	}
	axis := len(t.shape) - 1
	width := t.shape[axis]
	outShape := append([]int(nil), t.shape[:axis]...)
	out := New(F32, outShape)
	rows := numElements(t.shape) / width

	for r := 0; r < rows; r++ {
		base := r * width
		var sum float32
		for k := 0; k < width; k++ {
			sum += t.f32[base+k]
		}
		out.f32[r] = sum / float32(width)
	}
	return out, nil
}

// Flatten collapses every dimension but the first into one
// (crt.flatten); it is a pure reshape and shares that op's invariant.
func Flatten(t *Tensor) (*Tensor, error) {
	shape := t.Shape()
	if len(shape) < 2 {
		return t.Reshape(shape)
	}
	rest := 1
	for _, d := range shape[1:] {
		rest *= d
	}
	return t.Reshape([]int{shape[0], rest})
}

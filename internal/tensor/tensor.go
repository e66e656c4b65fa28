// Package tensor implements the dense, typed tensor value of spec.md
// §3: a data vector, an element type, and a shape, stored behind a
// shared-ownership, interior-mutable handle so that a single tensor
// may be read by several pending operations and mutated in place by
// DMA-style shape changes.
//
// The type generalizes the teacher's pkg/bitnet/tensor.Tensor (a
// fixed-int8, mutex-guarded, shape+stride array) from one ternary
// element type to the closed {i32, i64, f32} set required here, and
// from "close clears the tensor" lifecycle to "shared handle, dropped
// by the slot table" lifecycle (spec.md §3's Lifecycle paragraph).
package tensor

import (
	"sync"

	"github.com/crtlang/crt/internal/vmerrors"
)

// Tensor is a dense, row-major, typed array. The zero value is not
// useful; construct with New or one of the typed constructors.
//
// A Tensor is meant to be shared by pointer: the slot table's
// get_tensor "clones the shared handle" by returning the same *Tensor,
// not a data copy (spec.md §4.3). Reads take mu.RLock; DMA-style
// in-place shape updates take mu.Lock, matching §5's "DMA acquires an
// exclusive lock" resolution of the open design question in §9.
type Tensor struct {
	mu    sync.RWMutex
	dtype DType
	shape []int

	i32 []int32
	i64 []int64
	f32 []float32
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// New allocates a zero-filled tensor of the given dtype and shape.
func New(dtype DType, shape []int) *Tensor {
	shapeCopy := append([]int(nil), shape...)
	n := numElements(shapeCopy)
	t := &Tensor{dtype: dtype, shape: shapeCopy}
	switch dtype {
	case I32:
		t.i32 = make([]int32, n)
	case I64:
		t.i64 = make([]int64, n)
	case F32:
		t.f32 = make([]float32, n)
	}
	return t
}

// NewI32 builds an i32 tensor from literal data.
func NewI32(data []int32, shape []int) *Tensor {
	t := New(I32, shape)
	copy(t.i32, data)
	return t
}

// NewI64 builds an i64 tensor from literal data.
func NewI64(data []int64, shape []int) *Tensor {
	t := New(I64, shape)
	copy(t.i64, data)
	return t
}

// NewF32 builds an f32 tensor from literal data.
func NewF32(data []float32, shape []int) *Tensor {
	t := New(F32, shape)
	copy(t.f32, data)
	return t
}

// DType returns the tensor's element type.
func (t *Tensor) DType() DType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dtype
}

// Shape returns a copy of the tensor's dimensions. The caller may
// freely mutate the returned slice.
func (t *Tensor) Shape() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int, len(t.shape))
	copy(out, t.shape)
	return out
}

// Len returns the element count.
func (t *Tensor) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return numElements(t.shape)
}

// I32 returns a copy of the underlying i32 data. Panics (bug) if the
// tensor is not of dtype I32 — callers must check DType first, the
// same discipline the teacher's binary-op primitives use before
// touching typed payloads.
func (t *Tensor) I32() []int32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dtype != I32 {
		vmerrors.Bug("I32() called on non-i32 tensor", vmerrors.ErrDTypeMismatch)
	}
	out := make([]int32, len(t.i32))
	copy(out, t.i32)
	return out
}

// I64 returns a copy of the underlying i64 data.
func (t *Tensor) I64() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dtype != I64 {
		vmerrors.Bug("I64() called on non-i64 tensor", vmerrors.ErrDTypeMismatch)
	}
	out := make([]int64, len(t.i64))
	copy(out, t.i64)
	return out
}

// F32 returns a copy of the underlying f32 data.
func (t *Tensor) F32() []float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dtype != F32 {
		vmerrors.Bug("F32() called on non-f32 tensor", vmerrors.ErrDTypeMismatch)
	}
	out := make([]float32, len(t.f32))
	copy(out, t.f32)
	return out
}

// Fill overwrites every element with the value converted to the
// tensor's dtype. Used by SVALUETENSOR literals (spec.md §4.1) and by
// the mock backend's fixed outputs.
func (t *Tensor) Fill(value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.dtype {
	case I32:
		v := int32(value)
		for i := range t.i32 {
			t.i32[i] = v
		}
	case I64:
		v := int64(value)
		for i := range t.i64 {
			t.i64[i] = v
		}
	case F32:
		v := float32(value)
		for i := range t.f32 {
			t.f32[i] = v
		}
	}
}

// WriteInto overwrites t's contents with src's, keeping t's identity
// (pointer) the same. Used to fill a placeholder tensor with the
// result of a dispatched compute message without requiring downstream
// readers to re-fetch a new handle — mirroring the "DMA may perform ...
// an in-place shape rewrite" allowance of spec.md §4.4.
func (t *Tensor) WriteInto(src *Tensor) {
	src.mu.RLock()
	dtype := src.dtype
	shape := append([]int(nil), src.shape...)
	var i32 []int32
	var i64 []int64
	var f32 []float32
	switch dtype {
	case I32:
		i32 = append([]int32(nil), src.i32...)
	case I64:
		i64 = append([]int64(nil), src.i64...)
	case F32:
		f32 = append([]float32(nil), src.f32...)
	}
	src.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dtype = dtype
	t.shape = shape
	t.i32 = i32
	t.i64 = i64
	t.f32 = f32
}

// ReshapeInPlace rewrites t's shape without touching its backing
// data, verifying the element count is preserved (spec.md §3's
// invariant and §8's RESHAPE testable property). This is the DMA
// shape-update window: callers must hold the destination slot's
// readiness discipline around this call (spec.md §4.3/§5).
func (t *Tensor) ReshapeInPlace(newShape []int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if numElements(newShape) != numElements(t.shape) {
		return vmerrors.ErrInvalidReshape
	}
	t.shape = append([]int(nil), newShape...)
	return nil
}

// Reshape returns a new tensor with the same data but a different
// shape, leaving t untouched. Flatten is built on it; the RESHAPE
// opcode's DMA path uses ReshapeInPlace instead.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if numElements(newShape) != numElements(t.shape) {
		return nil, vmerrors.ErrInvalidReshape
	}
	out := New(t.dtype, newShape)
	switch t.dtype {
	case I32:
		copy(out.i32, t.i32)
	case I64:
		copy(out.i64, t.i64)
	case F32:
		copy(out.f32, t.f32)
	}
	return out, nil
}

// Transpose returns a new tensor with axes permuted per order,
// generalizing the teacher's Tensor.Transpose (validate order length,
// reject duplicate/out-of-range axes, rebuild via index remapping).
func (t *Tensor) Transpose(order []int) (*Tensor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(order) != len(t.shape) {
		return nil, vmerrors.ErrInvalidTranspose
	}
	seen := make(map[int]bool, len(order))
	newShape := make([]int, len(order))
	for i, axis := range order {
		if axis < 0 || axis >= len(t.shape) || seen[axis] {
			return nil, vmerrors.ErrInvalidTranspose
		}
		seen[axis] = true
		newShape[i] = t.shape[axis]
	}

	oldStride := strideOf(t.shape)
	newStride := strideOf(newShape)
	n := numElements(t.shape)
	out := New(t.dtype, newShape)

	for linear := 0; linear < n; linear++ {
		oldIdx := indicesOf(linear, t.shape, oldStride)
		newIdx := make([]int, len(order))
		for i, axis := range order {
			newIdx[i] = oldIdx[axis]
		}
		newLinear := linearOf(newIdx, newStride)
		switch t.dtype {
		case I32:
			out.i32[newLinear] = t.i32[linear]
		case I64:
			out.i64[newLinear] = t.i64[linear]
		case F32:
			out.f32[newLinear] = t.f32[linear]
		}
	}
	return out, nil
}

func strideOf(shape []int) []int {
	stride := make([]int, len(shape))
	size := 1
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = size
		size *= shape[i]
	}
	return stride
}

func indicesOf(linear int, shape, stride []int) []int {
	idx := make([]int, len(shape))
	for i, s := range stride {
		idx[i] = (linear / s) % shape[i]
	}
	return idx
}

func linearOf(idx, stride []int) int {
	n := 0
	for i, s := range stride {
		n += idx[i] * s
	}
	return n
}

// EqualShape reports whether a and b name the same dimensions.
func EqualShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

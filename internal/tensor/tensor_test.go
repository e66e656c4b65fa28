package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndShape(t *testing.T) {
	tn := NewF32([]float32{1, 2, 3, 4}, []int{2, 2})
	assert.Equal(t, F32, tn.DType())
	assert.Equal(t, []int{2, 2}, tn.Shape())
	assert.Equal(t, 4, tn.Len())
	assert.Equal(t, []float32{1, 2, 3, 4}, tn.F32())
}

func TestBinaryAddF32(t *testing.T) {
	a := NewF32([]float32{1.1, 2}, []int{2})
	b := NewF32([]float32{2.2, 3}, []int{2})
	out, err := Binary(OpAdd, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 3.3, out.F32()[0], 1e-5)
	assert.InDelta(t, 5.0, out.F32()[1], 1e-5)
}

func TestBinaryShapeMismatch(t *testing.T) {
	a := NewF32([]float32{1}, []int{1})
	b := NewF32([]float32{1, 2}, []int{2})
	_, err := Binary(OpAdd, a, b)
	assert.Error(t, err)
}

func TestMatMulSeedScenario(t *testing.T) {
	// Seed scenario 3: [2,3] x [3,2] of ones-like data -> [2,2].
	a := NewF32([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
	b := NewF32([]float32{1, 1, 1, 1, 1, 1}, []int{3, 2})
	out, err := MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, out.Shape())
	assert.Equal(t, []float32{6, 6, 15, 15}, out.F32())
}

func TestReshapeInPlacePreservesData(t *testing.T) {
	tn := New(F32, []int{34, 82, 3})
	tn.Fill(1.0)
	require.NoError(t, tn.ReshapeInPlace([]int{102, 82, 1}))
	assert.Equal(t, []int{102, 82, 1}, tn.Shape())
	for _, v := range tn.F32() {
		assert.Equal(t, float32(1.0), v)
	}
}

func TestReshapeInPlaceRejectsElementCountChange(t *testing.T) {
	tn := New(F32, []int{2, 2})
	assert.Error(t, tn.ReshapeInPlace([]int{3, 2}))
}

func TestTranspose(t *testing.T) {
	tn := NewF32([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
	out, err := tn.Transpose([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.F32())
}

func TestExpAndRelu(t *testing.T) {
	ones := New(F32, []int{2, 2})
	ones.Fill(1.0)
	exped, err := Exp(ones)
	require.NoError(t, err)
	for _, v := range exped.F32() {
		assert.InDelta(t, 2.71828, v, 1e-3)
	}

	neg := NewF32([]float32{-1, 2, -3, 4}, []int{4})
	relu, err := Relu(neg)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2, 0, 4}, relu.F32())
}

func TestAddOnes(t *testing.T) {
	// Seed scenario 4: two [34,82,3] ones tensors added -> all twos.
	shape := []int{34, 82, 3}
	a := New(F32, shape)
	a.Fill(1.0)
	b := New(F32, shape)
	b.Fill(1.0)
	out, err := Binary(OpAdd, a, b)
	require.NoError(t, err)
	assert.Equal(t, 8364, out.Len())
	for _, v := range out.F32() {
		assert.Equal(t, float32(2.0), v)
	}
}

func TestFloorDivI32(t *testing.T) {
	a := NewI32([]int32{-7, 7}, []int{2})
	b := NewI32([]int32{2, 2}, []int{2})
	out, err := Binary(OpFloorDiv, a, b)
	require.NoError(t, err)
	assert.Equal(t, []int32{-4, 3}, out.I32())
}

package token

import (
	"testing"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, ins *Instruction) *Instruction {
	t.Helper()
	buf := ins.Encode(nil)
	mod := &Module{Device: AnyDevice, Instructions: []*Instruction{ins}}
	prog := &Program{Modules: []*Module{mod}}
	progBuf := prog.ToBytes()
	require.Equal(t, append([]byte{byte(DEVAT), AnyDevice}, buf...), progBuf)

	decoded, err := DecodeProgram(progBuf)
	require.NoError(t, err)
	require.Len(t, decoded.Modules, 1)
	require.Len(t, decoded.Modules[0].Instructions, 1)
	return decoded.Modules[0].Instructions[0]
}

func TestRoundTripAddI32(t *testing.T) {
	ins := NewInstruction(ADD_I32, 3, SlotToken(1), SlotToken(2))
	got := roundTrip(t, ins)
	assert.Equal(t, ADD_I32, got.Op)
	assert.Equal(t, 3, got.Dest)
	assert.Equal(t, []int{1, 2}, got.OperandSlots())
}

func TestRoundTripAddF32WithResultType(t *testing.T) {
	rt := RankedTypeToken(tensor.F32, []int{34, 82, 3})
	ins := &Instruction{
		Op:          ADD_F32,
		Dest:        5,
		Operands:    [4]Token{SlotToken(1), SlotToken(2)},
		NumOperands: 2,
		ResultType:  &rt,
	}
	got := roundTrip(t, ins)
	assert.Equal(t, ADD_F32, got.Op)
	require.NotNil(t, got.ResultType)
	assert.Equal(t, tensor.F32, got.ResultType.DType)
	assert.Equal(t, []int{34, 82, 3}, got.ResultType.Shape)
}

func TestRoundTripConstF32(t *testing.T) {
	rt := RankedTypeToken(tensor.F32, []int{1})
	ins := &Instruction{
		Op:          CONST_F32,
		Dest:        0,
		Operands:    [4]Token{Float32Token(13.5)},
		NumOperands: 1,
		ResultType:  &rt,
	}
	got := roundTrip(t, ins)
	assert.InDelta(t, float32(13.5), got.Operands[0].Float32, 1e-6)
}

func TestRoundTripConstTensorF32(t *testing.T) {
	rt := RankedTypeToken(tensor.F32, []int{2, 3})
	ins := &Instruction{
		Op:          CONSTTENSOR,
		Dest:        0,
		Operands:    [4]Token{DenseF32Token([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})},
		NumOperands: 1,
		ResultType:  &rt,
	}
	got := roundTrip(t, ins)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, got.Operands[0].DenseF32)
	assert.Equal(t, []int{2, 3}, got.Operands[0].Shape)
}

func TestRoundTripConstTensorI32(t *testing.T) {
	rt := RankedTypeToken(tensor.I32, []int{3})
	ins := &Instruction{
		Op:          CONSTTENSOR,
		Dest:        0,
		Operands:    [4]Token{DenseI32Token([]int32{-1, 0, 7}, []int{3})},
		NumOperands: 1,
		ResultType:  &rt,
	}
	got := roundTrip(t, ins)
	assert.Equal(t, tensor.I32, got.Operands[0].DType)
	assert.Equal(t, []int32{-1, 0, 7}, got.Operands[0].DenseI32)
}

func TestRoundTripReshape(t *testing.T) {
	ins := NewInstruction(RESHAPE, 1, SlotToken(0), ShapeToken([]int{102, 82, 1}))
	got := roundTrip(t, ins)
	assert.Equal(t, []int{102, 82, 1}, got.Operands[1].Shape)
}

func TestRoundTripSValueTensor(t *testing.T) {
	ins := NewInstruction(SVALUETENSOR, 0, SValueTensorToken(1.0, []int{34, 82, 3}))
	got := roundTrip(t, ins)
	assert.InDelta(t, float32(1.0), got.Operands[0].Generator, 1e-6)
	assert.Equal(t, []int{34, 82, 3}, got.Operands[0].Shape)
}

func TestRoundTripRNGTensor(t *testing.T) {
	ins := NewInstruction(RNGTENSOR, 0, RNGTensorToken(tensor.Normal, []int{4, 4}))
	got := roundTrip(t, ins)
	assert.Equal(t, tensor.Normal, got.Operands[0].Dist)
	assert.Equal(t, []int{4, 4}, got.Operands[0].Shape)
}

func TestDecodeProgramMultipleModules(t *testing.T) {
	m1 := &Module{Device: AnyDevice, Instructions: []*Instruction{
		NewInstruction(ADD_I32, 0, SlotToken(0), SlotToken(1)),
		NewInstruction(RETV, 0, SlotToken(0)),
	}}
	m2 := &Module{Device: 2, Instructions: []*Instruction{
		NewInstruction(HALT, 0),
	}}
	prog := &Program{Modules: []*Module{m1, m2}}
	buf := prog.ToBytes()

	decoded, err := DecodeProgram(buf)
	require.NoError(t, err)
	require.Len(t, decoded.Modules, 2)
	assert.Equal(t, uint8(AnyDevice), decoded.Modules[0].Device)
	assert.Equal(t, uint8(2), decoded.Modules[1].Device)
	assert.Len(t, decoded.Modules[0].Instructions, 2)
	assert.Equal(t, RETV, decoded.Modules[0].Instructions[1].Op)
	assert.Equal(t, HALT, decoded.Modules[1].Instructions[0].Op)
}

func TestDecodeOutOfBounds(t *testing.T) {
	_, err := DecodeProgram([]byte{byte(ADD_I32), 0, 1})
	assert.Error(t, err)
}

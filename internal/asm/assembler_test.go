package asm

import (
	"testing"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleSeedScenario1ConstI32(t *testing.T) {
	prog, err := Assemble(`%0 = crt.literal.const.i32! 13 : i32`)
	require.NoError(t, err)
	require.Len(t, prog.Modules, 1)
	require.Len(t, prog.Modules[0].Instructions, 1)

	ins := prog.Modules[0].Instructions[0]
	assert.Equal(t, token.CONST_I32, ins.Op)
	assert.Equal(t, 0, ins.Dest)
	assert.Equal(t, int32(13), ins.Operands[0].Int32)
	require.NotNil(t, ins.ResultType)
	assert.Equal(t, tensor.I32, ins.ResultType.DType)
}

func TestAssembleSeedScenario2AddF32(t *testing.T) {
	prog, err := Assemble(`%1 = crt.literal.const.f32! 1.1 ; %2 = crt.literal.const.f32! 2.2 ; %3 = crt.add.f32! %1, %2 : f32`)
	require.NoError(t, err)
	require.Len(t, prog.Modules[0].Instructions, 3)

	add := prog.Modules[0].Instructions[2]
	assert.Equal(t, token.ADD_F32, add.Op)
	assert.Equal(t, 3, add.Dest)
	assert.Equal(t, 2, add.NumOperands)
	assert.Equal(t, 1, add.Operands[0].Slot)
	assert.Equal(t, 2, add.Operands[1].Slot)
}

func TestAssembleSeedScenario3DenseMatmulRetv(t *testing.T) {
	src := `
%1 = dense<[1,2,3,4,5,6], [2,3]>
%2 = dense<[1,1,1,1,1,1], [3,2]>
%3 = crt.matmul.f32! %1, %2 : f32
return %3
`
	prog, err := Assemble(src)
	require.NoError(t, err)
	require.Len(t, prog.Modules, 1)
	require.Len(t, prog.Modules[0].Instructions, 4)

	lhs := prog.Modules[0].Instructions[0]
	assert.Equal(t, token.CONSTTENSOR, lhs.Op)
	assert.Equal(t, tensor.F32, lhs.Operands[0].DType)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, lhs.Operands[0].DenseF32)
	assert.Equal(t, []int{2, 3}, lhs.Operands[0].Shape)

	retv := prog.Modules[0].Instructions[3]
	assert.Equal(t, token.RETV, retv.Op)
	assert.Equal(t, 3, retv.Operands[0].Slot)
}

func TestAssembleSeedScenario4Ones(t *testing.T) {
	prog, err := Assemble(`
%0 = ones<[34 82 3]>
%1 = ones<[34 82 3]>
%2 = crt.add.f32! %0, %1
`)
	require.NoError(t, err)
	o0 := prog.Modules[0].Instructions[0]
	assert.Equal(t, token.SVALUETENSOR, o0.Op)
	assert.Equal(t, float32(1), o0.Operands[0].Generator)
	assert.Equal(t, []int{34, 82, 3}, o0.Operands[0].Shape)
}

func TestAssembleSeedScenario6ReshapeInPlace(t *testing.T) {
	prog, err := Assemble(`
%0 = ones<[34 82 3]>
%0 = crt.reshape! %0, [102 82 1]
return %0
`)
	require.NoError(t, err)
	reshape := prog.Modules[0].Instructions[1]
	assert.Equal(t, token.RESHAPE, reshape.Op)
	assert.Equal(t, 0, reshape.Dest)
	assert.Equal(t, 0, reshape.Operands[0].Slot)
	assert.Equal(t, []int{102, 82, 1}, reshape.Operands[1].Shape)
}

func TestAssembleDevatStartsNewModule(t *testing.T) {
	prog, err := Assemble(`
devat 3
%0 = crt.literal.const.i32! 1 : i32
devat any
%1 = crt.literal.const.i32! 2 : i32
`)
	require.NoError(t, err)
	require.Len(t, prog.Modules, 2)
	assert.Equal(t, uint8(3), prog.Modules[0].Device)
	assert.Equal(t, uint8(token.AnyDevice), prog.Modules[1].Device)
}

func TestAssembleDenseTensorI32Annotation(t *testing.T) {
	prog, err := Assemble(`%0 = dense<[1,2,3], [3]> : i32`)
	require.NoError(t, err)
	ins := prog.Modules[0].Instructions[0]
	assert.Equal(t, tensor.I32, ins.Operands[0].DType)
	assert.Equal(t, []int32{1, 2, 3}, ins.Operands[0].DenseI32)
}

func TestAssembleRNGAndHalt(t *testing.T) {
	prog, err := Assemble(`
%0 = rng<uniform, [2 2]>
halt
`)
	require.NoError(t, err)
	require.Len(t, prog.Modules[0].Instructions, 2)
	assert.Equal(t, token.RNGTENSOR, prog.Modules[0].Instructions[0].Op)
	assert.Equal(t, tensor.Uniform, prog.Modules[0].Instructions[0].Operands[0].Dist)
	assert.Equal(t, token.HALT, prog.Modules[0].Instructions[1].Op)
}

func TestAssembleUnknownMnemonicErrors(t *testing.T) {
	_, err := Assemble(`%0 = crt.nonexistent! %1`)
	assert.Error(t, err)
}

package executor

import (
	"context"
	"testing"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/tensorslot"
	"github.com/crtlang/crt/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuildsCPUBackend(t *testing.T) {
	b, err := NewWithTypeID("cpu", 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), b.TypeID())
}

func TestRegistryUnknownKind(t *testing.T) {
	_, err := NewWithTypeID("tpu", 0)
	assert.Error(t, err)
}

func TestCPUBinaryAdd(t *testing.T) {
	b, err := NewWithTypeID("cpu", 0)
	require.NoError(t, err)
	lhs := tensor.NewF32([]float32{1, 2}, []int{2})
	rhs := tensor.NewF32([]float32{3, 4}, []int{2})
	out, err := b.Binary(token.ADD_F32, lhs, rhs)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 6}, out.F32())
}

func TestGPUFallsBackToCPUResult(t *testing.T) {
	b, err := NewWithTypeID("gpu", 0)
	require.NoError(t, err)
	lhs := tensor.NewF32([]float32{1, 2}, []int{2})
	rhs := tensor.NewF32([]float32{3, 4}, []int{2})
	out, err := b.Binary(token.ADD_F32, lhs, rhs)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 6}, out.F32())
}

func TestMockBackendFixedOutput(t *testing.T) {
	b, err := NewWithTypeID("mock", 0)
	require.NoError(t, err)
	mock := b.(*Mock)
	mock.Fill = 7

	in := tensor.NewF32([]float32{1, 2, 3}, []int{3})
	out, err := b.Unary(token.EXP_F32, in, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 7, 7}, out.F32())
}

func TestPoolBlockingBinary(t *testing.T) {
	cpu, err := NewWithTypeID("cpu", 0)
	require.NoError(t, err)
	pool := NewPool(4, cpu)

	lhs := tensor.NewF32([]float32{1, 1}, []int{2})
	rhs := tensor.NewF32([]float32{2, 2}, []int{2})
	res := pool.Binary(context.Background(), BinaryCompute{Op: token.ADD_F32, Lhs: lhs, Rhs: rhs})
	require.NoError(t, res.Err)
	assert.Equal(t, []float32{3, 3}, res.Out.F32())
}

func TestPoolDispatchNonRetUnaryWaitsForReadiness(t *testing.T) {
	cpu, err := NewWithTypeID("cpu", 0)
	require.NoError(t, err)
	pool := NewPool(4, cpu)

	slots := tensorslot.New()
	slots.PutTensor(0, tensor.NewF32([]float32{1, 2}, []int{2}))
	ready := slots.SetSignals(0, 1)[0]
	out := slots.PutPlaceholder(1, tensor.F32, []int{2})
	slots.SetSignals(1, 1)

	var gotErr error
	pool.DispatchNonRetUnary(context.Background(), NonRetUnary{
		Op:       token.RELU,
		In:       mustGet(t, slots, 0),
		Out:      out,
		InReady:  ready,
		Reply:    func() { slots.FireAll(1) },
		Affinity: NoAffinity,
	}, func(err error) { gotErr = err })

	ready.Fire()
	slots.PopSignal(1).Await()
	require.NoError(t, gotErr)
	assert.Equal(t, []float32{1, 2}, out.F32())
}

func TestPoolDispatchNonRetUnaryOversubscribedSlotDoesNotDeadlock(t *testing.T) {
	cpu, err := NewWithTypeID("cpu", 0)
	require.NoError(t, err)
	pool := NewPool(4, cpu)

	slots := tensorslot.New()
	slots.PutTensor(0, tensor.NewF32([]float32{1, 2}, []int{2}))
	ready := slots.SetSignals(0, 1)[0]
	out := slots.PutPlaceholder(1, tensor.F32, []int{2})
	slots.SetSignals(1, tensorslot.DefaultFanout)

	var gotErr error
	pool.DispatchNonRetUnary(context.Background(), NonRetUnary{
		Op:       token.RELU,
		In:       mustGet(t, slots, 0),
		Out:      out,
		InReady:  ready,
		Reply:    func() { slots.FireAll(1) },
		Affinity: NoAffinity,
	}, func(err error) { gotErr = err })

	// Exhaust the default fan-out, then allocate one more consumer on
	// demand before the producer completes — this signal must still
	// be woken by the in-flight production rather than block forever.
	for i := 0; i < tensorslot.DefaultFanout; i++ {
		slots.PopSignal(1)
	}
	extra := slots.Consumer(1)

	ready.Fire()
	extra.Await()
	require.NoError(t, gotErr)
	assert.Equal(t, []float32{1, 2}, out.F32())
}

func mustGet(t *testing.T, slots *tensorslot.SlotTable, slot int) *tensor.Tensor {
	t.Helper()
	ts, err := slots.GetTensor(slot)
	require.NoError(t, err)
	return ts
}

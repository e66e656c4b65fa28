package tensorslot

import (
	"testing"
	"time"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/vmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGetTensor(t *testing.T) {
	table := New()
	ts := tensor.NewF32([]float32{1, 2, 3}, []int{3})
	table.PutTensor(0, ts)

	got, err := table.GetTensor(0)
	require.NoError(t, err)
	assert.Same(t, ts, got)
}

func TestGetTensorMissing(t *testing.T) {
	table := New()
	_, err := table.GetTensor(5)
	assert.ErrorIs(t, err, vmerrors.ErrSlotNotFound)
}

func TestEnrollReadySignalsPreFired(t *testing.T) {
	table := New()
	table.EnrollReady(0, DefaultFanout)
	for i := 0; i < DefaultFanout; i++ {
		s := table.PopSignal(0)
		s.Await() // must not block
	}
}

func TestSetSignalsRefreshesQueueAndGeneration(t *testing.T) {
	table := New()
	first := table.SetSignals(0, 2)
	assert.Equal(t, 2, table.QueueLen(0))
	assert.Equal(t, int64(1), first[0].Generation())

	second := table.SetSignals(0, 3)
	assert.Equal(t, 3, table.QueueLen(0))
	assert.Equal(t, int64(2), second[0].Generation())
	assert.NotEqual(t, first[0].Generation(), second[0].Generation())
}

func TestPopSignalFIFO(t *testing.T) {
	table := New()
	signals := table.SetSignals(0, 3)
	for _, want := range signals {
		got := table.PopSignal(0)
		assert.Same(t, want, got)
	}
}

func TestPopSignalEmptyQueuePanics(t *testing.T) {
	table := New()
	table.SetSignals(0, 0)
	assert.Panics(t, func() { table.PopSignal(0) })
}

func TestConsumerOnDemandBeyondDefaultFanout(t *testing.T) {
	table := New()
	table.SetSignals(0, DefaultFanout)
	for i := 0; i < DefaultFanout; i++ {
		table.PopSignal(0)
	}
	// a fifth consumer, beyond the reference fan-out, still gets a signal
	extra := table.Consumer(0)
	require.NotNil(t, extra)
	assert.Equal(t, 1, table.QueueLen(0))
	got := table.PopSignal(0)
	assert.Same(t, extra, got)
}

func TestFireAllWakesSignalAllocatedAfterDispatch(t *testing.T) {
	table := New()
	table.SetSignals(0, DefaultFanout)
	for i := 0; i < DefaultFanout; i++ {
		table.PopSignal(0)
	}
	// Consumer is called after the default fan-out is exhausted but
	// before the producer fires — the over-subscription case that
	// used to deadlock because the firing goroutine only saw a
	// snapshot of the queue taken at dispatch time.
	extra := table.Consumer(0)

	fired := make(chan struct{})
	go func() {
		table.FireAll(0)
		close(fired)
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("FireAll did not return")
	}
	extra.Await() // must not block
}

func TestConsumerAfterFireAllReturnsAlreadyFiredSignal(t *testing.T) {
	table := New()
	table.SetSignals(0, DefaultFanout)
	table.FireAll(0)

	// A consumer arriving after production has already completed must
	// get a signal that is ready immediately, not one nothing will
	// ever fire.
	late := table.Consumer(0)
	late.Await() // must not block
}

func TestDropAllExceptRetainsOnlyReturnedSlot(t *testing.T) {
	table := New()
	table.PutTensor(0, tensor.New(tensor.F32, []int{1}))
	table.PutTensor(1, tensor.New(tensor.F32, []int{1}))
	table.PutTensor(2, tensor.New(tensor.F32, []int{1}))

	table.DropAllExcept(1)

	_, err := table.GetTensor(0)
	assert.Error(t, err)
	_, err = table.GetTensor(2)
	assert.Error(t, err)
	_, err = table.GetTensor(1)
	assert.NoError(t, err)
}

func TestReshapeInPlaceRefreshesSignalQueue(t *testing.T) {
	table := New()
	ts := tensor.NewF32(make([]float32, 34*82*3), []int{34, 82, 3})
	table.PutTensor(0, ts)
	table.EnrollReady(0, DefaultFanout)

	require.NoError(t, ts.ReshapeInPlace([]int{102, 82, 1}))
	table.SetSignals(0, DefaultFanout)

	assert.Equal(t, []int{102, 82, 1}, ts.Shape())
	assert.Equal(t, DefaultFanout, table.QueueLen(0))
}

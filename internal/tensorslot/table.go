package tensorslot

import (
	"sync"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/vmerrors"
)

// DefaultFanout is the reference implementation's hardcoded signal
// enrollment count (spec.md §4.3: "the reference implementation uses
// 4"). Kept as the default batch size for enroll_ready so seed-scenario
// programs written against it keep working; slots consumed beyond this
// count fall through to on-demand allocation via Consumer.
const DefaultFanout = 4

type slotEntry struct {
	tensor *tensor.Tensor
	queue  []*Signal // FIFO order consumers pop from

	// roster holds every signal enrolled for the slot's current
	// production generation, including ones allocated on demand by
	// Consumer after dispatch began. FireAll fires this live list
	// rather than a snapshot taken at dispatch time, so a consumer
	// that arrives after the default fan-out is exhausted still gets
	// woken by the production that is already in flight.
	roster []*Signal
	fired  bool

	generation int64
}

// SlotTable is spec.md §3's tensor slot table + readiness graph: a
// mapping from slot number to shared tensor handle, plus a FIFO queue
// of readiness signals per slot. It is guarded by a single mutex,
// generalizing the teacher's primitives package pattern of guarding a
// shared map with one sync.Mutex per registry/session.
type SlotTable struct {
	mu   sync.Mutex
	rows map[int]*slotEntry
}

// New returns an empty slot table.
func New() *SlotTable {
	return &SlotTable{rows: make(map[int]*slotEntry)}
}

func (t *SlotTable) row(slot int) *slotEntry {
	row, ok := t.rows[slot]
	if !ok {
		row = &slotEntry{}
		t.rows[slot] = row
	}
	return row
}

// GetTensor returns the shared handle currently installed at slot, or
// an error if the slot has never been written.
func (t *SlotTable) GetTensor(slot int) (*tensor.Tensor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[slot]
	if !ok || row.tensor == nil {
		return nil, vmerrors.ErrSlotNotFound
	}
	return row.tensor, nil
}

// PutTensor installs ts at slot, dropping whatever handle was
// previously there (spec.md §4.3: "insert or replace; drops the
// previous handle").
func (t *SlotTable) PutTensor(slot int, ts *tensor.Tensor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.row(slot)
	row.tensor = ts
}

// PutPlaceholder installs a zero-initialised tensor of the given
// shape and dtype at slot, to be overwritten once an asynchronous
// operation completes.
func (t *SlotTable) PutPlaceholder(slot int, dtype tensor.DType, shape []int) *tensor.Tensor {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := tensor.New(dtype, shape)
	row := t.row(slot)
	row.tensor = ts
	return ts
}

// GetOrPutPlaceholder returns slot's existing tensor, or installs and
// returns a fresh placeholder if the slot is unwritten (idempotent
// placeholder creation per spec.md §4.3).
func (t *SlotTable) GetOrPutPlaceholder(slot int, dtype tensor.DType, shape []int) *tensor.Tensor {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.row(slot)
	if row.tensor == nil {
		row.tensor = tensor.New(dtype, shape)
	}
	return row.tensor
}

// PopSignal removes and returns one readiness signal from slot's
// queue. Popping an empty queue is a bug, per spec.md §7 and §4.3
// ("panics if empty (bug)").
func (t *SlotTable) PopSignal(slot int) *Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[slot]
	if !ok || len(row.queue) == 0 {
		vmerrors.Bug("pop_signal on empty queue", vmerrors.ErrEmptySignalQueue)
	}
	s := row.queue[0]
	row.queue = row.queue[1:]
	return s
}

// SetSignals replaces slot's signal queue with freshly enrolled
// signals, bumping the slot's generation (spec.md §4.3: "used on
// (re)definition"). The expansion's generation counter lets a stale
// signal from a pre-redefinition generation be detected rather than
// silently reused.
func (t *SlotTable) SetSignals(slot int, n int) []*Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.row(slot)
	row.generation++
	row.fired = false
	queue := make([]*Signal, n)
	for i := range queue {
		queue[i] = newSignal(row.generation)
	}
	row.queue = queue
	row.roster = append([]*Signal(nil), queue...)
	return queue
}

// EnrollReady installs n already-fired signals for a synchronously
// produced slot (e.g. a constant literal), so downstream consumers
// never block on it.
func (t *SlotTable) EnrollReady(slot int, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.row(slot)
	row.generation++
	row.fired = true
	row.roster = nil
	queue := make([]*Signal, n)
	for i := range queue {
		queue[i] = firedSignal(row.generation)
	}
	row.queue = queue
}

// Consumer allocates one additional signal for slot at its current
// generation, for on-demand enrollment beyond the fixed default
// fan-out (the expansion resolving spec.md §9's open question about
// over-subscribed slots). If the slot's current production has
// already fired — the result is already sitting in the slot table —
// Consumer returns an already-fired signal so the caller never blocks
// on an event that has passed. Otherwise the new signal is added to
// both the FIFO queue and the live roster FireAll fires from, so it
// still gets woken by the in-flight production.
func (t *SlotTable) Consumer(slot int) *Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.row(slot)
	if row.fired {
		return firedSignal(row.generation)
	}
	s := newSignal(row.generation)
	row.queue = append(row.queue, s)
	row.roster = append(row.roster, s)
	return s
}

// FireAll fires every signal currently enrolled in slot's roster —
// the default fan-out plus whatever Consumer added while the
// production was in flight — then marks the generation fired so any
// later Consumer call is satisfied immediately instead of allocating
// a signal nothing will ever fire. This is the single completion
// event a dispatched producer goroutine raises; reading the roster at
// fire time instead of a slice snapshot taken at dispatch time is what
// lets over-subscribed slots (more than DefaultFanout consumers) be
// resolved correctly.
func (t *SlotTable) FireAll(slot int) {
	t.mu.Lock()
	row, ok := t.rows[slot]
	var roster []*Signal
	if ok {
		roster = row.roster
		row.roster = nil
		row.fired = true
	}
	t.mu.Unlock()
	for _, s := range roster {
		s.Fire()
	}
}

// Drop removes slot's tensor handle and signal queue entirely, used
// at module-return time to discard all non-returned slots (spec.md
// §3's "Lifecycle").
func (t *SlotTable) Drop(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, slot)
}

// DropAllExcept drops every slot except keep, matching RETV's
// retention rule.
func (t *SlotTable) DropAllExcept(keep int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for slot := range t.rows {
		if slot != keep {
			delete(t.rows, slot)
		}
	}
}

// QueueLen reports the number of signals remaining in slot's queue,
// fired or not (EnrollReady's signals are queued already fired). The
// interpreter uses it to decide when to allocate via Consumer.
func (t *SlotTable) QueueLen(slot int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[slot]
	if !ok {
		return 0
	}
	return len(row.queue)
}

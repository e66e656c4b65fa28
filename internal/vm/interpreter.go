package vm

import (
	"context"
	"os"

	"github.com/google/uuid"

	"github.com/crtlang/crt/internal/executor"
	"github.com/crtlang/crt/internal/logging"
	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/tensorslot"
	"github.com/crtlang/crt/internal/token"
	"github.com/crtlang/crt/internal/vmconfig"
	"github.com/crtlang/crt/internal/vmerrors"
)

// State is the interpreter's position in spec.md §4.5's state machine.
type State int

const (
	Idle State = iota
	Decoding
	Dispatching
	WaitingOnReturn
	Halted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Decoding:
		return "decoding"
	case Dispatching:
		return "dispatching"
	case WaitingOnReturn:
		return "waiting-on-return"
	case Halted:
		return "halted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// status is the per-instruction result spec.md §7 describes: 0 =
// continue, 1 = halt requested, 2 = module returned.
type status int

const (
	statusContinue status = iota
	statusHalt
	statusReturn
)

// Interpreter drives a token.Program against a SlotTable and an
// executor.Pool, generalizing the teacher's InterpreterImpl from a
// single-threaded string/any VM into the typed, signal-gated tensor VM
// of spec.md §4.5.
type Interpreter struct {
	cfg   vmconfig.Config
	slots *tensorslot.SlotTable
	pool  *executor.Pool
	log   *logging.Logger

	state State

	// affinity is the VM-wide device tag DEVAT sets. spec.md §9 notes
	// the reference implementation never clears this between modules;
	// this field is simply overwritten by each module's own DEVAT
	// prefix rather than reset to a default, matching that behavior.
	affinity uint8

	lastErr error
}

// NewInterpreter builds an interpreter over a fresh slot table, using
// pool for dispatch.
func NewInterpreter(cfg vmconfig.Config, pool *executor.Pool) *Interpreter {
	return &Interpreter{
		cfg:   cfg,
		slots: tensorslot.New(),
		pool:  pool,
		log:   logging.New(os.Stderr, cfg.LogLevel),
		state: Idle,
	}
}

// Slots exposes the interpreter's slot table (e.g. for a REPL's
// "watch" built-in to inspect a live tensor).
func (i *Interpreter) Slots() *tensorslot.SlotTable { return i.slots }

// State reports the interpreter's current state.
func (i *Interpreter) State() State { return i.state }

// Run executes every module of prog in order. It returns the first
// RtError encountered, or nil on a clean HALT or end-of-program. Each
// call is tagged with a fresh run id so concurrent interpreter runs
// sharing one logger stream can be told apart, the way the teacher's
// LogIndent distinguishes nested subroutine frames.
func (i *Interpreter) Run(prog *token.Program) error {
	i.state = Idle
	runID := uuid.New()
	i.log.Infof("run %s: %d module(s)", runID, len(prog.Modules))
	for _, mod := range prog.Modules {
		i.affinity = mod.Device
		halted, err := i.runModule(mod)
		if err != nil {
			i.state = Failed
			i.lastErr = err
			i.log.Errorf("run %s: %v", runID, err)
			return err
		}
		if halted {
			i.state = Halted
			i.log.Infof("run %s: halted", runID)
			return nil
		}
	}
	i.state = Halted
	return nil
}

func (i *Interpreter) runModule(mod *token.Module) (halted bool, err error) {
	for _, ins := range mod.Instructions {
		i.state = Decoding
		st, err := i.exec(ins)
		if err != nil {
			return false, err
		}
		switch st {
		case statusHalt:
			return true, nil
		case statusReturn:
			return false, nil
		}
	}
	return false, nil
}

// exec runs a single instruction, in Eager or Lazy mode per i.cfg.Mode.
func (i *Interpreter) exec(ins *token.Instruction) (status, error) {
	switch ins.Op {
	case token.HALT:
		return statusHalt, nil
	case token.NOOP, token.DEVAT:
		return statusContinue, nil
	case token.ILLEGAL:
		return statusContinue, vmerrors.NewRtError(ins.Op.Mnemonic(), -1, vmerrors.ErrIllegalOpcode)
	case token.RETV:
		return i.execRetv(ins)
	}

	if isLiteral(ins.Op) {
		return statusContinue, i.execLiteral(ins)
	}

	i.state = Dispatching
	if i.cfg.Mode == vmconfig.Eager {
		return statusContinue, i.execEager(ins)
	}
	return statusContinue, i.execLazy(ins)
}

// isLiteral reports whether op is materialized synchronously in
// execLiteral. RNGTENSOR is deliberately excluded: unlike the other
// literals it has a dedicated backend kernel carrying persistent RNG
// state, so it is dispatched through the executor pool like any other
// producing opcode instead of being reconstructed from scratch inline.
func isLiteral(op token.Opcode) bool {
	switch op {
	case token.LOAD, token.CONST_I32, token.CONST_F32, token.CONSTTENSOR,
		token.SVALUETENSOR:
		return true
	default:
		return false
	}
}

// execLiteral materialises a synchronously-produced tensor and
// enrolls already-fired signals for it (spec.md §4.3's enroll_ready).
func (i *Interpreter) execLiteral(ins *token.Instruction) error {
	var ts *tensor.Tensor
	switch ins.Op {
	case token.CONST_I32:
		shape := []int{1}
		if ins.ResultType != nil {
			shape = ins.ResultType.Shape
		}
		ts = tensor.NewI32([]int32{ins.Operands[0].Int32}, shape)
	case token.CONST_F32:
		shape := []int{1}
		if ins.ResultType != nil {
			shape = ins.ResultType.Shape
		}
		ts = tensor.NewF32([]float32{ins.Operands[0].Float32}, shape)
	case token.LOAD:
		ts = tensor.NewI32([]int32{ins.Operands[0].Int32}, []int{1})
	default:
		ts = ins.Operands[0].ToTensor()
	}
	i.slots.PutTensor(ins.Dest, ts)
	i.slots.EnrollReady(ins.Dest, i.cfg.DefaultFanout)
	return nil
}

// execRetv pops one signal for the returned slot and blocks on it,
// the single blocking wait of the whole module (spec.md §4.5).
func (i *Interpreter) execRetv(ins *token.Instruction) (status, error) {
	i.state = WaitingOnReturn
	slot := ins.Operands[0].Slot
	sig := i.popOrAllocate(slot)
	sig.Await()
	i.slots.DropAllExcept(slot)
	return statusReturn, nil
}

// popOrAllocate pops a pre-enrolled signal for slot, or — if the
// fixed fan-out has been exhausted — allocates one on demand
// (resolving spec.md §9's open question about over-subscribed slots).
func (i *Interpreter) popOrAllocate(slot int) *tensorslot.Signal {
	if i.slots.QueueLen(slot) == 0 {
		return i.slots.Consumer(slot)
	}
	return i.slots.PopSignal(slot)
}

// replyFor builds the completion callback a dispatched message fires
// once its kernel has written its result. It closes over the slot
// number rather than a signal slice captured at dispatch time, so
// FireAll reads whatever Consumer has added to the slot's roster in
// the meantime — the fix for spec.md §9's over-subscription case.
func (i *Interpreter) replyFor(slot int) func() {
	return func() { i.slots.FireAll(slot) }
}

func (i *Interpreter) operandTensors(ins *token.Instruction) ([]*tensor.Tensor, error) {
	slots := ins.OperandSlots()
	out := make([]*tensor.Tensor, len(slots))
	for idx, s := range slots {
		ts, err := i.slots.GetTensor(s)
		if err != nil {
			return nil, err
		}
		out[idx] = ts
	}
	return out, nil
}

// execEager dispatches a blocking message and installs its result
// directly, bypassing the readiness-signal queue entirely (spec.md
// §4.5: "Readiness signals are not used for these slots").
func (i *Interpreter) execEager(ins *token.Instruction) error {
	inputs, err := i.operandTensors(ins)
	if err != nil {
		return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, err)
	}

	var out *tensor.Tensor
	switch {
	case ins.Op == token.RNGTENSOR:
		in := tensor.New(tensor.F32, ins.Operands[0].Shape)
		res := i.pool.Unary(context.Background(), executor.UnaryCompute{
			Op: ins.Op, In: in, Extra: int32(ins.Operands[0].Dist),
		})
		out, err = res.Out, res.Err
	case isUnary(ins.Op):
		var extra int32
		if ins.NumOperands > 1 {
			extra = ins.Operands[1].Int32
		}
		res := i.pool.Unary(context.Background(), executor.UnaryCompute{Op: ins.Op, In: inputs[0], Extra: extra})
		out, err = res.Out, res.Err
	case isBinary(ins.Op):
		res := i.pool.Binary(context.Background(), executor.BinaryCompute{Op: ins.Op, Lhs: inputs[0], Rhs: inputs[1]})
		out, err = res.Out, res.Err
	case ins.Op == token.RESHAPE:
		_, shape, serr := outputShape(ins, inputs[0])
		if serr != nil {
			return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, serr)
		}
		if rerr := inputs[0].ReshapeInPlace(shape); rerr != nil {
			return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, rerr)
		}
		out = inputs[0]
	case ins.Op == token.TRANSPOSE:
		out, err = inputs[0].Transpose(ins.Operands[1].Shape)
	case ins.Op == token.CONVADD:
		out, err = i.ternaryCompute(ins, inputs)
	case ins.Op == token.GEMM:
		out, err = i.ternaryCompute(ins, inputs)
	default:
		return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, vmerrors.ErrUnsupportedOperation)
	}
	if err != nil {
		return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, err)
	}
	i.slots.PutTensor(ins.Dest, out)
	return nil
}

// ternaryCompute runs a CONVADD/GEMM kernel synchronously (ternary ops
// have no blocking message type of their own). It builds a fresh "cpu"
// backend tagged with the current affinity and calls it directly; the
// pool's default backend is not used, whatever kind it is.
func (i *Interpreter) ternaryCompute(ins *token.Instruction, inputs []*tensor.Tensor) (*tensor.Tensor, error) {
	var c *tensor.Tensor
	if len(inputs) > 2 {
		c = inputs[2]
	}
	backend, err := executor.NewWithTypeID("cpu", i.affinity)
	if err != nil {
		backend, err = executor.NewWithTypeID("cpu", 0)
		if err != nil {
			return nil, err
		}
	}
	return backend.Ternary(ins.Op, inputs[0], inputs[1], c)
}

func isUnary(op token.Opcode) bool {
	switch op {
	case token.EXP_F32, token.RELU, token.SOFTMAX, token.REDUCEMEAN, token.FLATTEN, token.MAXPOOL:
		return true
	default:
		return false
	}
}

func isBinary(op token.Opcode) bool {
	switch op {
	case token.ADD_I32, token.SUB_I32, token.MUL_I32, token.FLOORDIV_I32,
		token.ADD_F32, token.SUB_F32, token.MUL_F32, token.DIV_F32, token.MATMUL_F32:
		return true
	default:
		return false
	}
}

// execLazy implements spec.md §4.5's five-step lazy dispatch: pop
// input signals, create a destination placeholder, dispatch a
// non-blocking message with a fresh reply batch, and install that
// batch as the destination's new queue.
func (i *Interpreter) execLazy(ins *token.Instruction) error {
	inputs, err := i.operandTensors(ins)
	if err != nil {
		return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, err)
	}
	dtype, shape, err := outputShape(ins, inputs...)
	if err != nil {
		return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, err)
	}

	onError := func(ferr error) {
		i.lastErr = vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, ferr)
	}

	switch {
	case ins.Op == token.RNGTENSOR:
		in := tensor.New(tensor.F32, shape)
		out := i.slots.PutPlaceholder(ins.Dest, dtype, shape)
		i.slots.SetSignals(ins.Dest, i.cfg.DefaultFanout)
		i.pool.DispatchNonRetUnary(context.Background(), executor.NonRetUnary{
			Op: ins.Op, In: in, Out: out, Extra: int32(ins.Operands[0].Dist),
			InReady: tensorslot.Ready(), Reply: i.replyFor(ins.Dest), Affinity: i.affinity,
		}, onError)

	case ins.Op == token.RESHAPE && ins.Dest == ins.Operands[0].Slot:
		sig := i.popOrAllocate(ins.Operands[0].Slot)
		i.slots.SetSignals(ins.Dest, i.cfg.DefaultFanout)
		i.pool.DispatchDMA(context.Background(), executor.DMAOperation{
			Op: ins.Op, In: inputs[0], Out: inputs[0], NewShape: shape,
			InReady: sig, Reply: i.replyFor(ins.Dest), Affinity: i.affinity,
		}, onError)

	case ins.Op == token.RESHAPE || ins.Op == token.TRANSPOSE:
		sig := i.popOrAllocate(ins.Operands[0].Slot)
		out := i.slots.PutPlaceholder(ins.Dest, dtype, shape)
		i.slots.SetSignals(ins.Dest, i.cfg.DefaultFanout)
		i.pool.DispatchDMA(context.Background(), executor.DMAOperation{
			Op: ins.Op, In: inputs[0], Out: out, NewShape: shape,
			InReady: sig, Reply: i.replyFor(ins.Dest), Affinity: i.affinity,
		}, onError)

	case isUnary(ins.Op):
		sig := i.popOrAllocate(ins.Operands[0].Slot)
		out := i.slots.PutPlaceholder(ins.Dest, dtype, shape)
		i.slots.SetSignals(ins.Dest, i.cfg.DefaultFanout)
		var extra int32
		if ins.NumOperands > 1 {
			extra = ins.Operands[1].Int32
		}
		i.pool.DispatchNonRetUnary(context.Background(), executor.NonRetUnary{
			Op: ins.Op, In: inputs[0], Out: out, Extra: extra,
			InReady: sig, Reply: i.replyFor(ins.Dest), Affinity: i.affinity,
		}, onError)

	case isBinary(ins.Op):
		lhsSig := i.popOrAllocate(ins.Operands[0].Slot)
		rhsSig := i.popOrAllocate(ins.Operands[1].Slot)
		out := i.slots.PutPlaceholder(ins.Dest, dtype, shape)
		i.slots.SetSignals(ins.Dest, i.cfg.DefaultFanout)
		i.pool.DispatchNonRetBinary(context.Background(), executor.NonRetBinary{
			Op: ins.Op, Lhs: inputs[0], Rhs: inputs[1], Out: out,
			LhsReady: lhsSig, RhsReady: rhsSig, Reply: i.replyFor(ins.Dest), Affinity: i.affinity,
		}, onError)

	case ins.Op == token.CONVADD || ins.Op == token.GEMM:
		aSig := i.popOrAllocate(ins.Operands[0].Slot)
		bSig := i.popOrAllocate(ins.Operands[1].Slot)
		cSig := i.popOrAllocate(ins.Operands[2].Slot)
		out := i.slots.PutPlaceholder(ins.Dest, dtype, shape)
		i.slots.SetSignals(ins.Dest, i.cfg.DefaultFanout)
		i.pool.DispatchNonRetTernary(context.Background(), executor.NonRetTernary{
			Op: ins.Op, A: inputs[0], B: inputs[1], C: inputs[2], Out: out,
			AReady: aSig, BReady: bSig, CReady: cSig, Reply: i.replyFor(ins.Dest), Affinity: i.affinity,
		}, onError)

	default:
		return vmerrors.NewRtError(ins.Op.Mnemonic(), ins.Dest, vmerrors.ErrUnsupportedOperation)
	}
	return nil
}

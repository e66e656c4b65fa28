package executor

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/crtlang/crt/internal/vmerrors"
)

// Pool is the actor system of spec.md §4.4: a dispatcher that routes
// typed operation messages to backend instances, capping the number
// of concurrently in-flight messages at workers (default 8, per
// spec.md §5). It is built the way the pack's ggml backend loader caps
// concurrent tensor loads with errgroup.SetLimit — here the limit is
// enforced with an explicit semaphore.Weighted so NonRet* dispatches,
// which must outlive the call that issues them, can still be capped
// without an enclosing errgroup.Wait.
type Pool struct {
	sem      *semaphore.Weighted
	def      Backend
	byDevice map[uint8]Backend
}

// NewPool builds a pool capped at workers concurrent in-flight
// messages, with def as the backend used for NoAffinity dispatch.
func NewPool(workers int, def Backend) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(workers)),
		def:      def,
		byDevice: make(map[uint8]Backend),
	}
}

// RegisterDevice pins a backend instance to a concrete device tag, so
// messages with that affinity route to it specifically.
func (p *Pool) RegisterDevice(tag uint8, b Backend) {
	p.byDevice[tag] = b
}

func (p *Pool) pick(affinity uint8) (Backend, error) {
	if affinity == NoAffinity {
		return p.def, nil
	}
	b, ok := p.byDevice[affinity]
	if !ok {
		return nil, vmerrors.ErrNoAffinityExecutor
	}
	return b, nil
}

// Unary runs a blocking UnaryCompute request and returns its result,
// gated by the pool's concurrency cap.
func (p *Pool) Unary(ctx context.Context, msg UnaryCompute) Result {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{Err: err}
	}
	defer p.sem.Release(1)
	out, err := p.def.Unary(msg.Op, msg.In, msg.Extra)
	return Result{Out: out, Err: err}
}

// Binary runs a blocking BinaryCompute request.
func (p *Pool) Binary(ctx context.Context, msg BinaryCompute) Result {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{Err: err}
	}
	defer p.sem.Release(1)
	out, err := p.def.Binary(msg.Op, msg.Lhs, msg.Rhs)
	return Result{Out: out, Err: err}
}

// DispatchNonRetUnary runs msg asynchronously: it waits on InReady,
// writes the kernel's output into Out via WriteInto, then calls
// msg.Reply to wake its destination slot's consumers. onError, if
// non-nil, receives any kernel error (used by the interpreter's
// Failed-state transition); the goroutine is gated by the pool's
// semaphore the same way blocking messages are.
func (p *Pool) DispatchNonRetUnary(ctx context.Context, msg NonRetUnary, onError func(error)) {
	backend, err := p.pick(msg.Affinity)
	if err != nil {
		onError(err)
		return
	}
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			onError(err)
			return
		}
		defer p.sem.Release(1)
		msg.InReady.Await()
		out, err := backend.Unary(msg.Op, msg.In, msg.Extra)
		if err != nil {
			onError(err)
			return
		}
		msg.Out.WriteInto(out)
		msg.Reply()
	}()
}

// DispatchNonRetBinary is the two-input analogue of
// DispatchNonRetUnary.
func (p *Pool) DispatchNonRetBinary(ctx context.Context, msg NonRetBinary, onError func(error)) {
	backend, err := p.pick(msg.Affinity)
	if err != nil {
		onError(err)
		return
	}
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			onError(err)
			return
		}
		defer p.sem.Release(1)
		msg.LhsReady.Await()
		msg.RhsReady.Await()
		out, err := backend.Binary(msg.Op, msg.Lhs, msg.Rhs)
		if err != nil {
			onError(err)
			return
		}
		msg.Out.WriteInto(out)
		msg.Reply()
	}()
}

// DispatchNonRetTernary is the three-input analogue.
func (p *Pool) DispatchNonRetTernary(ctx context.Context, msg NonRetTernary, onError func(error)) {
	backend, err := p.pick(msg.Affinity)
	if err != nil {
		onError(err)
		return
	}
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			onError(err)
			return
		}
		defer p.sem.Release(1)
		msg.AReady.Await()
		msg.BReady.Await()
		msg.CReady.Await()
		out, err := backend.Ternary(msg.Op, msg.A, msg.B, msg.C)
		if err != nil {
			onError(err)
			return
		}
		msg.Out.WriteInto(out)
		msg.Reply()
	}()
}

// DispatchDMA runs a DMAOperation asynchronously.
func (p *Pool) DispatchDMA(ctx context.Context, msg DMAOperation, onError func(error)) {
	backend, err := p.pick(msg.Affinity)
	if err != nil {
		onError(err)
		return
	}
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			onError(err)
			return
		}
		defer p.sem.Release(1)
		msg.InReady.Await()
		out, err := backend.DMA(msg.Op, msg.In, msg.NewShape)
		if err != nil {
			onError(err)
			return
		}
		if out != msg.In {
			msg.Out.WriteInto(out)
		}
		msg.Reply()
	}()
}

// Drain runs fns concurrently, capped by the pool's semaphore, and
// waits for all to complete, returning the first error.
func (p *Pool) Drain(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			if err := p.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.sem.Release(1)
			return fn(gctx)
		})
	}
	return g.Wait()
}

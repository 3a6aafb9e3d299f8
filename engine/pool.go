package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wfengine/wfengine/emit"
)

// RunnerFactory constructs one new RunnerHandle, performing whatever
// asynchronous setup (spawn, ready handshake) a real implementation needs
// before it is safe to admit to the pool.
type RunnerFactory func(ctx context.Context) (RunnerHandle, error)

// RunnerPool is a bounded pool of RunnerHandle slots: min are created
// eagerly, the pool grows lazily up to max on demand, idle runners are
// reused in FIFO order, and acquirers beyond max queue in FIFO order
// until a slot frees up.
//
// Invariant: 0 < min <= size <= max, where size = len(idle) + len(busy)
// + runners Acquire is still creating. Two windows are exceptions: after
// SetMax lowers max below the number of busy runners, size stays above
// max until enough of them are released (Release closes a runner rather
// than idling it while the pool is at or above max); and after Discard,
// size can sit below min until the replacement runner has been created.
type RunnerPool struct {
	mu      sync.Mutex
	factory RunnerFactory
	min     int
	max     int
	emitter emit.Emitter

	idle       []RunnerHandle
	busy       map[RunnerHandle]struct{}
	creating   int
	waiters    []chan acquireResult
	terminated bool
}

type acquireResult struct {
	handle RunnerHandle
	err    error
}

// PoolOption configures a RunnerPool at construction, mirroring the
// engine package's Option pattern for Scheduler.
type PoolOption func(*RunnerPool)

// WithPoolEmitter attaches an observability sink for pool-level events
// (runner discarded, pool terminated). The default is emit.NullEmitter.
func WithPoolEmitter(e emit.Emitter) PoolOption {
	return func(p *RunnerPool) {
		if e != nil {
			p.emitter = e
		}
	}
}

// NewRunnerPool validates 0 < min <= max and eagerly creates min runners.
func NewRunnerPool(min, max int, factory RunnerFactory, opts ...PoolOption) (*RunnerPool, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("engine: invalid pool bounds min=%d max=%d, require 0 < min <= max", min, max)
	}
	p := &RunnerPool{
		factory: factory,
		min:     min,
		max:     max,
		busy:    make(map[RunnerHandle]struct{}),
		emitter: emit.NewNullEmitter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < min; i++ {
		h, err := factory(context.Background())
		if err != nil {
			return nil, fmt.Errorf("engine: creating initial runner %d/%d: %w", i+1, min, err)
		}
		p.idle = append(p.idle, h)
	}
	return p, nil
}

func (p *RunnerPool) size() int {
	return len(p.idle) + len(p.busy) + p.creating
}

// Acquire returns an idle runner if one is available, lazily creates one
// if the pool has not yet reached max, or blocks in FIFO order until a
// runner is released. It returns ErrPoolTerminated immediately once
// Terminate has run.
func (p *RunnerPool) Acquire(ctx context.Context) (RunnerHandle, error) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return nil, ErrPoolTerminated
	}
	if len(p.idle) > 0 {
		h := p.idle[0]
		p.idle = p.idle[1:]
		p.busy[h] = struct{}{}
		stats := Stats{Idle: len(p.idle), Busy: len(p.busy), Pending: len(p.waiters), Min: p.min, Max: p.max}
		p.mu.Unlock()
		p.emitOccupancy(stats)
		return h, nil
	}
	if p.size() < p.max {
		p.creating++
		p.mu.Unlock()
		h, err := p.factory(ctx)
		p.mu.Lock()
		p.creating--
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if p.terminated {
			p.mu.Unlock()
			_ = h.Close()
			return nil, ErrPoolTerminated
		}
		p.busy[h] = struct{}{}
		stats := Stats{Idle: len(p.idle), Busy: len(p.busy), Pending: len(p.waiters), Min: p.min, Max: p.max}
		p.mu.Unlock()
		p.emitOccupancy(stats)
		return h, nil
	}

	ch := make(chan acquireResult, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case res := <-ch:
		return res.handle, res.err
	case <-ctx.Done():
		p.mu.Lock()
		p.removeWaiter(ch)
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// emitOccupancy publishes a pool_occupancy event carrying the snapshot
// taken at the moment of a state transition, so a metrics-aware emitter
// (see metrics.NewEmitter) can track gauges without the pool importing
// the metrics package directly.
func (p *RunnerPool) emitOccupancy(stats Stats) {
	p.emitter.Emit(emit.Event{
		Msg: "pool_occupancy",
		Meta: map[string]interface{}{
			"idle":    stats.Idle,
			"busy":    stats.Busy,
			"pending": stats.Pending,
		},
	})
}

func (p *RunnerPool) removeWaiter(target chan acquireResult) {
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Release returns h to the pool. If a waiter is queued, h is handed
// straight to the oldest one (FIFO pending queue); otherwise it joins the
// back of the idle queue so idle runners are reused in FIFO order.
func (p *RunnerPool) Release(h RunnerHandle) error {
	p.mu.Lock()

	if _, ok := p.busy[h]; !ok {
		p.mu.Unlock()
		return &StructuralError{Message: "release of a runner not held by the pool"}
	}
	delete(p.busy, h)

	if p.terminated {
		p.mu.Unlock()
		_ = h.Close()
		return nil
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.busy[h] = struct{}{}
		stats := Stats{Idle: len(p.idle), Busy: len(p.busy), Pending: len(p.waiters), Min: p.min, Max: p.max}
		p.mu.Unlock()
		w <- acquireResult{handle: h}
		p.emitOccupancy(stats)
		return nil
	}

	if p.size() >= p.max {
		stats := Stats{Idle: len(p.idle), Busy: len(p.busy), Pending: len(p.waiters), Min: p.min, Max: p.max}
		p.mu.Unlock()
		_ = h.Close()
		p.emitOccupancy(stats)
		return nil
	}

	p.idle = append(p.idle, h)
	stats := Stats{Idle: len(p.idle), Busy: len(p.busy), Pending: len(p.waiters), Min: p.min, Max: p.max}
	p.mu.Unlock()
	p.emitOccupancy(stats)
	return nil
}

// Discard permanently removes h from the pool: unlike Release, h is
// closed rather than returned to idle. If the pool then falls below min
// and has not been terminated, a replacement runner is created eagerly
// so callers of Acquire still see min warm runners available. Discard is
// how the scheduler forcibly retires a runner that ignored an abort
// within its grace period.
func (p *RunnerPool) Discard(h RunnerHandle) error {
	p.mu.Lock()
	if _, ok := p.busy[h]; !ok {
		p.mu.Unlock()
		return &StructuralError{Message: "discard of a runner not held by the pool"}
	}
	delete(p.busy, h)
	terminated := p.terminated
	deficit := 0
	if !terminated && p.size() < p.min {
		deficit = p.min - p.size()
	}
	factory := p.factory
	stats := Stats{Idle: len(p.idle), Busy: len(p.busy), Pending: len(p.waiters), Min: p.min, Max: p.max}
	p.mu.Unlock()

	_ = h.Close()
	p.emitter.Emit(emit.Event{Msg: "runner_discarded"})
	p.emitOccupancy(stats)

	for i := 0; i < deficit; i++ {
		replacement, err := factory(context.Background())
		if err != nil {
			return fmt.Errorf("engine: creating replacement runner after discard: %w", err)
		}
		p.mu.Lock()
		if p.terminated {
			p.mu.Unlock()
			_ = replacement.Close()
			return nil
		}
		p.idle = append(p.idle, replacement)
		p.mu.Unlock()
	}
	return nil
}

// SetMax resizes the pool's ceiling. Shrinking below the current size
// closes surplus idle runners only; busy runners are never forced closed.
func (p *RunnerPool) SetMax(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < p.min {
		return fmt.Errorf("engine: max %d cannot be below min %d", n, p.min)
	}
	p.max = n
	for p.size() > p.max && len(p.idle) > 0 {
		h := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		_ = h.Close()
	}
	return nil
}

// SetMin resizes the pool's floor, eagerly creating runners if the
// current size is below the new minimum.
func (p *RunnerPool) SetMin(n int) error {
	p.mu.Lock()
	if n <= 0 || n > p.max {
		p.mu.Unlock()
		return fmt.Errorf("engine: invalid min %d for max %d", n, p.max)
	}
	p.min = n
	deficit := n - p.size()
	factory := p.factory
	p.mu.Unlock()

	for i := 0; i < deficit; i++ {
		h, err := factory(context.Background())
		if err != nil {
			return err
		}
		p.mu.Lock()
		if p.terminated {
			p.mu.Unlock()
			_ = h.Close()
			return ErrPoolTerminated
		}
		p.idle = append(p.idle, h)
		p.mu.Unlock()
	}
	return nil
}

// Stats reports the pool's current occupancy, for metrics and tests.
type Stats struct {
	Idle    int
	Busy    int
	Pending int
	Min     int
	Max     int
}

// Stats returns a snapshot of the pool's current occupancy.
func (p *RunnerPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: len(p.idle), Busy: len(p.busy), Pending: len(p.waiters), Min: p.min, Max: p.max}
}

// Terminate closes every idle and busy runner and fails every queued
// waiter with ErrPoolTerminated. Subsequent Acquire calls also fail with
// ErrPoolTerminated.
func (p *RunnerPool) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	var g errgroup.Group
	for _, h := range idle {
		h := h
		g.Go(func() error {
			return h.Close()
		})
	}
	_ = g.Wait()

	for _, w := range waiters {
		w <- acquireResult{err: ErrPoolTerminated}
	}
	p.emitter.Emit(emit.Event{Msg: "pool_terminated", Meta: map[string]interface{}{"idle_closed": len(idle)}})
}

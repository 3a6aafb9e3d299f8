package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// inProcessRunner is the reference RunnerHandle: a dedicated goroutine per
// slot that runs a registered TaskImpl and communicates strictly through
// channels, standing in for the isolated OS thread/process a production
// runner would use. Subprocess transport framing is out of scope; this is
// the honest idiomatic-Go shape for the same contract.
type inProcessRunner struct {
	id       string
	registry map[string]TaskImpl

	mu      sync.Mutex
	current string
	abortCh chan abortSignal
	closeCh chan struct{}
	closed  bool
}

type abortSignal struct {
	requestID string
	reason    string
}

// NewInProcessFactory returns a RunnerFactory that builds runners backed
// by the given type registry.
func NewInProcessFactory(registry map[string]TaskImpl) RunnerFactory {
	return func(ctx context.Context) (RunnerHandle, error) {
		r := &inProcessRunner{
			id:       uuid.NewString(),
			registry: registry,
			abortCh:  make(chan abortSignal, 1),
			closeCh:  make(chan struct{}),
		}
		readyCh := make(chan error, 1)
		go func() { readyCh <- nil }()
		select {
		case err := <-readyCh:
			if err != nil {
				return nil, err
			}
			return r, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *inProcessRunner) Dispatch(ctx context.Context, req RunRequest) (<-chan RunnerMessage, error) {
	r.mu.Lock()
	if r.current != "" {
		r.mu.Unlock()
		return nil, fmt.Errorf("engine: runner %s is busy with request %s", r.id, r.current)
	}
	r.current = req.RequestID
	r.mu.Unlock()

	impl, ok := r.registry[req.Type]
	out := make(chan RunnerMessage, 1)
	if !ok {
		r.mu.Lock()
		r.current = ""
		r.mu.Unlock()
		out <- RunnerMessage{RequestID: req.RequestID, Err: fmt.Errorf("engine: no runner registered for task type %q", req.Type)}
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		defer func() {
			r.mu.Lock()
			r.current = ""
			r.mu.Unlock()
		}()

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		watchDone := make(chan struct{})
		defer close(watchDone)
		go func() {
			select {
			case sig := <-r.abortCh:
				if sig.requestID == req.RequestID {
					cancel()
				}
			case <-r.closeCh:
				cancel()
			case <-watchDone:
			}
		}()

		progress := func(p map[string]any) {
			select {
			case out <- RunnerMessage{RequestID: req.RequestID, Progress: p}:
			case <-runCtx.Done():
			}
		}

		buf, err := impl.Run(runCtx, TaskInput{
			TaskID:     req.TaskID,
			Type:       req.Type,
			Config:     req.Config,
			Inputs:     req.Inputs,
			OutputType: req.OutputType,
		}, progress)
		if err != nil {
			out <- RunnerMessage{RequestID: req.RequestID, Err: err}
			return
		}
		out <- RunnerMessage{RequestID: req.RequestID, Final: buf}
	}()

	return out, nil
}

func (r *inProcessRunner) Abort(_ context.Context, requestID, reason string) error {
	select {
	case r.abortCh <- abortSignal{requestID: requestID, reason: reason}:
	default:
	}
	return nil
}

// Close cancels any dispatch currently in flight on this runner. It is
// idempotent: a runner forcibly retired by RunnerPool.Discard after an
// unresponsive abort, then released by its own goroutine unwinding, must
// tolerate a second Close without panicking.
//
// This cancels the context a TaskImpl.Run was given; it does not forcibly
// unschedule that goroutine. A TaskImpl that never observes ctx.Done (for
// example one blocked on a channel receive with no select on ctx) keeps
// running until it returns on its own — an inherent limit of in-process
// "isolation" without real OS-level process termination.
func (r *inProcessRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.closeCh)
	return nil
}

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wfengine/wfengine/buffer"
	"github.com/wfengine/wfengine/emit"
)

// defaultAbortGrace bounds how long an aborting run waits for an
// in-flight runner to acknowledge an explicit Abort message before the
// scheduler forcibly discards and replaces it.
const defaultAbortGrace = 5 * time.Second

// IntermediateEvent carries one task's published output as it becomes
// available.
type IntermediateEvent struct {
	TaskID string
	Output *buffer.Buffer
}

// FinalEvent carries every task's output once the whole workflow has
// completed successfully.
type FinalEvent struct {
	Results map[string]*buffer.Buffer
}

// Event is a single item in a workflow's result stream: exactly one of
// Intermediate or Final is set.
type Event struct {
	Intermediate *IntermediateEvent
	Final        *FinalEvent
}

// ResultStream is the channel-based result of Scheduler.Run. Consumers
// range over Events() until it closes, then call Err to learn whether the
// run succeeded.
type ResultStream struct {
	events chan Event
	mu     sync.Mutex
	err    error
}

func newResultStream() *ResultStream {
	return &ResultStream{events: make(chan Event)}
}

// Events returns the channel of workflow events. It closes when the run
// is over, whether by completion or abort.
func (rs *ResultStream) Events() <-chan Event {
	return rs.events
}

// Err returns the run's terminal error, if any. It is only meaningful
// once Events() has closed.
func (rs *ResultStream) Err() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.err
}

func (rs *ResultStream) setErr(err error) {
	rs.mu.Lock()
	rs.err = err
	rs.mu.Unlock()
}

// Scheduler runs validated workflows against a RunnerPool, dispatching
// each task the instant its dependencies are satisfied and streaming
// results as they complete.
type Scheduler struct {
	pool       *RunnerPool
	registry   map[string]TaskImpl
	emitter    emit.Emitter
	abortGrace time.Duration
}

// NewScheduler builds a Scheduler dispatching onto pool, resolving task
// types against registry.
func NewScheduler(pool *RunnerPool, registry map[string]TaskImpl, opts ...Option) *Scheduler {
	s := &Scheduler{pool: pool, registry: registry, emitter: emit.NewNullEmitter(), abortGrace: defaultAbortGrace}
	for _, o := range opts {
		o(s)
	}
	return s
}

// workflowRun holds all state for a single in-flight Run call. Its
// mutable maps (results, remaining) are touched from many task
// goroutines, so they are guarded by mu; the pattern follows the
// teacher's own engine, which protects its shared node/edge maps with a
// mutex rather than assuming single-threaded ownership.
type workflowRun struct {
	scheduler *Scheduler
	dag       *DAG
	runID     string

	counter   *DependencyCounter
	reverse   map[string][]string
	readiness map[string]*oneShot

	mu        sync.Mutex
	results   map[string]*buffer.Buffer
	remaining map[string]struct{}
	active    map[string]*activeDispatch
	aborted   bool

	errOnce sync.Once
	errVal  error

	cancel context.CancelFunc
}

// activeDispatch tracks one task's in-flight runner dispatch so an abort
// can reach it: request the runner acknowledge abandonment via Abort,
// and unblock execTask's drain loop via forceClosed if the grace period
// expires before it does.
type activeDispatch struct {
	handle      RunnerHandle
	requestID   string
	forceClosed chan struct{}
	closed      atomic.Bool
}

func (r *workflowRun) registerDispatch(id string, ad *activeDispatch) {
	r.mu.Lock()
	r.active[id] = ad
	r.mu.Unlock()
}

func (r *workflowRun) unregisterDispatch(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

func (r *workflowRun) snapshotActive() []*activeDispatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*activeDispatch, 0, len(r.active))
	for _, ad := range r.active {
		out = append(out, ad)
	}
	return out
}

// Run validates wf, then schedules and executes it, returning a stream
// the caller drains for Intermediate and Final events.
func (s *Scheduler) Run(ctx context.Context, wf WorkflowDescriptor) (*ResultStream, error) {
	dag, err := Validate(wf.Tasks)
	if err != nil {
		return nil, err
	}

	rs := newResultStream()
	runID := uuid.NewString()

	if len(dag.Tasks) == 0 {
		go func() {
			rs.events <- Event{Final: &FinalEvent{Results: map[string]*buffer.Buffer{}}}
			close(rs.events)
		}()
		return rs, nil
	}

	run := &workflowRun{
		scheduler: s,
		dag:       dag,
		runID:     runID,
		counter:   NewDependencyCounter(),
		reverse:   make(map[string][]string),
		readiness: make(map[string]*oneShot),
		results:   make(map[string]*buffer.Buffer),
		remaining: make(map[string]struct{}),
		active:    make(map[string]*activeDispatch),
	}

	for _, id := range dag.Order {
		node := dag.Tasks[id]
		impl, ok := s.registry[node.Descriptor.Type]
		if !ok {
			return nil, &TaskExecutionError{TaskID: id, Inner: unregisteredTypeError(node.Descriptor.Type)}
		}
		node.OutputType = impl.OutputType()

		run.readiness[id] = newOneShot()
		run.remaining[id] = struct{}{}

		pending := 0
		seen := make(map[string]bool)
		for _, de := range node.Descriptor.Dependencies {
			for _, target := range de.Ref.Targets() {
				pending++
				if !seen[target] {
					seen[target] = true
					run.reverse[target] = append(run.reverse[target], id)
				}
			}
		}
		run.counter.Set(id, uint32(pending))
	}

	var initial []string
	for _, id := range dag.Order {
		if run.counter.IsZero(id) {
			initial = append(initial, id)
		}
	}
	if len(initial) == 0 {
		return nil, &NoInitialTasksError{}
	}
	for _, id := range initial {
		run.readiness[id].fire(nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run.cancel = cancel

	var wg sync.WaitGroup
	for _, id := range dag.Order {
		wg.Add(1)
		go run.execTask(runCtx, id, &wg, rs)
	}

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			run.abort(&AbortError{Reason: ctx.Err().Error()})
		case <-stopWatch:
		}
	}()

	go func() {
		wg.Wait()
		close(stopWatch)
		cancel()

		run.mu.Lock()
		wasAborted := run.aborted
		finalErr := run.errVal
		results := make(map[string]*buffer.Buffer, len(run.results))
		for k, v := range run.results {
			results[k] = v
		}
		run.mu.Unlock()

		if !wasAborted {
			rs.events <- Event{Final: &FinalEvent{Results: results}}
		}
		rs.setErr(finalErr)
		close(rs.events)
	}()

	return rs, nil
}

func (r *workflowRun) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

func (r *workflowRun) abort(err error) {
	r.errOnce.Do(func() {
		r.mu.Lock()
		r.aborted = true
		r.errVal = err
		r.mu.Unlock()

		for _, gate := range r.readiness {
			gate.fire(err)
		}
		r.cancel()
		r.scheduler.emitter.Emit(emit.Event{RunID: r.runID, Msg: "workflow_aborted", Meta: map[string]interface{}{"reason": err.Error()}})

		r.abortInFlight(err)
	})
}

// abortInFlight sends an explicit abort message to every runner currently
// executing a task for this run, fanning the calls out concurrently with
// errgroup. A runner that doesn't unblock its dispatch within the
// scheduler's grace period is presumed wedged: it is forcibly closed and
// discarded from the pool (which eagerly replaces it if the pool fell
// below min), and its forceClosed channel is closed so execTask's drain
// loop stops waiting on a message channel that may never close.
func (r *workflowRun) abortInFlight(reason error) {
	dispatches := r.snapshotActive()
	if len(dispatches) == 0 {
		return
	}

	grace := r.scheduler.abortGrace
	if grace <= 0 {
		grace = defaultAbortGrace
	}

	var g errgroup.Group
	for _, ad := range dispatches {
		ad := ad
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			_ = ad.handle.Abort(ctx, ad.requestID, reason.Error())

			select {
			case <-ctx.Done():
				if ad.closed.CompareAndSwap(false, true) {
					close(ad.forceClosed)
					_ = r.scheduler.pool.Discard(ad.handle)
				}
			case <-ad.forceClosed:
				// execTask's own drain loop already finished and
				// unregistered this dispatch; nothing left to force.
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *workflowRun) resolveInputs(node *taskNode) map[string]ResolvedInput {
	r.mu.Lock()
	defer r.mu.Unlock()

	inputs := make(map[string]ResolvedInput, len(node.Descriptor.Dependencies))
	for _, de := range node.Descriptor.Dependencies {
		if de.Ref.IsGroup() {
			group := make([]*buffer.Buffer, 0, len(de.Ref.Targets()))
			for _, t := range de.Ref.Targets() {
				group = append(group, r.results[t])
			}
			inputs[de.Key] = ResolvedInput{Group: group}
		} else {
			inputs[de.Key] = ResolvedInput{Single: r.results[de.Ref.Targets()[0]]}
		}
	}
	return inputs
}

func (r *workflowRun) recordResult(id string, buf *buffer.Buffer) {
	r.mu.Lock()
	r.results[id] = buf
	delete(r.remaining, id)
	r.mu.Unlock()
}

func (r *workflowRun) onTaskFinish(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dependent := range r.reverse[id] {
		m := r.dag.Tasks[dependent].Multiplicity[id]
		for i := 0; i < m; i++ {
			if _, err := r.counter.Decrement(dependent); err != nil {
				return err
			}
		}
		if r.counter.IsZero(dependent) {
			r.readiness[dependent].fire(nil)
		}
	}
	return nil
}

func (r *workflowRun) execTask(ctx context.Context, id string, wg *sync.WaitGroup, rs *ResultStream) {
	defer wg.Done()

	if err := r.readiness[id].wait(ctx); err != nil {
		return
	}
	if r.isAborted() {
		return
	}

	node := r.dag.Tasks[id]
	inputs := r.resolveInputs(node)

	handle, err := r.scheduler.pool.Acquire(ctx)
	if err != nil {
		r.abort(&TaskExecutionError{TaskID: id, Inner: err})
		return
	}

	reqID := uuid.NewString()
	msgs, err := handle.Dispatch(ctx, RunRequest{
		RequestID:  reqID,
		TaskID:     id,
		Type:       node.Descriptor.Type,
		Config:     node.Descriptor.Config,
		Inputs:     inputs,
		OutputType: node.OutputType,
	})
	if err != nil {
		_ = r.scheduler.pool.Release(handle)
		r.abort(&TaskExecutionError{TaskID: id, Inner: err})
		return
	}

	ad := &activeDispatch{handle: handle, requestID: reqID, forceClosed: make(chan struct{})}
	r.registerDispatch(id, ad)

	started := time.Now()
	var final *buffer.Buffer
	var taskErr error
	var forcedClosed bool
drain:
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				break drain
			}
			switch {
			case msg.Err != nil:
				taskErr = msg.Err
				break drain
			case msg.Final != nil:
				final = msg.Final
				break drain
			default:
				r.scheduler.emitter.Emit(emit.Event{
					RunID:  r.runID,
					TaskID: id,
					Msg:    "task_progress",
					Meta:   msg.Progress,
				})
			}
		case <-ad.forceClosed:
			forcedClosed = true
			break drain
		}
	}

	r.unregisterDispatch(id)
	if ad.closed.CompareAndSwap(false, true) {
		close(ad.forceClosed)
	}

	duration := time.Since(started)
	if !forcedClosed {
		_ = r.scheduler.pool.Release(handle)
	}

	if forcedClosed {
		r.scheduler.emitter.Emit(emit.Event{RunID: r.runID, TaskID: id, Msg: "task_failed", Meta: map[string]interface{}{
			"task_type": node.Descriptor.Type, "duration_ms": duration.Milliseconds(), "error": "forcibly closed after abort grace period",
		}})
		r.abort(&TaskExecutionError{TaskID: id, Inner: &StructuralError{Message: "runner did not acknowledge abort within grace period"}})
		return
	}

	if taskErr != nil {
		r.scheduler.emitter.Emit(emit.Event{RunID: r.runID, TaskID: id, Msg: "task_failed", Meta: map[string]interface{}{
			"task_type": node.Descriptor.Type, "duration_ms": duration.Milliseconds(), "error": taskErr.Error(),
		}})
		r.abort(&TaskExecutionError{TaskID: id, Inner: taskErr})
		return
	}
	if final == nil {
		r.abort(&StructuralError{Message: "runner closed without a final message for task " + id})
		return
	}

	r.scheduler.emitter.Emit(emit.Event{RunID: r.runID, TaskID: id, Msg: "task_complete", Meta: map[string]interface{}{
		"task_type": node.Descriptor.Type, "duration_ms": duration.Milliseconds(), "status": "ok",
	}})

	r.recordResult(id, final)

	select {
	case rs.events <- Event{Intermediate: &IntermediateEvent{TaskID: id, Output: final}}:
	case <-ctx.Done():
		return
	}

	if err := r.onTaskFinish(id); err != nil {
		r.abort(err)
	}
}

type unregisteredTypeErr struct {
	taskType string
}

func (e unregisteredTypeErr) Error() string {
	return "no runner registered for task type " + e.taskType
}

func unregisteredTypeError(taskType string) error {
	return unregisteredTypeErr{taskType: taskType}
}

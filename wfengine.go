// Package wfengine is a task workflow engine: it executes a user-supplied
// DAG of tasks, each producing a typed binary buffer consumed by its
// dependents, across a bounded pool of isolated workers, streaming
// results as they become available and supporting cooperative
// cancellation.
//
// Engine is a thin façade over engine.Scheduler and engine.RunnerPool that
// ties in the ambient stack (metrics, observability, audit history) a
// deployment needs but which the core scheduler and pool packages stay
// agnostic of.
package wfengine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wfengine/wfengine/audit"
	"github.com/wfengine/wfengine/config"
	"github.com/wfengine/wfengine/emit"
	"github.com/wfengine/wfengine/engine"
	"github.com/wfengine/wfengine/metrics"
)

// WorkflowDescriptor, TaskDescriptor, DepEntry and Event are re-exported so
// callers of this package never need to import engine directly.
type (
	WorkflowDescriptor = engine.WorkflowDescriptor
	TaskDescriptor     = engine.TaskDescriptor
	DepEntry           = engine.DepEntry
	Event              = engine.Event
	TaskImpl           = engine.TaskImpl
)

// NewRunID returns a fresh, globally unique run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Engine wires together a runner pool, scheduler, metrics collector, and
// audit log into a single entry point for submitting workflows.
type Engine struct {
	pool      *engine.RunnerPool
	scheduler *engine.Scheduler
	metrics   *metrics.Collector
	auditLog  audit.Log
}

// New builds an Engine from cfg, registering registry as the set of task
// types available for dispatch. emitter may be nil (defaults to a no-op
// sink). The returned Engine owns the runner pool and audit log; call
// Close to release both.
func New(cfg *config.Config, registry map[string]engine.TaskImpl, emitter emit.Emitter) (*Engine, error) {
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(nil)
	}
	// Wrapping unconditionally (even with a nil collector) means the pool
	// and scheduler always see the same emitter shape; metrics.Emitter
	// is a no-op pass-through when collector is nil.
	wrapped := metrics.NewEmitter(emitter, collector)

	pool, err := engine.NewRunnerPool(cfg.Pool.Min, cfg.Pool.Max, engine.NewInProcessFactory(registry), engine.WithPoolEmitter(wrapped))
	if err != nil {
		return nil, err
	}

	auditLog, err := newAuditLog(cfg.Audit)
	if err != nil {
		pool.Terminate()
		return nil, err
	}

	sched := engine.NewScheduler(pool, registry, engine.WithEmitter(wrapped), engine.WithAbortGracePeriod(cfg.Timeouts.AbortGrace))

	return &Engine{pool: pool, scheduler: sched, metrics: collector, auditLog: auditLog}, nil
}

func newAuditLog(cfg config.AuditConfig) (audit.Log, error) {
	switch cfg.Backend {
	case "sqlite":
		return audit.NewSQLiteLog(cfg.DSN)
	case "mysql":
		return audit.NewMySQLLog(context.Background(), cfg.DSN)
	default:
		return audit.NewMemoryLog(), nil
	}
}

// Submit validates and runs wf, returning a channel of streamed events.
// The channel closes when the run finishes, whether by completion or
// abort. The run's terminal outcome (success or the aborting error) is
// recorded to the audit log rather than returned a second time, so
// callers only need a single read loop over the channel.
func (e *Engine) Submit(ctx context.Context, runID string, wf engine.WorkflowDescriptor) (<-chan Event, error) {
	if runID == "" {
		runID = NewRunID()
	}

	rs, err := e.scheduler.Run(ctx, wf)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		started := time.Now()
		for ev := range rs.Events() {
			out <- ev
		}
		e.recordRun(ctx, runID, wf, started, rs.Err())
	}()
	return out, nil
}

func (e *Engine) recordRun(ctx context.Context, runID string, wf engine.WorkflowDescriptor, started time.Time, runErr error) {
	rec := audit.RunRecord{
		RunID:     runID,
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	if runErr != nil {
		rec.Status = "aborted"
		rec.Error = runErr.Error()
		if e.metrics != nil {
			e.metrics.IncrementAborted(abortReason(runErr))
		}
	} else {
		rec.Status = "succeeded"
	}
	for _, td := range wf.Tasks {
		rec.Tasks = append(rec.Tasks, audit.TaskRecord{TaskID: td.ID, Type: td.Type})
	}
	_ = e.auditLog.RecordRun(ctx, rec)
}

// abortReason classifies a run's terminal error for the aborted-runs
// metric: caller cancellation and an actual task failure are distinct
// operational signals and should not share a label.
func abortReason(err error) string {
	var taskErr *engine.TaskExecutionError
	if errors.As(err, &taskErr) {
		return "task_error"
	}
	var abortErr *engine.AbortError
	if errors.As(err, &abortErr) {
		return "caller_cancelled"
	}
	return "unknown"
}

// Validate checks wf for duplicate task ids, missing dependencies, and
// cycles without running anything.
func Validate(wf engine.WorkflowDescriptor) error {
	_, err := engine.Validate(wf.Tasks)
	return err
}

// Close terminates the runner pool and closes the audit log. It does not
// cancel in-flight runs; callers should cancel their own run contexts
// first.
func (e *Engine) Close() error {
	e.pool.Terminate()
	return e.auditLog.Close()
}

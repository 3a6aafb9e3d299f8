package metrics

import (
	"context"
	"time"

	"github.com/wfengine/wfengine/emit"
)

// Emitter wraps an inner emit.Emitter, forwarding every event unchanged
// while also translating the pool- and task-level events that
// RunnerPool and Scheduler already publish into Collector updates. This
// is the only place metrics instrumentation touches the emit package,
// keeping engine and emit themselves agnostic of Prometheus.
type Emitter struct {
	inner     emit.Emitter
	collector *Collector
}

// NewEmitter wraps inner (emit.NewNullEmitter if nil) with collector. A
// nil collector makes Emitter a pure pass-through, so callers can always
// wrap unconditionally rather than branching on whether metrics are
// enabled.
func NewEmitter(inner emit.Emitter, collector *Collector) *Emitter {
	if inner == nil {
		inner = emit.NewNullEmitter()
	}
	return &Emitter{inner: inner, collector: collector}
}

// Emit forwards event to the wrapped emitter after updating any metric
// it corresponds to.
func (e *Emitter) Emit(event emit.Event) {
	e.observe(event)
	e.inner.Emit(event)
}

// EmitBatch forwards events to the wrapped emitter after updating
// metrics for each one.
func (e *Emitter) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, ev := range events {
		e.observe(ev)
	}
	return e.inner.EmitBatch(ctx, events)
}

// Flush delegates to the wrapped emitter; metric updates are never
// buffered so there is nothing of Emitter's own to flush.
func (e *Emitter) Flush(ctx context.Context) error {
	return e.inner.Flush(ctx)
}

func (e *Emitter) observe(event emit.Event) {
	if e.collector == nil {
		return
	}
	switch event.Msg {
	case "pool_occupancy":
		busy, _ := event.Meta["busy"].(int)
		idle, _ := event.Meta["idle"].(int)
		pending, _ := event.Meta["pending"].(int)
		e.collector.SetPoolOccupancy(busy, idle, pending)
	case "task_complete":
		e.collector.RecordTaskLatency(taskType(event), durationOf(event), "ok")
	case "task_failed":
		t := taskType(event)
		e.collector.RecordTaskLatency(t, durationOf(event), "failed")
		e.collector.IncrementFailed(t)
	}
}

func taskType(event emit.Event) string {
	t, _ := event.Meta["task_type"].(string)
	return t
}

func durationOf(event emit.Event) time.Duration {
	ms, _ := event.Meta["duration_ms"].(int64)
	return time.Duration(ms) * time.Millisecond
}

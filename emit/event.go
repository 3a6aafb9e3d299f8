package emit

// Event represents an observability event emitted during workflow
// execution: task dispatch, task progress, runner pool occupancy
// changes, and abort notices.
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Store in time-series databases
//   - Trigger alerts
type Event struct {
	// RunID identifies the workflow run that emitted this event.
	RunID string

	// Step is unused by the task workflow engine; it is retained so the
	// wire shape stays stable for consumers migrating from step-indexed
	// emitters.
	Step int

	// TaskID identifies which task emitted this event. Empty string for
	// workflow-level events (pool occupancy, abort).
	TaskID string

	// Msg is a human-readable description of the event, e.g.
	// "task_progress", "pool_occupancy", "workflow_aborted".
	Msg string

	// Meta contains additional structured data specific to this event.
	Meta map[string]interface{}
}

package engine

import (
	"errors"
	"fmt"
	"strings"
)

// DuplicateTaskError is raised when two task descriptors share an id.
type DuplicateTaskError struct {
	ID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("engine: duplicate task id %q", e.ID)
}

// DependencyNotFoundError is raised when a task names a dependency target
// that is not present in the workflow.
type DependencyNotFoundError struct {
	ID string
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("engine: dependency %q not found", e.ID)
}

// CyclicDependencyError is raised when the dependency graph contains a
// cycle. Path lists the cycle starting from the node the DFS re-entered
// grey at, ending with that same id to close the loop.
type CyclicDependencyError struct {
	ID   string
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("engine: cyclic dependency detected at %q: %s", e.ID, strings.Join(e.Path, " -> "))
}

// NoInitialTasksError is raised when a non-empty workflow has no task
// whose dependencies are all already satisfied (pending_count == 0).
type NoInitialTasksError struct{}

func (e *NoInitialTasksError) Error() string {
	return "engine: workflow has no initial tasks; every task depends on something"
}

// TaskExecutionError wraps a failure reported by a runner while executing
// a specific task.
type TaskExecutionError struct {
	TaskID string
	Inner  error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("engine: task %q failed: %v", e.TaskID, e.Inner)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Inner
}

// AbortError reports that a workflow run was aborted, either by caller
// cancellation or because another task failed.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return "engine: workflow aborted: " + e.Reason
}

// ErrPoolTerminated is returned by RunnerPool operations once Terminate has
// been called.
var ErrPoolTerminated = errors.New("engine: runner pool terminated")

// StructuralError reports an assertion-level bug in the engine's own
// bookkeeping (a dependency counter underflow, a missing reverse-index
// entry, a double release) rather than a task or caller mistake. A
// correctly-validated workflow should never trigger one.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string {
	return "engine: structural bug: " + e.Message
}

package engine

import (
	"context"

	"github.com/wfengine/wfengine/buffer"
)

// ResolvedInput is a task's view of one resolved dependency: either a
// single buffer or, for a group reference, the ordered buffers of every
// member.
type ResolvedInput struct {
	Single *buffer.Buffer
	Group  []*buffer.Buffer
}

// TaskInput is what a runner body receives for one dispatch.
type TaskInput struct {
	TaskID     string
	Type       string
	Config     map[string]any
	Inputs     map[string]ResolvedInput
	OutputType buffer.Tag
}

// TaskImpl is the out-of-scope "runner body" seam: the registered
// implementation for one task type. The engine only ever calls Run; it
// never constructs or inspects what's behind it.
type TaskImpl interface {
	// OutputType declares the buffer tag this implementation produces,
	// since the wire TaskDescriptor carries no output-type field.
	OutputType() buffer.Tag
	// Run executes one dispatch. progress may be called zero or more
	// times before Run returns to report incremental status; it must
	// tolerate being ignored or dropped under backpressure.
	Run(ctx context.Context, in TaskInput, progress func(map[string]any)) (*buffer.Buffer, error)
}

// RunRequest is the engine-to-runner envelope that dispatches one task.
type RunRequest struct {
	RequestID  string
	TaskID     string
	Type       string
	Config     map[string]any
	Inputs     map[string]ResolvedInput
	OutputType buffer.Tag
}

// RunnerMessage is the runner-to-engine envelope. Exactly one of Final or
// Err is set on the last message for a request id; any number of
// progress-only messages (both nil) may precede it.
type RunnerMessage struct {
	RequestID string
	Progress  map[string]any
	Final     *buffer.Buffer
	Err       error
}

// RunnerHandle is one runner slot acquired from a RunnerPool: an isolated
// execution context that accepts at most one in-flight request at a time.
type RunnerHandle interface {
	// Dispatch starts req and returns a channel of messages correlated by
	// req.RequestID; the channel closes after the terminal message.
	Dispatch(ctx context.Context, req RunRequest) (<-chan RunnerMessage, error)
	// Abort asks the runner to cancel the named in-flight request.
	Abort(ctx context.Context, requestID, reason string) error
	// Close tears down the runner's execution context.
	Close() error
}

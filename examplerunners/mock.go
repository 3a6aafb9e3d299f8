package examplerunners

import (
	"context"
	"sync"

	"github.com/wfengine/wfengine/buffer"
	"github.com/wfengine/wfengine/engine"
)

// Mock is a TaskImpl for tests: it returns a fixed output (or error) and
// records every call it receives.
type Mock struct {
	Output    *buffer.Buffer
	Tag       buffer.Tag
	Err       error
	Delay     func(ctx context.Context) error // optional hook to block before returning

	mu    sync.Mutex
	calls []engine.TaskInput
}

// OutputType reports the tag Mock was configured with.
func (m *Mock) OutputType() buffer.Tag {
	return m.Tag
}

// Run records the call and returns the configured output or error.
func (m *Mock) Run(ctx context.Context, in engine.TaskInput, progress func(map[string]any)) (*buffer.Buffer, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	m.mu.Unlock()

	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return nil, err
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Output, nil
}

// Calls returns a copy of the inputs Run was invoked with, in order.
func (m *Mock) Calls() []engine.TaskInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]engine.TaskInput, len(m.calls))
	copy(out, m.calls)
	return out
}

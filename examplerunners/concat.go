package examplerunners

import (
	"context"

	"github.com/wfengine/wfengine/buffer"
	"github.com/wfengine/wfengine/engine"
)

// Concat is a TaskImpl that concatenates the byte payloads of a group
// dependency named "parts", in order, into a single uint8 buffer. It has
// no config; its only purpose is to exercise the group-dependency and
// buffer-passing paths with a trivial, deterministic body.
type Concat struct{}

// OutputType declares Concat always publishes raw bytes.
func (Concat) OutputType() buffer.Tag {
	return buffer.Uint8
}

// Run concatenates every buffer in the "parts" group input.
func (Concat) Run(_ context.Context, in engine.TaskInput, progress func(map[string]any)) (*buffer.Buffer, error) {
	var out []byte
	parts := in.Inputs["parts"].Group
	for i, p := range parts {
		if p != nil {
			out = append(out, p.Bytes()...)
		}
		if progress != nil {
			progress(map[string]any{"part": i, "of": len(parts)})
		}
	}
	return buffer.New(buffer.Uint8, out)
}

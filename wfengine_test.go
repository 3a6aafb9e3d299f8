package wfengine

import (
	"context"
	"testing"
	"time"

	"github.com/wfengine/wfengine/buffer"
	"github.com/wfengine/wfengine/config"
	"github.com/wfengine/wfengine/engine"
)

type echoTask struct{}

func (echoTask) OutputType() buffer.Tag { return buffer.Uint8 }

func (echoTask) Run(ctx context.Context, in engine.TaskInput, progress func(map[string]any)) (*buffer.Buffer, error) {
	return buffer.New(buffer.Uint8, []byte(in.TaskID))
}

func testConfig() *config.Config {
	return &config.Config{
		Pool:       config.PoolConfig{Min: 1, Max: 2},
		Timeouts:   config.TimeoutConfig{TaskTimeout: time.Second, BackpressureWait: time.Second},
		QueueDepth: 8,
		Audit:      config.AuditConfig{Backend: "memory"},
		Metrics:    config.MetricsConfig{Enabled: false},
	}
}

func TestEngineSubmitLinearChain(t *testing.T) {
	registry := map[string]engine.TaskImpl{"echo": echoTask{}}
	eng, err := New(testConfig(), registry, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	wf := WorkflowDescriptor{Tasks: []TaskDescriptor{
		{ID: "a", Type: "echo"},
		{ID: "b", Type: "echo", Dependencies: []DepEntry{{Key: "in", Ref: engine.SingleDep("a")}}},
	}}

	events, err := eng.Submit(context.Background(), "", wf)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var finals int
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if finals != 1 {
					t.Fatalf("expected exactly one final event, got %d", finals)
				}
				return
			}
			if ev.Final != nil {
				finals++
			}
		case <-deadline:
			t.Fatal("timed out waiting for run to finish")
		}
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	wf := WorkflowDescriptor{Tasks: []TaskDescriptor{
		{ID: "a", Dependencies: []DepEntry{{Key: "in", Ref: engine.SingleDep("b")}}},
		{ID: "b", Dependencies: []DepEntry{{Key: "in", Ref: engine.SingleDep("a")}}},
	}}
	if err := Validate(wf); err == nil {
		t.Fatal("expected cycle to be rejected")
	}
}

func TestNewRunIDUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Fatal("expected distinct run ids")
	}
}

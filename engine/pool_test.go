package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRunner struct {
	id int
}

func (f *fakeRunner) Dispatch(ctx context.Context, req RunRequest) (<-chan RunnerMessage, error) {
	return nil, errors.New("not used in pool tests")
}
func (f *fakeRunner) Abort(ctx context.Context, requestID, reason string) error { return nil }
func (f *fakeRunner) Close() error                                             { return nil }

func newCountingFactory() (RunnerFactory, *int32Counter) {
	counter := &int32Counter{}
	return func(ctx context.Context) (RunnerHandle, error) {
		n := counter.next()
		return &fakeRunner{id: n}, nil
	}, counter
}

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func TestRunnerPoolEagerMin(t *testing.T) {
	factory, counter := newCountingFactory()
	p, err := NewRunnerPool(2, 4, factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counter.n != 2 {
		t.Fatalf("expected 2 eagerly-created runners, got %d", counter.n)
	}
	stats := p.Stats()
	if stats.Idle != 2 || stats.Busy != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunnerPoolInvalidBounds(t *testing.T) {
	factory, _ := newCountingFactory()
	if _, err := NewRunnerPool(0, 4, factory); err == nil {
		t.Fatal("expected error for min=0")
	}
	if _, err := NewRunnerPool(4, 2, factory); err == nil {
		t.Fatal("expected error for max<min")
	}
}

func TestRunnerPoolLazyGrowthAndSaturation(t *testing.T) {
	factory, counter := newCountingFactory()
	p, err := NewRunnerPool(1, 2, factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	h1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	h2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if counter.n != 2 {
		t.Fatalf("expected lazy growth to create a 2nd runner, got %d created", counter.n)
	}

	stats := p.Stats()
	if stats.Idle != 0 || stats.Busy != 2 {
		t.Fatalf("pool should be fully saturated: %+v", stats)
	}

	// A third acquire should queue (min <= size == max, idle == 0 => pending must queue).
	acquired := make(chan RunnerHandle, 1)
	go func() {
		h, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("queued acquire failed: %v", err)
			return
		}
		acquired <- h
	}()

	time.Sleep(20 * time.Millisecond)
	stats = p.Stats()
	if stats.Pending != 1 {
		t.Fatalf("expected 1 pending waiter, got %+v", stats)
	}

	if err := p.Release(h1); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case h3 := <-acquired:
		if h3 != h1 {
			t.Fatal("queued waiter should receive the just-released runner directly")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued acquire to be satisfied")
	}

	_ = p.Release(h2)
	_ = p.Release(h1)
}

func TestRunnerPoolTerminate(t *testing.T) {
	factory, _ := newCountingFactory()
	p, err := NewRunnerPool(1, 1, factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Terminate()
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolTerminated) {
		t.Fatalf("expected ErrPoolTerminated, got %v", err)
	}
}

func TestRunnerPoolSetMinGrows(t *testing.T) {
	factory, counter := newCountingFactory()
	p, err := NewRunnerPool(1, 4, factory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.SetMin(3); err != nil {
		t.Fatalf("SetMin: %v", err)
	}
	if counter.n != 3 {
		t.Fatalf("expected 3 runners after SetMin(3), got %d", counter.n)
	}
}

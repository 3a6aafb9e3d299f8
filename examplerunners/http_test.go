package examplerunners

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wfengine/wfengine/engine"
)

func TestHTTPFetchRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	h := NewHTTPFetch()
	var seen []map[string]any
	out, err := h.Run(context.Background(), engine.TaskInput{
		TaskID: "fetch",
		Config: map[string]any{"url": srv.URL},
	}, func(p map[string]any) { seen = append(seen, p) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out.Bytes()) != "hello" {
		t.Fatalf("got %q, want %q", out.Bytes(), "hello")
	}
	if len(seen) == 0 {
		t.Error("expected at least one progress callback")
	}
}

func TestHTTPFetchRequiresURL(t *testing.T) {
	h := NewHTTPFetch()
	_, err := h.Run(context.Background(), engine.TaskInput{TaskID: "fetch"}, nil)
	if err == nil {
		t.Fatal("expected error when config.url is missing")
	}
}

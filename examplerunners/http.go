// Package examplerunners provides illustrative TaskImpl implementations
// built entirely on the standard library. They exist to document the
// seam a production runner body would occupy — an LLM call, a database
// query, a transcoder — without pulling any such dependency into the
// engine itself; the engine only ever calls TaskImpl.Run.
package examplerunners

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wfengine/wfengine/buffer"
	"github.com/wfengine/wfengine/engine"
)

// HTTPFetch is a TaskImpl that fetches a URL and publishes the response
// body as a uint8 buffer. It takes no task inputs; the target is read
// from its descriptor Config.
//
// Config:
//   - "method": HTTP method, defaults to "GET"
//   - "url": target URL (required)
//   - "headers": optional map[string]any of request headers
//   - "body": optional request body string (for POST)
type HTTPFetch struct {
	Client *http.Client
}

// NewHTTPFetch returns an HTTPFetch runner using http.DefaultClient.
func NewHTTPFetch() *HTTPFetch {
	return &HTTPFetch{Client: http.DefaultClient}
}

// OutputType declares HTTPFetch always publishes raw bytes.
func (h *HTTPFetch) OutputType() buffer.Tag {
	return buffer.Uint8
}

// Run performs the HTTP request and seals the response body.
func (h *HTTPFetch) Run(ctx context.Context, in engine.TaskInput, progress func(map[string]any)) (*buffer.Buffer, error) {
	urlStr, _ := in.Config["url"].(string)
	if urlStr == "" {
		return nil, fmt.Errorf("examplerunners: task %q: config.url is required", in.TaskID)
	}

	method := "GET"
	if m, ok := in.Config["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	var body io.Reader
	if b, ok := in.Config["body"].(string); ok && b != "" {
		body = bytes.NewBufferString(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("examplerunners: building request: %w", err)
	}
	if headers, ok := in.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	progress(map[string]any{"status": "dispatching", "url": urlStr})

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("examplerunners: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("examplerunners: reading response: %w", err)
	}

	progress(map[string]any{"status": "fetched", "status_code": resp.StatusCode})

	return buffer.New(buffer.Uint8, respBody)
}

// Package dispatch executes a validated plan on the trusted side. Each step
// is rehydrated on its own and handed to a tool, so a tool only ever sees
// the values its step declared.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gonkalabs/shardguard/internal/plan"
)

const (
	DefaultTimeout = 60 * time.Second
	maxResultBytes = 4 << 20
)

// Invoker runs a named tool with JSON arguments.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args any) (json.RawMessage, error)
}

// Lister reports the tools an executor offers.
type Lister interface {
	Tools(ctx context.Context) (plan.Catalog, error)
}

// HTTPInvoker calls a tool server at {base}/tools/{tool} and lists its
// catalogue at {base}/tools.
type HTTPInvoker struct {
	base string
	http *http.Client
}

// NewHTTPInvoker creates an HTTPInvoker pointing at baseURL
// (e.g. "http://tools:8001").
func NewHTTPInvoker(baseURL string, timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPInvoker{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Invoke POSTs args as JSON and returns the response body. Arguments carry
// rehydrated values, so neither they nor the result are ever logged.
func (c *HTTPInvoker) Invoke(ctx context.Context, tool string, args any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("dispatch: marshal: %w", err)
	}

	endpoint := c.base + "/tools/" + url.PathEscape(tool)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dispatch: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch: tool %s: %w", tool, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("dispatch: tool %s: read: %w", tool, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("dispatch: tool returned error status", "tool", tool, "code", resp.StatusCode)
		return nil, fmt.Errorf("dispatch: tool %s: status %d", tool, resp.StatusCode)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("dispatch: tool %s: response is not JSON", tool)
	}
	return json.RawMessage(raw), nil
}

// Tools fetches the catalogue from GET {base}/tools. The body is either
// {"tools":[...]} or a bare array of {name, description}. A server without
// the route (404) has no catalogue and yields nil.
func (c *HTTPInvoker) Tools(ctx context.Context) (plan.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch: list tools: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("dispatch: list tools: read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("dispatch: list tools: status %d", resp.StatusCode)
	}
	return decodeCatalog(raw)
}

func decodeCatalog(raw []byte) (plan.Catalog, error) {
	raw = bytes.TrimSpace(raw)
	var tools []plan.Tool
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &tools); err != nil {
			return nil, fmt.Errorf("dispatch: list tools: %w", err)
		}
	} else {
		var wrapped struct {
			Tools []plan.Tool `json:"tools"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("dispatch: list tools: %w", err)
		}
		tools = wrapped.Tools
	}

	out := make(plan.Catalog, 0, len(tools))
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, errors.New("dispatch: list tools: tool without a name")
		}
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		out = append(out, t)
	}
	return out, nil
}

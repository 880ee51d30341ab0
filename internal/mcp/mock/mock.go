// Package mock provides an in-memory test double for the MCP [mcp.Host]
// interface.
//
// [Host] records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	h := &mock.Host{}
//	h.ToolsResult = []mcp.ToolDescriptor{{Name: "get_forecast", Server: "weather"}}
//	h.CallToolResult = &mcp.ToolResult{Content: `{"wind":"15kt"}`}
//
//	// inject h into the system under test …
//
//	if got := h.CallCount("CallTool"); got != 1 {
//	    t.Errorf("expected 1 CallTool call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/squadnet-ai/squadnet/internal/mcp"
	"github.com/squadnet-ai/squadnet/internal/resilience"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Host is a configurable test double for [mcp.Host].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil / zero values.
type Host struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// ConnectErr is returned by [Host.Connect] when non-nil.
	ConnectErr error

	// ToolsResult is returned by [Host.Tools] and consulted by
	// [Host.Lookup]. When nil, Tools returns an empty non-nil slice.
	ToolsResult []mcp.ToolDescriptor

	// CallToolResult is returned by [Host.CallTool] when CallToolErr is nil.
	// When nil and CallToolErr is also nil, a zero-value *ToolResult is
	// returned.
	CallToolResult *mcp.ToolResult

	// CallToolErr is returned by [Host.CallTool] when non-nil.
	CallToolErr error

	// CallToolFn, when non-nil, overrides CallToolResult/CallToolErr and is
	// invoked per call. Useful for per-tool scripting.
	CallToolFn func(ctx context.Context, name, args string) (*mcp.ToolResult, error)

	// BreakerStatsResult is returned by [Host.BreakerStats].
	BreakerStatsResult []resilience.Stats

	// CloseErr is returned by [Host.Close] when non-nil.
	CloseErr error
}

// Compile-time check: Host must implement mcp.Host.
var _ mcp.Host = (*Host)(nil)

// Calls returns a copy of all recorded method invocations.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (h *Host) CallCount(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (h *Host) record(method string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Method: method, Args: args})
}

// Connect records the call and returns ConnectErr.
func (h *Host) Connect(ctx context.Context, cfg mcp.ServerConfig) error {
	h.record("Connect", cfg)
	return h.ConnectErr
}

// Tools records the call and returns ToolsResult.
func (h *Host) Tools() []mcp.ToolDescriptor {
	h.record("Tools")
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ToolsResult == nil {
		return []mcp.ToolDescriptor{}
	}
	return append([]mcp.ToolDescriptor(nil), h.ToolsResult...)
}

// Lookup records the call and searches ToolsResult by name.
func (h *Host) Lookup(name string) (mcp.ToolDescriptor, bool) {
	h.record("Lookup", name)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.ToolsResult {
		if d.Name == name {
			return d, true
		}
	}
	return mcp.ToolDescriptor{}, false
}

// CallTool records the call and returns the scripted result.
func (h *Host) CallTool(ctx context.Context, name, args string) (*mcp.ToolResult, error) {
	h.record("CallTool", name, args)
	if h.CallToolFn != nil {
		return h.CallToolFn(ctx, name, args)
	}
	if h.CallToolErr != nil {
		return nil, h.CallToolErr
	}
	if h.CallToolResult != nil {
		return h.CallToolResult, nil
	}
	return &mcp.ToolResult{}, nil
}

// BreakerStats records the call and returns BreakerStatsResult.
func (h *Host) BreakerStats() []resilience.Stats {
	h.record("BreakerStats")
	return h.BreakerStatsResult
}

// Close records the call and returns CloseErr.
func (h *Host) Close() error {
	h.record("Close")
	return h.CloseErr
}

// Package mcphost provides a concrete implementation of the [mcp.Host]
// interface.
//
// It connects to MCP servers via stdio or streamable-HTTP transports using
// the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk), maintains
// a concurrent-safe federated tool registry, and isolates each server behind
// its own circuit breaker.
//
// Typical usage:
//
//	h := mcphost.New(mcphost.Config{})
//
//	err := h.Connect(ctx, mcp.ServerConfig{
//	    Name:    "weather",
//	    Command: "mcp-weather-server",
//	})
//
//	tools := h.Tools()
//	result, err := h.CallTool(ctx, "get_forecast", `{"grid":"north"}`)
//
//	h.Close()
package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/squadnet-ai/squadnet/internal/mcp"
	"github.com/squadnet-ai/squadnet/internal/observe"
	"github.com/squadnet-ai/squadnet/internal/resilience"
)

// Sentinel errors returned by [Host.CallTool]. Timeout and execution failures
// are wrapped with [resilience.Retryable]; not-found and circuit-open are
// permanent for the current call.
var (
	ErrToolNotFound  = errors.New("mcphost: tool not found")
	ErrToolTimeout   = errors.New("mcphost: tool call timed out")
	ErrToolExecution = errors.New("mcphost: tool call failed")
)

// ToolError carries the structure of a failed tool invocation so callers can
// report which capability failed and where without parsing error text. Err
// wraps one of the package sentinels, so errors.Is keeps working through it.
type ToolError struct {
	Tool   string
	Server string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcphost: tool %q on server %q: %v", e.Tool, e.Server, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Config tunes a [Host]. Zero values select the defaults.
type Config struct {
	// ConnectTimeout bounds transport establishment per server. Default: 30s.
	ConnectTimeout time.Duration

	// InitTimeout bounds tool discovery per server. Default: 10s.
	InitTimeout time.Duration

	// CallTimeout bounds a single tool execution. Default: 30s.
	CallTimeout time.Duration

	// Breaker is the per-server circuit breaker policy. Name is overridden
	// with the server name at connect time.
	Breaker resilience.BreakerConfig

	// Metrics receives tool call and breaker telemetry. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 10 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	return c
}

// session is the slice of [mcpsdk.ClientSession] the host uses, split out so
// tests can substitute a stub.
type session interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// serverConn holds a live connection to one MCP server and its breaker.
type serverConn struct {
	cfg     mcp.ServerConfig
	session session
	breaker *resilience.Breaker
}

// Host is a concrete implementation of [mcp.Host].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	cfg Config

	mu      sync.RWMutex
	servers map[string]*serverConn
	order   []string // registration order, for listing and teardown
	tools   map[string]mcp.ToolDescriptor
	closed  bool

	// client is reused across all server connections. The official SDK
	// allows a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// Compile-time check: Host must implement mcp.Host.
var _ mcp.Host = (*Host)(nil)

// New creates and returns a ready-to-use Host.
func New(cfg Config) *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "squadnet-mcphost", Version: "1.0.0"},
		nil,
	)
	return &Host{
		cfg:     cfg.withDefaults(),
		servers: make(map[string]*serverConn),
		tools:   make(map[string]mcp.ToolDescriptor),
		client:  client,
	}
}

// Connect establishes a connection to the server described by cfg, discovers
// its tools within the init timeout, and merges them into the registry.
// Registration is all-or-nothing: any failure closes the session and leaves
// the registry unchanged.
//
// Tool name collisions resolve in favour of the earlier registration; the
// shadowed tool is logged and skipped.
func (h *Host) Connect(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcphost: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcphost: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
	h.mu.RLock()
	_, dup := h.servers[cfg.Name]
	h.mu.RUnlock()
	if dup {
		return fmt.Errorf("mcphost: server %q already connected", cfg.Name)
	}

	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, h.cfg.ConnectTimeout)
	defer cancel()
	sess, err := h.client.Connect(connectCtx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcphost: failed to connect to server %q: %w", cfg.Name, err)
	}

	discovered, err := h.discoverTools(ctx, sess, cfg.Name)
	if err != nil {
		_ = sess.Close()
		return err
	}

	if err := h.addServer(cfg, sess, discovered); err != nil {
		_ = sess.Close()
		return err
	}
	slog.Info("mcp.connect", "server", cfg.Name, "tools", len(discovered))
	return nil
}

// addServer registers a connected session and merges its tools, resolving
// name collisions in favour of the earlier registration.
func (h *Host) addServer(cfg mcp.ServerConfig, sess session, discovered []mcp.ToolDescriptor) error {
	breakerCfg := h.cfg.Breaker
	breakerCfg.Name = cfg.Name
	breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
		h.cfg.Metrics.RecordBreakerTransition(context.Background(), name, string(to))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("mcphost: host is closed")
	}
	h.servers[cfg.Name] = &serverConn{
		cfg:     cfg,
		session: sess,
		breaker: resilience.NewBreaker(breakerCfg),
	}
	h.order = append(h.order, cfg.Name)

	for _, desc := range discovered {
		if existing, ok := h.tools[desc.Name]; ok {
			slog.Warn("mcp.connect", "event", "tool_shadowed",
				"tool", desc.Name, "server", desc.Server, "winner", existing.Server)
			continue
		}
		h.tools[desc.Name] = desc
	}
	return nil
}

// buildTransport constructs the SDK transport for a server config.
func buildTransport(ctx context.Context, cfg mcp.ServerConfig) (mcpsdk.Transport, error) {
	switch cfg.Transport {
	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcphost: http server %q requires a non-empty URL", cfg.Name)
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}, nil
	default: // stdio
		if cfg.Command == "" {
			return nil, fmt.Errorf("mcphost: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	}
}

// discoverTools lists the server's tools within the init timeout.
func (h *Host) discoverTools(ctx context.Context, sess *mcpsdk.ClientSession, server string) ([]mcp.ToolDescriptor, error) {
	listCtx, cancel := context.WithTimeout(ctx, h.cfg.InitTimeout)
	defer cancel()

	var out []mcp.ToolDescriptor
	for tool, err := range sess.Tools(listCtx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcphost: failed to list tools for server %q: %w", server, err)
		}
		out = append(out, mcp.ToolDescriptor{
			Name:        tool.Name,
			Server:      server,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return out, nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// Tools returns the federated catalogue, grouped by server registration
// order and sorted by name within each server.
func (h *Host) Tools() []mcp.ToolDescriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]mcp.ToolDescriptor, 0, len(h.tools))
	for _, server := range h.order {
		var names []string
		for name, desc := range h.tools {
			if desc.Server == server {
				names = append(names, name)
			}
		}
		sortStrings(names)
		for _, name := range names {
			out = append(out, h.tools[name])
		}
	}
	return out
}

// sortStrings is insertion sort; tool counts per server are small.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Lookup resolves a tool name to its registry entry.
func (h *Host) Lookup(name string) (mcp.ToolDescriptor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	desc, ok := h.tools[name]
	return desc, ok
}

// CallTool executes the named tool with JSON-encoded args under the owning
// server's circuit breaker and the configured call timeout.
//
// A non-nil *ToolResult with IsError set reports an application-level tool
// failure; the transport succeeded, so the breaker records a success. A Go
// error reports an availability or transport failure: unknown tools return
// [ErrToolNotFound], an open breaker returns [resilience.ErrCircuitOpen], a
// deadline hit returns a retryable [ErrToolTimeout], and everything else a
// retryable [ErrToolExecution].
func (h *Host) CallTool(ctx context.Context, name, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	desc, ok := h.tools[name]
	var conn *serverConn
	if ok {
		conn = h.servers[desc.Server]
	}
	h.mu.RUnlock()

	if !ok || conn == nil {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if !conn.breaker.Allow() {
		return nil, fmt.Errorf("%w: server %q", resilience.ErrCircuitOpen, desc.Server)
	}

	slog.Debug("tool.call.start", "tool", name, "server", desc.Server)
	start := time.Now()
	result, err := h.dispatch(ctx, conn, name, args)
	elapsed := time.Since(start)

	status := "ok"
	switch {
	case err != nil:
		conn.breaker.RecordFailure()
		status = "error"
	case result.IsError:
		// The server answered; only transport failures trip the breaker.
		conn.breaker.RecordSuccess()
		status = "tool_error"
	default:
		conn.breaker.RecordSuccess()
	}
	h.cfg.Metrics.RecordToolCall(ctx, name, desc.Server, status, elapsed.Seconds())
	slog.Debug("tool.call.end", "tool", name, "server", desc.Server,
		"status", status, "duration", elapsed)

	if err != nil {
		return nil, err
	}
	result.DurationMs = elapsed.Milliseconds()
	return result, nil
}

// dispatch performs the SDK call with the per-call timeout and classifies
// transport failures.
func (h *Host) dispatch(ctx context.Context, conn *serverConn, name, args string) (*mcp.ToolResult, error) {
	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("mcphost: invalid args JSON for tool %q: %w", name, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.CallTimeout)
	defer cancel()

	callResult, err := conn.session.CallTool(callCtx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: argsMap,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, resilience.Retryable(&ToolError{Tool: name, Server: conn.cfg.Name, Err: ErrToolTimeout})
		}
		return nil, resilience.Retryable(&ToolError{
			Tool: name, Server: conn.cfg.Name,
			Err: fmt.Errorf("%w: %v", ErrToolExecution, err),
		})
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return &mcp.ToolResult{
		Content: sb.String(),
		IsError: callResult.IsError,
	}, nil
}

// BreakerStats returns each server's breaker state in registration order.
func (h *Host) BreakerStats() []resilience.Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]resilience.Stats, 0, len(h.order))
	for _, name := range h.order {
		if conn, ok := h.servers[name]; ok {
			out = append(out, conn.breaker.Stats())
		}
	}
	return out
}

// Close shuts down all server connections in reverse registration order.
// Safe to call more than once.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	for i := len(h.order) - 1; i >= 0; i-- {
		name := h.order[i]
		conn, ok := h.servers[name]
		if !ok {
			continue
		}
		if err := conn.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcphost: closing server %q: %w", name, err))
		}
		delete(h.servers, name)
	}
	h.order = nil
	h.tools = make(map[string]mcp.ToolDescriptor)
	return errors.Join(errs...)
}

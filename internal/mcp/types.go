// Package mcp defines the interface for the engine's Model Context Protocol
// (MCP) federation layer.
//
// The host manages connections to one or more MCP tool servers, maintains a
// unified registry of the tools they expose, and executes tool calls on
// behalf of agents with per-server fault isolation.
//
// Lifecycle:
//
//  1. Call [Host.Connect] for each configured server.
//  2. Use [Host.Tools] to enumerate the federated tool catalogue.
//  3. Use [Host.CallTool] to run tools on behalf of agents.
//  4. Call [Host.Close] to release all connections.
//
// All methods must be safe for concurrent use.
package mcp

import (
	"context"

	"github.com/squadnet-ai/squadnet/internal/resilience"
)

// Transport identifies how the host reaches a server.
type Transport string

const (
	// TransportStdio spawns a subprocess and speaks MCP over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP speaks MCP over streamable HTTP.
	TransportStreamableHTTP Transport = "http"
)

// IsValid reports whether t names a supported transport. The empty string is
// valid and means stdio.
func (t Transport) IsValid() bool {
	return t == "" || t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies the server within the host. Must be unique.
	Name string `yaml:"name"`

	// Transport selects the connection mechanism. Empty means stdio.
	Transport Transport `yaml:"transport"`

	// Command is the executable to spawn for stdio transport.
	Command string `yaml:"command"`

	// Args are passed to the spawned executable.
	Args []string `yaml:"args"`

	// URL is the endpoint for the http transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables for the server process.
	Env map[string]string `yaml:"env"`
}

// ToolDescriptor is one entry in the federated tool registry.
type ToolDescriptor struct {
	// Name is the tool's identifier as exposed by its server.
	Name string

	// Server is the name of the server that provides the tool.
	Server string

	// Description is the tool's human-readable summary, surfaced to the LLM.
	Description string

	// InputSchema is the tool's JSON Schema for arguments.
	InputSchema map[string]any
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's textual output, ready for insertion into an LLM
	// context window.
	Content string

	// IsError indicates an application-level failure reported by the tool
	// itself. The transport succeeded; Content carries the error message.
	IsError bool

	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
}

// Host federates MCP servers behind a single tool registry.
//
// Implementations must be safe for concurrent use.
type Host interface {
	// Connect establishes a connection to the server described by cfg,
	// discovers its tools, and merges them into the registry. Registration is
	// all-or-nothing: a discovery failure leaves the registry unchanged.
	Connect(ctx context.Context, cfg ServerConfig) error

	// Tools returns the federated catalogue in server registration order.
	Tools() []ToolDescriptor

	// Lookup resolves a tool name to its registry entry.
	Lookup(name string) (ToolDescriptor, bool)

	// CallTool executes the named tool with JSON-encoded args. A non-nil
	// *ToolResult with IsError set reports an application-level tool failure;
	// a Go error reports transport, protocol, or availability failure.
	CallTool(ctx context.Context, name, args string) (*ToolResult, error)

	// BreakerStats returns the current state of each server's circuit
	// breaker, for status output.
	BreakerStats() []resilience.Stats

	// Close shuts down all server connections. Safe to call more than once.
	Close() error
}

// Package config provides the configuration schema and YAML loader for the
// SquadNet orchestration server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/squadnet-ai/squadnet/internal/mcp"
)

// LogLevel controls log verbosity for the SquadNet server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for SquadNet.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Retry         RetryConfig         `yaml:"retry"`
	Breaker       BreakerConfig       `yaml:"breaker"`
	Agents        []AgentConfig       `yaml:"agents"`
	MCP           MCPConfig           `yaml:"mcp"`
	Session       SessionConfig       `yaml:"session"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the ops endpoints (health probes and
	// Prometheus metrics), e.g. ":9090". Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// LLMConfig selects the language model shared by agents that do not override it.
type LLMConfig struct {
	// Model is the default model identifier (e.g., "claude-sonnet-4-0").
	Model string `yaml:"model"`

	// MaxTokens caps each completion. Default: 1024.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature. Zero means the provider default.
	Temperature float64 `yaml:"temperature"`
}

// OrchestrationConfig tunes channel and turn behaviour.
type OrchestrationConfig struct {
	// MaxHistory bounds the shared channel log. Default: 1000.
	MaxHistory int `yaml:"max_history"`

	// ContextWindow is how many recent messages each agent sees. Default: 20.
	ContextWindow int `yaml:"context_window"`

	// MaxResponders caps broadcast fan-out. Default: 3.
	MaxResponders int `yaml:"max_responders"`

	// MaxToolIterations bounds the tool loop within one agent turn. Default: 5.
	MaxToolIterations int `yaml:"max_tool_iterations"`

	// LLMTimeout bounds a single completion call. Default: 120s.
	LLMTimeout Duration `yaml:"llm_timeout"`

	// ToolTimeout bounds a single tool call. Default: 30s.
	ToolTimeout Duration `yaml:"tool_timeout"`

	// UserCallsign is the callsign the human operator transmits under.
	// Default: "Command".
	UserCallsign string `yaml:"user_callsign"`
}

// RetryConfig tunes the retry engine for LLM and tool calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the delay after the first failed attempt. Default: 1s.
	InitialDelay Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff delay. Default: 10s.
	MaxDelay Duration `yaml:"max_delay"`

	// Base is the exponential growth factor. Default: 2.
	Base float64 `yaml:"base"`

	// Jitter randomises delays when true. Default: true.
	Jitter *bool `yaml:"jitter"`
}

// BreakerConfig tunes the per-server circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failures that open a breaker.
	// Default: 5.
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold is the half-open successes needed to close. Default: 2.
	SuccessThreshold int `yaml:"success_threshold"`

	// RecoveryTimeout is how long an open breaker waits before probing.
	// Default: 60s.
	RecoveryTimeout Duration `yaml:"recovery_timeout"`
}

// AgentConfig describes a single agent on the net.
type AgentConfig struct {
	// ID is the unique internal identifier.
	ID string `yaml:"id"`

	// Callsign is the station name used on the net (e.g., "Alpha One").
	Callsign string `yaml:"callsign"`

	// Role is a short description injected into the system prompt.
	Role string `yaml:"role"`

	// SystemPrompt is the free-text persona for this agent.
	SystemPrompt string `yaml:"system_prompt"`

	// SquadLeader marks this agent as the net's coordinator. At most one
	// agent may be the squad leader.
	SquadLeader bool `yaml:"squad_leader"`

	// Model overrides the default LLM model for this agent.
	Model string `yaml:"model"`

	// Criteria configures when the agent speaks on undirected traffic.
	Criteria CriteriaConfig `yaml:"criteria"`
}

// CriteriaConfig selects the speaking criteria for an agent. All configured
// criteria are combined with OR; an empty block means direct address only
// (squad leaders additionally answer questions and coordination cues).
type CriteriaConfig struct {
	// Keywords fires on messages containing any of these words.
	Keywords []string `yaml:"keywords"`

	// Questions fires on open questions addressed to nobody in particular.
	Questions bool `yaml:"questions"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []mcp.ServerConfig `yaml:"servers"`
}

// SessionConfig holds session persistence settings.
type SessionConfig struct {
	// Path is the SQLite file for session snapshots. Empty disables
	// persistence.
	Path string `yaml:"path"`

	// ID names the session to create or resume. Empty generates a new ID.
	ID string `yaml:"id"`
}

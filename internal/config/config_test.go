package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/squadnet-ai/squadnet/internal/config"
)

const sampleYAML = `
server:
  log_level: debug

llm:
  model: claude-sonnet-4-0
  max_tokens: 2048
  temperature: 0.3

orchestration:
  max_history: 500
  context_window: 10
  max_responders: 2
  llm_timeout: 90s
  user_callsign: Base

retry:
  max_attempts: 4
  initial_delay: 500ms
  max_delay: 5s
  jitter: false

breaker:
  failure_threshold: 3
  recovery_timeout: 30s

agents:
  - id: lead
    callsign: Rescue Lead
    role: coordinator
    squad_leader: true
  - id: a1
    callsign: Alpha One
    role: weather specialist
    criteria:
      keywords: [weather, wind, visibility]
  - id: a2
    callsign: Alpha Two
    model: claude-opus-4-0
    criteria:
      questions: true

mcp:
  servers:
    - name: maps
      command: ./bin/maps-server
      args: [--region, north]
    - name: registry
      transport: http
      url: https://tools.example.com/mcp

session:
  path: sessions.db
  id: mission-42
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.LLM.Model != "claude-sonnet-4-0" || cfg.LLM.MaxTokens != 2048 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Orchestration.LLMTimeout.Std() != 90*time.Second {
		t.Errorf("llm_timeout = %s", cfg.Orchestration.LLMTimeout.Std())
	}
	if cfg.Orchestration.UserCallsign != "Base" {
		t.Errorf("user_callsign = %q", cfg.Orchestration.UserCallsign)
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.InitialDelay.Std() != 500*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Retry.Jitter == nil || *cfg.Retry.Jitter {
		t.Error("jitter: false should survive defaulting")
	}
	if cfg.Breaker.FailureThreshold != 3 || cfg.Breaker.RecoveryTimeout.Std() != 30*time.Second {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}
	if len(cfg.Agents) != 3 || !cfg.Agents[0].SquadLeader {
		t.Fatalf("agents = %+v", cfg.Agents)
	}
	if got := cfg.Agents[1].Criteria.Keywords; len(got) != 3 || got[0] != "weather" {
		t.Errorf("keywords = %v", got)
	}
	if len(cfg.MCP.Servers) != 2 || cfg.MCP.Servers[1].URL == "" {
		t.Errorf("servers = %+v", cfg.MCP.Servers)
	}
	if cfg.Session.ID != "mission-42" {
		t.Errorf("session = %+v", cfg.Session)
	}
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()
	minimal := `
llm:
  model: claude-sonnet-4-0
agents:
  - id: a1
    callsign: Alpha One
`
	cfg, err := config.LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("default log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Orchestration.MaxHistory != 1000 || cfg.Orchestration.ContextWindow != 20 {
		t.Errorf("orchestration defaults = %+v", cfg.Orchestration)
	}
	if cfg.Orchestration.MaxResponders != 3 || cfg.Orchestration.MaxToolIterations != 5 {
		t.Errorf("orchestration defaults = %+v", cfg.Orchestration)
	}
	if cfg.Orchestration.LLMTimeout.Std() != 120*time.Second || cfg.Orchestration.ToolTimeout.Std() != 30*time.Second {
		t.Errorf("timeout defaults = %+v", cfg.Orchestration)
	}
	if cfg.Orchestration.UserCallsign != "Command" {
		t.Errorf("user_callsign default = %q", cfg.Orchestration.UserCallsign)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay.Std() != time.Second ||
		cfg.Retry.MaxDelay.Std() != 10*time.Second || cfg.Retry.Base != 2 {
		t.Errorf("retry defaults = %+v", cfg.Retry)
	}
	if cfg.Retry.Jitter == nil || !*cfg.Retry.Jitter {
		t.Error("jitter should default to true")
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.SuccessThreshold != 2 ||
		cfg.Breaker.RecoveryTimeout.Std() != 60*time.Second {
		t.Errorf("breaker defaults = %+v", cfg.Breaker)
	}
	if cfg.LLM.MaxTokens != 1024 {
		t.Errorf("max_tokens default = %d", cfg.LLM.MaxTokens)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	bad := `
llm:
  model: claude-sonnet-4-0
  modle_typo: oops
agents:
  - id: a1
    callsign: Alpha One
`
	if _, err := config.LoadFromReader(strings.NewReader(bad)); err == nil {
		t.Error("expected decode error for unknown field")
	}
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no agents",
			yaml: "llm:\n  model: m\n",
			want: "at least one agent",
		},
		{
			name: "too many agents",
			yaml: "llm:\n  model: m\nagents:\n" + strings.Repeat("  - id: a\n    callsign: c\n", 7),
			want: "at most 6 agents",
		},
		{
			name: "missing model",
			yaml: "agents:\n  - id: a1\n    callsign: Alpha One\n",
			want: "llm.model is required",
		},
		{
			name: "duplicate id",
			yaml: "llm:\n  model: m\nagents:\n  - id: a1\n    callsign: Alpha One\n  - id: a1\n    callsign: Alpha Two\n",
			want: "duplicate",
		},
		{
			name: "colliding callsigns",
			yaml: "llm:\n  model: m\nagents:\n  - id: a1\n    callsign: Alpha One\n  - id: a2\n    callsign: alpha_one\n",
			want: "collides",
		},
		{
			name: "two squad leaders",
			yaml: "llm:\n  model: m\nagents:\n  - id: a1\n    callsign: Alpha One\n    squad_leader: true\n  - id: a2\n    callsign: Alpha Two\n    squad_leader: true\n",
			want: "squad leader already declared",
		},
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\nllm:\n  model: m\nagents:\n  - id: a1\n    callsign: Alpha One\n",
			want: "log_level",
		},
		{
			name: "stdio server without command",
			yaml: "llm:\n  model: m\nagents:\n  - id: a1\n    callsign: Alpha One\nmcp:\n  servers:\n    - name: maps\n",
			want: "command is required",
		},
		{
			name: "http server without url",
			yaml: "llm:\n  model: m\nagents:\n  - id: a1\n    callsign: Alpha One\nmcp:\n  servers:\n    - name: maps\n      transport: http\n",
			want: "url is required",
		},
		{
			name: "bad duration",
			yaml: "llm:\n  model: m\norchestration:\n  llm_timeout: soon\nagents:\n  - id: a1\n    callsign: Alpha One\n",
			want: "invalid duration",
		},
		{
			name: "retry zero base invalid after explicit set",
			yaml: "llm:\n  model: m\nretry:\n  base: 0.5\nagents:\n  - id: a1\n    callsign: Alpha One\n",
			want: "retry.base",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestPerAgentModelsSatisfyMissingDefault(t *testing.T) {
	t.Parallel()
	yaml := `
agents:
  - id: a1
    callsign: Alpha One
    model: claude-sonnet-4-0
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.ModelFor(cfg.Agents[0]); got != "claude-sonnet-4-0" {
		t.Errorf("ModelFor = %q", got)
	}
}

func TestModelForFallsBackToDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.ModelFor(cfg.Agents[0]); got != "claude-sonnet-4-0" {
		t.Errorf("fallback model = %q", got)
	}
	if got := cfg.ModelFor(cfg.Agents[2]); got != "claude-opus-4-0" {
		t.Errorf("override model = %q", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "squadnet.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Agents) != 3 {
		t.Errorf("agents = %d", len(cfg.Agents))
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

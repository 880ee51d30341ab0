package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/squadnet-ai/squadnet/internal/mcp"
	"github.com/squadnet-ai/squadnet/internal/voicenet"
)

// maxAgents bounds the squad roster size.
const maxAgents = 6

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued tuning knobs.
func (cfg *Config) applyDefaults() {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}

	o := &cfg.Orchestration
	if o.MaxHistory == 0 {
		o.MaxHistory = 1000
	}
	if o.ContextWindow == 0 {
		o.ContextWindow = 20
	}
	if o.MaxResponders == 0 {
		o.MaxResponders = 3
	}
	if o.MaxToolIterations == 0 {
		o.MaxToolIterations = 5
	}
	if o.LLMTimeout == 0 {
		o.LLMTimeout = Duration(120 * time.Second)
	}
	if o.ToolTimeout == 0 {
		o.ToolTimeout = Duration(30 * time.Second)
	}
	if o.UserCallsign == "" {
		o.UserCallsign = "Command"
	}

	r := &cfg.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = Duration(time.Second)
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = Duration(10 * time.Second)
	}
	if r.Base == 0 {
		r.Base = 2
	}
	if r.Jitter == nil {
		jitter := true
		r.Jitter = &jitter
	}

	b := &cfg.Breaker
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.SuccessThreshold == 0 {
		b.SuccessThreshold = 2
	}
	if b.RecoveryTimeout == 0 {
		b.RecoveryTimeout = Duration(60 * time.Second)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.LLM.Model == "" {
		hasOverride := len(cfg.Agents) > 0
		for _, a := range cfg.Agents {
			if a.Model == "" {
				hasOverride = false
				break
			}
		}
		if !hasOverride {
			errs = append(errs, errors.New("llm.model is required unless every agent sets its own model"))
		}
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens %d must be positive", cfg.LLM.MaxTokens))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 1 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 1]", cfg.LLM.Temperature))
	}

	o := cfg.Orchestration
	if o.MaxHistory < 0 || o.ContextWindow < 0 || o.MaxResponders < 0 || o.MaxToolIterations < 0 {
		errs = append(errs, errors.New("orchestration bounds must be positive"))
	}
	if o.ContextWindow > o.MaxHistory {
		slog.Warn("orchestration.context_window exceeds max_history; agents will see the whole log",
			"context_window", o.ContextWindow, "max_history", o.MaxHistory)
	}

	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must be at least 1", cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.Base < 1 {
		errs = append(errs, fmt.Errorf("retry.base %.2f must be at least 1", cfg.Retry.Base))
	}
	if cfg.Retry.MaxDelay < cfg.Retry.InitialDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay %s is below retry.initial_delay %s",
			cfg.Retry.MaxDelay.Std(), cfg.Retry.InitialDelay.Std()))
	}
	if cfg.Breaker.FailureThreshold < 1 || cfg.Breaker.SuccessThreshold < 1 {
		errs = append(errs, errors.New("breaker thresholds must be at least 1"))
	}

	// Agents
	if len(cfg.Agents) == 0 {
		errs = append(errs, errors.New("at least one agent is required"))
	}
	if len(cfg.Agents) > maxAgents {
		errs = append(errs, fmt.Errorf("at most %d agents are supported, got %d", maxAgents, len(cfg.Agents)))
	}
	idsSeen := make(map[string]int, len(cfg.Agents))
	callsignsSeen := make(map[string]int, len(cfg.Agents))
	leaderAt := -1
	for i, a := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if prev, ok := idsSeen[a.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of agents[%d]", prefix, a.ID, prev))
		} else {
			idsSeen[a.ID] = i
		}
		if a.Callsign == "" {
			errs = append(errs, fmt.Errorf("%s.callsign is required", prefix))
		} else {
			key := voicenet.Normalize(a.Callsign)
			if prev, ok := callsignsSeen[key]; ok {
				errs = append(errs, fmt.Errorf("%s.callsign %q collides with agents[%d]", prefix, a.Callsign, prev))
			} else {
				callsignsSeen[key] = i
			}
		}
		if a.SquadLeader {
			if leaderAt >= 0 {
				errs = append(errs, fmt.Errorf("%s: squad leader already declared at agents[%d]", prefix, leaderAt))
			} else {
				leaderAt = i
			}
		}
	}

	// MCP servers
	serverNames := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := serverNames[srv.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
		} else {
			serverNames[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, http", prefix, srv.Transport))
		}
		switch srv.Transport {
		case mcp.TransportStdio, "":
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case mcp.TransportStreamableHTTP:
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is http", prefix))
			}
		}
	}

	return errors.Join(errs...)
}

// ModelFor returns the model an agent should use, falling back to the
// shared default.
func (cfg *Config) ModelFor(a AgentConfig) string {
	if a.Model != "" {
		return a.Model
	}
	return cfg.LLM.Model
}

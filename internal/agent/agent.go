// Package agent implements the LLM-backed squad member: persona and prompt
// assembly, speaking criteria, and the bounded tool-use response loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/squadnet-ai/squadnet/internal/channel"
	"github.com/squadnet-ai/squadnet/internal/mcp"
	"github.com/squadnet-ai/squadnet/internal/memory"
	"github.com/squadnet-ai/squadnet/internal/observe"
	"github.com/squadnet-ai/squadnet/internal/resilience"
	"github.com/squadnet-ai/squadnet/pkg/provider/llm"
)

var (
	// ErrTurnOverflow is returned when the model keeps requesting tools past
	// the iteration cap.
	ErrTurnOverflow = errors.New("agent: tool iteration limit exceeded")

	// ErrAgentResponse is returned when an agent cannot produce a
	// transmission at all (LLM failure after retries).
	ErrAgentResponse = errors.New("agent: response failed")
)

// Config holds everything needed to create an [Agent].
//
// Required fields are ID, Callsign, Provider, and Channel. Host is optional;
// a nil Host means the agent has no tools. Zero-value tunables select the
// defaults.
type Config struct {
	// ID is the stable, unique identifier for this agent. Must not be empty.
	ID string

	// Callsign is the agent's radio callsign on the net. Must not be empty.
	Callsign string

	// Role is a one-line description of the agent's specialty, folded into
	// the system prompt.
	Role string

	// SystemPrompt is the persona's base instruction block.
	SystemPrompt string

	// SquadLeader marks this agent as the net's default responder.
	SquadLeader bool

	// Model overrides the provider's default model for this agent.
	Model string

	// Provider is the LLM backend. Must not be nil.
	Provider llm.Provider

	// Host is the MCP federation the agent draws tools from. May be nil.
	Host mcp.Host

	// Memory is the agent's scratchpad. Created empty when nil.
	Memory *memory.Memory

	// Criteria decides when the agent speaks on broadcasts. Defaults to
	// [DirectAddress] (plus [SquadLeader] semantics when SquadLeader is set).
	Criteria Criteria

	// Channel is the shared message log. Must not be nil.
	Channel *channel.Log

	// ContextWindow is the number of relevant messages included per turn.
	// Default: 20.
	ContextWindow int

	// MaxToolIterations bounds the tool-use loop per turn. Default: 5.
	MaxToolIterations int

	// LLMTimeout bounds a single completion call. Default: 120s.
	LLMTimeout time.Duration

	// Retry is the policy for transient LLM and tool failures. Zero value
	// selects [resilience.DefaultRetry].
	Retry resilience.RetryConfig

	// Metrics receives turn telemetry. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Agent is one LLM-backed squad member. Concurrent Respond calls are
// serialised per agent to preserve conversational coherence.
type Agent struct {
	id          string
	callsign    string
	role        string
	prompt      string
	squadLeader bool
	model       string
	provider    llm.Provider
	host        mcp.Host
	mem         *memory.Memory
	criteria    Criteria
	log         *channel.Log
	window      int
	maxIter     int
	llmTimeout  time.Duration
	retry       resilience.RetryConfig
	metrics     *observe.Metrics

	mu sync.Mutex
}

// New creates an Agent from the given configuration.
func New(cfg Config) (*Agent, error) {
	if cfg.ID == "" {
		return nil, errors.New("agent: ID must not be empty")
	}
	if cfg.Callsign == "" {
		return nil, errors.New("agent: Callsign must not be empty")
	}
	if cfg.Provider == nil {
		return nil, errors.New("agent: Provider must not be nil")
	}
	if cfg.Channel == nil {
		return nil, errors.New("agent: Channel must not be nil")
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.New(memory.Caps{})
	}
	if cfg.Criteria == nil {
		if cfg.SquadLeader {
			cfg.Criteria = SquadLeader{}
		} else {
			cfg.Criteria = DirectAddress{}
		}
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 20
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = 5
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 120 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetry()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Retry.OnRetry == nil {
		metrics := cfg.Metrics
		cfg.Retry.OnRetry = func(name string, _ int) {
			metrics.RecordRetry(context.Background(), name)
		}
	}

	return &Agent{
		id:          cfg.ID,
		callsign:    cfg.Callsign,
		role:        cfg.Role,
		prompt:      cfg.SystemPrompt,
		squadLeader: cfg.SquadLeader,
		model:       cfg.Model,
		provider:    cfg.Provider,
		host:        cfg.Host,
		mem:         cfg.Memory,
		criteria:    cfg.Criteria,
		log:         cfg.Channel,
		window:      cfg.ContextWindow,
		maxIter:     cfg.MaxToolIterations,
		llmTimeout:  cfg.LLMTimeout,
		retry:       cfg.Retry,
		metrics:     cfg.Metrics,
	}, nil
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// Callsign returns the agent's radio callsign.
func (a *Agent) Callsign() string { return a.callsign }

// IsSquadLeader reports whether this agent is the net's default responder.
func (a *Agent) IsSquadLeader() bool { return a.squadLeader }

// Memory returns the agent's scratchpad.
func (a *Agent) Memory() *memory.Memory { return a.mem }

// ShouldRespond applies the agent's speaking criteria to the given traffic.
func (a *Agent) ShouldRespond(recent []channel.Message) bool {
	return a.criteria.ShouldRespond(a.id, a.callsign, recent)
}

// Respond runs one full turn: assemble context, call the model, execute any
// requested tools, and return the cleaned transmission text. Memory commands
// embedded in the reply are applied and stripped before it is returned. An
// empty return with a nil error means the agent has nothing to transmit.
//
// Returns [ErrTurnOverflow] when the model will not stop requesting tools,
// or an error wrapping [ErrAgentResponse] when no reply could be produced.
func (a *Agent) Respond(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := time.Now()
	slog.Info("agent.turn.start", "agent_id", a.id, "callsign", a.callsign)

	text, err := a.runTurn(ctx)

	elapsed := time.Since(start)
	a.metrics.TurnDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("agent_id", a.id)))
	if err != nil {
		slog.Warn("agent.turn.end", "agent_id", a.id, "error", err, "duration", elapsed)
		return "", err
	}
	if text == "" {
		slog.Info("agent.turn.silent", "agent_id", a.id, "duration", elapsed)
		return "", nil
	}
	a.metrics.AgentResponses.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("agent_id", a.id)))
	slog.Info("agent.turn.end", "agent_id", a.id, "duration", elapsed)
	return text, nil
}

// runTurn drives the bounded tool-use loop: one initial completion, then up
// to maxIter tool rounds, each followed by another completion. The turn
// overflows only when the model still requests tools after the final round.
func (a *Agent) runTurn(ctx context.Context) (string, error) {
	messages := a.historyMessages()
	tools := a.toolDefinitions()

	resp, err := a.complete(ctx, messages, tools)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrAgentResponse, a.callsign, err)
	}

	for round := 0; resp.StopReason == llm.StopToolUse && len(resp.ToolUses) > 0; round++ {
		if round == a.maxIter {
			return "", fmt.Errorf("%w: %s after %d tool rounds", ErrTurnOverflow, a.callsign, a.maxIter)
		}

		messages = append(messages, resp.AsMessage())
		results := make([]llm.ToolResult, 0, len(resp.ToolUses))
		for _, tu := range resp.ToolUses {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			results = append(results, a.executeTool(ctx, tu))
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, ToolResults: results})

		resp, err = a.complete(ctx, messages, tools)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrAgentResponse, a.callsign, err)
		}
	}
	return a.finishTurn(resp.Text), nil
}

// complete performs one LLM call under the timeout, retrying rate limits.
func (a *Agent) complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := resilience.Do(ctx, a.retry, "llm.complete", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()

		start := time.Now()
		var err error
		resp, err = a.provider.Complete(callCtx, llm.CompletionRequest{
			Model:    a.model,
			System:   a.systemPrompt(tools),
			Messages: messages,
			Tools:    tools,
		})
		a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("agent_id", a.id)))
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) {
				return resilience.Retryable(err)
			}
			return err
		}
		return nil
	})
	return resp, err
}

// executeTool runs one requested tool and renders the outcome as a result
// the model can act on. Infrastructure failures come back as error results,
// never as a failed turn.
func (a *Agent) executeTool(ctx context.Context, tu llm.ToolUse) llm.ToolResult {
	if a.host == nil {
		return llm.ToolResult{
			ToolUseID: tu.ID,
			Content:   fmt.Sprintf("Tool %q is not available: no tool servers configured.", tu.Name),
			IsError:   true,
		}
	}

	args := string(tu.Input)
	if args == "" {
		args = "{}"
	}

	var result *mcp.ToolResult
	err := resilience.Do(ctx, a.retry, "tool."+tu.Name, func(ctx context.Context) error {
		var callErr error
		result, callErr = a.host.CallTool(ctx, tu.Name, args)
		return callErr
	})
	if err != nil {
		return llm.ToolResult{ToolUseID: tu.ID, Content: describeToolFailure(tu.Name, err), IsError: true}
	}
	return llm.ToolResult{ToolUseID: tu.ID, Content: result.Content, IsError: result.IsError}
}

// describeToolFailure maps infrastructure errors to text the model can relay
// over the net without leaking internals.
func describeToolFailure(name string, err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return fmt.Sprintf("Tool %q is temporarily unavailable: its server is failing and has been isolated. Report the capability as down.", name)
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timed out"):
		return fmt.Sprintf("Tool %q did not answer in time. Proceed without it or try again later.", name)
	default:
		return fmt.Sprintf("Tool %q failed: %v. Proceed without it.", name, err)
	}
}

// finishTurn applies memory commands. An empty result after stripping means
// the agent declines to transmit this turn.
func (a *Agent) finishTurn(raw string) string {
	return strings.TrimSpace(a.mem.ApplyCommands(raw))
}

// historyMessages converts the agent's context window into LLM conversation
// history. Consecutive same-role entries are coalesced.
func (a *Agent) historyMessages() []llm.Message {
	window := a.log.ContextWindow(a.callsign, a.window)

	var out []llm.Message
	for _, m := range window {
		role := llm.RoleUser
		text := m.Content
		switch {
		case m.SenderID == a.id:
			role = llm.RoleAssistant
		case m.Kind == channel.KindSystem:
			text = "[SYSTEM] " + text
		default:
			who := m.SenderCallsign
			if who == "" {
				who = m.SenderID
			}
			text = "[" + who + "]: " + text
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + text
			continue
		}
		out = append(out, llm.Message{Role: role, Content: text})
	}

	if len(out) == 0 || out[len(out)-1].Role == llm.RoleAssistant {
		out = append(out, llm.UserText("Channel is active. Monitoring communications."))
	}
	return out
}

// toolDefinitions translates the MCP registry into provider tool definitions.
func (a *Agent) toolDefinitions() []llm.ToolDefinition {
	if a.host == nil {
		return nil
	}
	descs := a.host.Tools()
	out := make([]llm.ToolDefinition, 0, len(descs))
	for _, d := range descs {
		schema := d.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Server:      d.Server,
			InputSchema: schema,
		})
	}
	return out
}

// systemPrompt layers persona, voice protocol, memory, and tool guidance.
func (a *Agent) systemPrompt(tools []llm.ToolDefinition) string {
	var b strings.Builder
	b.WriteString(a.prompt)
	if a.role != "" {
		fmt.Fprintf(&b, "\n\nRole: %s", a.role)
	}
	fmt.Fprintf(&b, "\n\nYou are %q on a shared radio net.", a.callsign)
	if a.squadLeader {
		b.WriteString(" You are the squad leader: coordinate the team and answer anything nobody else picks up.")
	}
	b.WriteString(`

Voice procedure:
- Address one station as "<recipient>, this is <your callsign>, <message>, over."
- Address everyone as "All stations, this is <your callsign>, <message>, over."
- Acknowledge with "Roger" or "Copy". Keep transmissions short.`)

	if frag := a.mem.PromptFragment(); frag != "" {
		b.WriteString("\n\n")
		b.WriteString(frag)
	}

	b.WriteString(`

To remember something across turns, put it on its own line:
MEMORIZE[task|fact|decision|concern|note]: <text>
Facts use key=value form. These lines are stripped before transmission.`)

	if len(tools) > 0 {
		b.WriteString("\n\nAvailable tools:")
		for _, t := range tools {
			if t.Server != "" {
				fmt.Fprintf(&b, "\n- %s (%s): %s", t.Name, t.Server, t.Description)
			} else {
				fmt.Fprintf(&b, "\n- %s: %s", t.Name, t.Description)
			}
		}
	}
	return b.String()
}

// SnapshotMemory serialises the agent's scratchpad for session persistence.
func (a *Agent) SnapshotMemory() map[string]any {
	return a.mem.Snapshot()
}

// RestoreMemory replaces the scratchpad from a snapshot, tolerating values
// that went through a JSON round trip.
func (a *Agent) RestoreMemory(data map[string]any) {
	a.mem.Restore(data)
}

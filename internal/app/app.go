// Package app wires all SquadNet subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the operator console loop, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithMCPHost, WithMetrics, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/squadnet-ai/squadnet/internal/agent"
	"github.com/squadnet-ai/squadnet/internal/agent/orchestrator"
	"github.com/squadnet-ai/squadnet/internal/channel"
	"github.com/squadnet-ai/squadnet/internal/config"
	"github.com/squadnet-ai/squadnet/internal/health"
	"github.com/squadnet-ai/squadnet/internal/mcp"
	"github.com/squadnet-ai/squadnet/internal/mcp/mcphost"
	"github.com/squadnet-ai/squadnet/internal/observe"
	"github.com/squadnet-ai/squadnet/internal/resilience"
	"github.com/squadnet-ai/squadnet/internal/snapshot"
	"github.com/squadnet-ai/squadnet/pkg/provider/llm"
)

// Providers holds the external backends the app depends on. Populated by
// main.go from the environment.
type Providers struct {
	// LLM is the completion backend shared by all agents. Must not be nil.
	LLM llm.Provider
}

// App owns all subsystem lifetimes and coordinates the squad net.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	log    *channel.Log
	host   mcp.Host
	store  *snapshot.Store
	agents []*agent.Agent
	orch   *orchestrator.Orchestrator

	session sessionState

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMCPHost injects an MCP host instead of creating one from config.
func WithMCPHost(h mcp.Host) Option {
	return func(a *App) { a.host = h }
}

// WithStore injects a snapshot store instead of opening one from config.
func WithStore(s *snapshot.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics set instead of using the global provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together: the shared channel
// log, the snapshot store, the MCP host with its configured servers, the
// agent roster, and the orchestrator. When the config names a session that
// exists in the store, its state is restored before New returns.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.log = channel.NewLog(cfg.Orchestration.MaxHistory)

	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initMCP(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}
	if err := a.initAgents(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init agents: %w", err)
	}
	if err := a.initSession(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init session: %w", err)
	}
	a.initOps()
	return a, nil
}

// initOps starts the HTTP ops server (probes, status, Prometheus metrics)
// when a listen address is configured.
func (a *App) initOps() {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return
	}

	var pinger func(context.Context) error
	if a.store != nil {
		pinger = a.store.Ping
	}
	h := health.New(a.session.id, a.log.Len, a.host,
		health.CheckStore(pinger),
		health.CheckTools(a.host),
	)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server error", "addr", addr, "error", err)
		}
	}()
	slog.Info("ops server listening", "addr", addr)
	a.closers = append(a.closers, srv.Close)
}

// initStore opens the snapshot store when session persistence is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}
	if a.cfg.Session.Path == "" {
		return nil
	}
	store, err := snapshot.Open(ctx, a.cfg.Session.Path)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return nil
}

// initMCP sets up the MCP host and connects the configured servers. A server
// that fails to connect is skipped with a warning so the net can operate with
// whatever capabilities remain.
func (a *App) initMCP(ctx context.Context) error {
	if a.host == nil {
		host := mcphost.New(mcphost.Config{
			CallTimeout: a.cfg.Orchestration.ToolTimeout.Std(),
			Breaker: resilience.BreakerConfig{
				FailureThreshold: a.cfg.Breaker.FailureThreshold,
				SuccessThreshold: a.cfg.Breaker.SuccessThreshold,
				RecoveryTimeout:  a.cfg.Breaker.RecoveryTimeout.Std(),
			},
			Metrics: a.metrics,
		})
		a.host = host
		a.closers = append(a.closers, host.Close)
	}

	connected := 0
	for _, srv := range a.cfg.MCP.Servers {
		if err := a.host.Connect(ctx, srv); err != nil {
			slog.Warn("mcp server unavailable, continuing without it",
				"server", srv.Name, "error", err)
			continue
		}
		connected++
		slog.Info("mcp.connect", "server", srv.Name)
	}
	if len(a.cfg.MCP.Servers) > 0 {
		slog.Info("mcp federation ready",
			"connected", connected, "configured", len(a.cfg.MCP.Servers),
			"tools", len(a.host.Tools()))
	}
	return nil
}

// initAgents creates the roster and assembles the orchestrator.
func (a *App) initAgents() error {
	retry := retryPolicy(a.cfg.Retry)

	agents := make([]*agent.Agent, 0, len(a.cfg.Agents))
	for i, ac := range a.cfg.Agents {
		ag, err := agent.New(agent.Config{
			ID:                ac.ID,
			Callsign:          ac.Callsign,
			Role:              ac.Role,
			SystemPrompt:      ac.SystemPrompt,
			SquadLeader:       ac.SquadLeader,
			Model:             a.cfg.ModelFor(ac),
			Provider:          a.providers.LLM,
			Host:              a.host,
			Criteria:          buildCriteria(ac),
			Channel:           a.log,
			ContextWindow:     a.cfg.Orchestration.ContextWindow,
			MaxToolIterations: a.cfg.Orchestration.MaxToolIterations,
			LLMTimeout:        a.cfg.Orchestration.LLMTimeout.Std(),
			Retry:             retry,
			Metrics:           a.metrics,
		})
		if err != nil {
			return fmt.Errorf("agent %q (index %d): %w", ac.Callsign, i, err)
		}
		agents = append(agents, ag)
		slog.Info("agent ready", "id", ac.ID, "callsign", ac.Callsign, "squad_leader", ac.SquadLeader)
	}
	a.agents = agents

	orch, err := orchestrator.New(orchestrator.Config{
		Channel:       a.log,
		Agents:        agents,
		UserCallsign:  a.cfg.Orchestration.UserCallsign,
		MaxResponders: a.cfg.Orchestration.MaxResponders,
	})
	if err != nil {
		return err
	}
	a.orch = orch
	a.metrics.ActiveAgents.Add(context.Background(), int64(len(agents)))
	return nil
}

// retryPolicy converts the config block into the resilience policy.
func retryPolicy(rc config.RetryConfig) resilience.RetryConfig {
	jitter := true
	if rc.Jitter != nil {
		jitter = *rc.Jitter
	}
	return resilience.RetryConfig{
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: rc.InitialDelay.Std(),
		MaxDelay:     rc.MaxDelay.Std(),
		Base:         rc.Base,
		Jitter:       jitter,
	}
}

// buildCriteria assembles the speaking criteria for one configured agent.
// Direct address always fires; squad leaders carry their coordination
// duties on top of anything configured.
func buildCriteria(ac config.AgentConfig) agent.Criteria {
	var crits agent.Composite
	if ac.SquadLeader {
		crits = append(crits, agent.SquadLeader{})
	} else {
		crits = append(crits, agent.DirectAddress{})
	}
	if len(ac.Criteria.Keywords) > 0 {
		crits = append(crits, agent.Keywords{Words: ac.Criteria.Keywords})
	}
	if ac.Criteria.Questions {
		crits = append(crits, agent.Question{})
	}
	if len(crits) == 1 {
		return crits[0]
	}
	return crits
}

// Channel returns the shared message log.
func (a *App) Channel() *channel.Log { return a.log }

// Orchestrator returns the squad orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// SessionID returns the active session identifier.
func (a *App) SessionID() string { return a.session.id }

// HandleUserMessage routes one operator transmission through the squad.
func (a *App) HandleUserMessage(ctx context.Context, content string) ([]channel.Message, error) {
	return a.orch.HandleUserMessage(ctx, content)
}

// Run executes the operator console loop: read a line, route it, print every
// message the net produced in response. Console commands start with "/":
//
//	/status    show breaker and roster state
//	/sessions  list stored sessions
//	/export    print the session transcript
//	/save      persist the session now
//	/quit      exit the loop
//
// Run returns when ctx is cancelled, input is exhausted, or /quit is entered.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	fmt.Fprintf(out, "SquadNet session %s. %d stations on the net.\n", a.session.id, len(a.agents))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := a.runCommand(ctx, line, out); quit {
					return nil
				}
				continue
			}
			a.handleLine(ctx, line, out)
		}
	}
}

// handleLine routes one transmission and prints the resulting traffic.
func (a *App) handleLine(ctx context.Context, line string, out io.Writer) {
	before := a.log.Len()
	if _, err := a.HandleUserMessage(ctx, line); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	// Everything after the operator's own message: replies and any fault
	// notices, in completion order.
	all := a.log.All()
	for _, m := range all[min(before+1, len(all)):] {
		fmt.Fprintln(out, m.DisplayLine())
	}
}

// runCommand executes one console command. It reports whether the loop
// should exit.
func (a *App) runCommand(ctx context.Context, line string, out io.Writer) bool {
	switch line {
	case "/quit", "/exit":
		return true
	case "/save":
		if err := a.SaveSession(ctx); err != nil {
			fmt.Fprintf(out, "save failed: %v\n", err)
		} else {
			fmt.Fprintf(out, "session %s saved.\n", a.session.id)
		}
	case "/status":
		a.printStatus(out)
	case "/export":
		text, err := a.ExportTranscript()
		if err != nil {
			fmt.Fprintf(out, "export failed: %v\n", err)
		} else {
			fmt.Fprint(out, text)
		}
	case "/sessions":
		a.printSessions(ctx, out)
	default:
		fmt.Fprintf(out, "unknown command %q (try /status, /sessions, /export, /save, /quit)\n", line)
	}
	return false
}

// printSessions lists what the store holds, newest first.
func (a *App) printSessions(ctx context.Context, out io.Writer) {
	infos, err := a.ListSessions(ctx, 20, 0)
	if err != nil {
		fmt.Fprintf(out, "list failed: %v\n", err)
		return
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no stored sessions")
		return
	}
	for _, info := range infos {
		fmt.Fprintf(out, "  %s  updated %s\n", info.SessionID, info.UpdatedAt.Format(time.RFC3339))
	}
}

// printStatus renders roster and tool federation health.
func (a *App) printStatus(out io.Writer) {
	fmt.Fprintf(out, "session %s, %d messages on channel\n", a.session.id, a.log.Len())
	for _, ag := range a.agents {
		role := "member"
		if ag.IsSquadLeader() {
			role = "squad leader"
		}
		fmt.Fprintf(out, "  %-16s %s\n", ag.Callsign(), role)
	}
	stats := a.host.BreakerStats()
	if len(stats) == 0 {
		fmt.Fprintln(out, "  no tool servers connected")
		return
	}
	for _, st := range stats {
		fmt.Fprintf(out, "  server %-16s %s (failures: %d)\n", st.Name, st.State, st.ConsecutiveFailures)
	}
}

// Shutdown saves the session and tears down all subsystems in reverse-init
// order. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.SaveSession(ctx); err != nil {
			slog.Warn("session save on shutdown failed", "error", err)
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll tears down whatever New managed to build before failing.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("cleanup error", "error", err)
		}
	}
	a.closers = nil
}

// sessionState tracks the identity of the active session.
type sessionState struct {
	id        string
	createdAt time.Time
}

// newSessionID generates a fresh session identifier.
func newSessionID() string {
	return "session-" + uuid.NewString()
}

// Package orchestrator routes traffic on the shared channel to the right
// agents: directed messages go to the addressed station, broadcasts fan out
// to every agent whose speaking criteria fire, capped and prioritised with
// the squad leader first.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/squadnet-ai/squadnet/internal/agent"
	"github.com/squadnet-ai/squadnet/internal/channel"
	"github.com/squadnet-ai/squadnet/internal/resilience"
	"github.com/squadnet-ai/squadnet/internal/voicenet"
)

// defaultMaxResponders caps how many agents answer a single broadcast.
const defaultMaxResponders = 3

// Config holds everything needed to create an [Orchestrator].
type Config struct {
	// Channel is the shared message log. Must not be nil.
	Channel *channel.Log

	// Agents is the squad roster in priority order (after the leader).
	// Must hold between 1 and 6 agents with unique callsigns.
	Agents []*agent.Agent

	// UserCallsign is the callsign the human operator transmits under.
	// Default: "Command".
	UserCallsign string

	// MaxResponders caps broadcast fan-out. Default: 3.
	MaxResponders int
}

// Orchestrator coordinates the squad on the shared channel.
//
// All exported methods are safe for concurrent use.
type Orchestrator struct {
	log           *channel.Log
	agents        []*agent.Agent // registration order
	leader        *agent.Agent   // nil when no squad leader configured
	userCallsign  string
	maxResponders int

	mu sync.Mutex // serialises HandleUserMessage turns
}

// New creates an Orchestrator from the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Channel == nil {
		return nil, errors.New("orchestrator: Channel must not be nil")
	}
	if len(cfg.Agents) == 0 || len(cfg.Agents) > 6 {
		return nil, fmt.Errorf("orchestrator: need 1 to 6 agents, got %d", len(cfg.Agents))
	}
	if cfg.UserCallsign == "" {
		cfg.UserCallsign = "Command"
	}
	if cfg.MaxResponders <= 0 {
		cfg.MaxResponders = defaultMaxResponders
	}

	var leader *agent.Agent
	seen := make(map[string]string, len(cfg.Agents))
	for _, a := range cfg.Agents {
		key := voicenet.Normalize(a.Callsign())
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("orchestrator: callsigns %q and %q collide", prev, a.Callsign())
		}
		seen[key] = a.Callsign()
		if a.IsSquadLeader() {
			if leader != nil {
				return nil, fmt.Errorf("orchestrator: multiple squad leaders: %q and %q", leader.Callsign(), a.Callsign())
			}
			leader = a
		}
	}

	return &Orchestrator{
		log:           cfg.Channel,
		agents:        cfg.Agents,
		leader:        leader,
		userCallsign:  cfg.UserCallsign,
		maxResponders: cfg.MaxResponders,
	}, nil
}

// Agents returns the roster in registration order.
func (o *Orchestrator) Agents() []*agent.Agent {
	return o.agents
}

// Leader returns the squad leader, or nil when none is configured.
func (o *Orchestrator) Leader() *agent.Agent {
	return o.leader
}

// AgentByCallsign resolves a callsign (normalised comparison) to its agent.
func (o *Orchestrator) AgentByCallsign(callsign string) (*agent.Agent, bool) {
	for _, a := range o.agents {
		if voicenet.Match(a.Callsign(), callsign) {
			return a, true
		}
	}
	return nil, false
}

// HandleUserMessage posts the operator's transmission to the channel, routes
// it, runs the selected agents concurrently, and returns their replies in
// priority order (leader first, then registration order). Replies land on
// the channel as each agent finishes; a failed agent produces a system
// notice instead of a reply and never aborts the others. An agent that
// returns no text posts nothing and does not consume a response slot, so an
// all-silent broadcast still triggers the squad leader fallback.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, content string) ([]channel.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userMsg := o.log.Post("user", o.userCallsign, content, channel.KindUser)
	responders := o.selectResponders(userMsg)
	slog.Debug("orchestrator.route",
		"directed", !userMsg.IsBroadcast && userMsg.RecipientCallsign != "",
		"responders", len(responders))

	replies := o.dispatch(ctx, responders)

	// Fallback: on a broadcast nobody picked up, the leader answers once.
	if len(replies) == 0 && o.leader != nil && isUndirected(userMsg) && !containsAgent(responders, o.leader) {
		replies = o.dispatch(ctx, []*agent.Agent{o.leader})
	}
	return replies, nil
}

// isUndirected reports whether the message was broadcast or carried no
// recipient at all.
func isUndirected(m channel.Message) bool {
	return m.IsBroadcast || m.RecipientCallsign == ""
}

// selectResponders picks the agents for one inbound message.
func (o *Orchestrator) selectResponders(m channel.Message) []*agent.Agent {
	if !isUndirected(m) {
		if a, ok := o.AgentByCallsign(m.RecipientCallsign); ok {
			return []*agent.Agent{a}
		}
		// Unknown station: the leader covers it when present.
		if o.leader != nil {
			return []*agent.Agent{o.leader}
		}
		return nil
	}

	recent := o.log.Recent(o.maxResponders + len(o.agents))
	var picked []*agent.Agent
	if o.leader != nil && o.leader.ShouldRespond(recent) {
		picked = append(picked, o.leader)
	}
	for _, a := range o.agents {
		if len(picked) >= o.maxResponders {
			break
		}
		if a == o.leader || containsAgent(picked, a) {
			continue
		}
		if a.ShouldRespond(recent) {
			picked = append(picked, a)
		}
	}
	return picked
}

// dispatch runs the responders concurrently. Successful replies are appended
// to the channel in completion order; the returned slice preserves responder
// priority order.
func (o *Orchestrator) dispatch(ctx context.Context, responders []*agent.Agent) []channel.Message {
	if len(responders) == 0 {
		return nil
	}

	results := make([]*channel.Message, len(responders))
	var g errgroup.Group
	for i, a := range responders {
		g.Go(func() error {
			text, err := a.Respond(ctx)
			if err != nil {
				o.postFault(a, err)
				return nil
			}
			if text == "" {
				slog.Debug("orchestrator.agent_silent", "agent_id", a.ID())
				return nil
			}
			m := o.log.Post(a.ID(), a.Callsign(), text, channel.KindAgent)
			results[i] = &m
			return nil
		})
	}
	_ = g.Wait()

	out := make([]channel.Message, 0, len(responders))
	for _, m := range results {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// postFault records an agent failure on the channel as a system notice,
// classified without internal detail.
func (o *Orchestrator) postFault(a *agent.Agent, err error) {
	class := "unable to respond"
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		class = "did not respond in time"
	case errors.Is(err, agent.ErrTurnOverflow):
		class = "broke off mid-task"
	case errors.Is(err, resilience.ErrCircuitOpen):
		class = "lost its tool uplink"
	}
	slog.Warn("orchestrator.agent_fault", "agent_id", a.ID(), "error", err)
	o.log.Post("system", "", fmt.Sprintf("%s %s.", a.Callsign(), class), channel.KindSystem)
}

// containsAgent reports whether list holds a.
func containsAgent(list []*agent.Agent, a *agent.Agent) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

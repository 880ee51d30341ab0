package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/squadnet-ai/squadnet/internal/agent"
	"github.com/squadnet-ai/squadnet/internal/channel"
	"github.com/squadnet-ai/squadnet/internal/observe"
	"github.com/squadnet-ai/squadnet/internal/resilience"
	llmmock "github.com/squadnet-ai/squadnet/pkg/provider/llm/mock"
)

// squad bundles a test roster with each agent's scripted provider.
type squad struct {
	log       *channel.Log
	orch      *Orchestrator
	providers map[string]*llmmock.Provider
}

// member describes one agent to build.
type member struct {
	id       string
	callsign string
	leader   bool
	criteria agent.Criteria
}

func buildSquad(t *testing.T, members []member) *squad {
	t.Helper()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	log := channel.NewLog(100)
	providers := make(map[string]*llmmock.Provider, len(members))
	agents := make([]*agent.Agent, 0, len(members))
	for _, m := range members {
		p := &llmmock.Provider{}
		providers[m.id] = p
		a, err := agent.New(agent.Config{
			ID:          m.id,
			Callsign:    m.callsign,
			Provider:    p,
			Channel:     log,
			SquadLeader: m.leader,
			Criteria:    m.criteria,
			Metrics:     metrics,
			Retry: resilience.RetryConfig{
				MaxAttempts:  1,
				InitialDelay: time.Microsecond,
				MaxDelay:     time.Millisecond,
				Base:         2,
			},
		})
		if err != nil {
			t.Fatalf("agent.New(%s): %v", m.id, err)
		}
		agents = append(agents, a)
	}
	orch, err := New(Config{Channel: log, Agents: agents})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &squad{log: log, orch: orch, providers: providers}
}

func defaultSquad(t *testing.T) *squad {
	return buildSquad(t, []member{
		{id: "lead", callsign: "Rescue Lead", leader: true},
		{id: "a1", callsign: "Alpha One", criteria: agent.Keywords{Words: []string{"weather"}}},
		{id: "a2", callsign: "Alpha Two", criteria: agent.Keywords{Words: []string{"medic"}}},
	})
}

func TestDirectedMessageSingleResponder(t *testing.T) {
	t.Parallel()
	s := defaultSquad(t)
	s.providers["a1"].QueueText("Command, this is Alpha One, on station, over.")

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"Alpha One, this is Command, report status, over.")
	if err != nil {
		t.Fatalf("HandleUserMessage: %v", err)
	}
	if len(replies) != 1 || replies[0].SenderID != "a1" {
		t.Fatalf("replies = %+v, want one from a1", replies)
	}
	if s.providers["lead"].CallCount() != 0 || s.providers["a2"].CallCount() != 0 {
		t.Error("only the addressed agent should respond")
	}
	// Channel carries user message then reply.
	all := s.log.All()
	if len(all) != 2 || all[0].Kind != channel.KindUser || all[1].SenderID != "a1" {
		t.Errorf("log = %+v", all)
	}
}

func TestDirectedToUnknownStationFallsToLeader(t *testing.T) {
	t.Parallel()
	s := defaultSquad(t)
	s.providers["lead"].QueueText("Command, this is Rescue Lead, no station by that name on this net, over.")

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"Charlie Five, this is Command, report, over.")
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 1 || replies[0].SenderID != "lead" {
		t.Errorf("replies = %+v, want leader covering unknown station", replies)
	}
}

func TestBroadcastFanOutWithLeaderFirst(t *testing.T) {
	t.Parallel()
	s := buildSquad(t, []member{
		{id: "lead", callsign: "Rescue Lead", leader: true, criteria: alwaysRespond{}},
		{id: "a1", callsign: "Alpha One", criteria: alwaysRespond{}},
		{id: "a2", callsign: "Alpha Two", criteria: alwaysRespond{}},
	})
	s.providers["lead"].QueueText("Copy, coordinating.")
	s.providers["a1"].QueueText("Alpha One checking in.")
	s.providers["a2"].QueueText("Alpha Two checking in.")

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"All stations, this is Command, check in, over.")
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 3 {
		t.Fatalf("replies = %d, want 3", len(replies))
	}
	// Priority order: leader first, then registration order.
	if replies[0].SenderID != "lead" || replies[1].SenderID != "a1" || replies[2].SenderID != "a2" {
		t.Errorf("reply order = %s, %s, %s", replies[0].SenderID, replies[1].SenderID, replies[2].SenderID)
	}
}

// alwaysRespond fires on any non-self message.
type alwaysRespond struct{}

func (alwaysRespond) ShouldRespond(agentID, _ string, recent []channel.Message) bool {
	return len(recent) > 0 && recent[len(recent)-1].SenderID != agentID
}

func TestBroadcastResponderCap(t *testing.T) {
	t.Parallel()
	members := []member{
		{id: "a1", callsign: "Alpha One", criteria: alwaysRespond{}},
		{id: "a2", callsign: "Alpha Two", criteria: alwaysRespond{}},
		{id: "a3", callsign: "Alpha Three", criteria: alwaysRespond{}},
		{id: "a4", callsign: "Alpha Four", criteria: alwaysRespond{}},
		{id: "a5", callsign: "Alpha Five", criteria: alwaysRespond{}},
	}
	s := buildSquad(t, members)
	for _, m := range members {
		s.providers[m.id].QueueText(m.callsign + " checking in.")
	}

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"All stations, this is Command, check in, over.")
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 3 {
		t.Fatalf("replies = %d, want cap of 3", len(replies))
	}
	if replies[0].SenderID != "a1" || replies[1].SenderID != "a2" || replies[2].SenderID != "a3" {
		t.Errorf("cap should keep registration order: %+v", replies)
	}
	if s.providers["a4"].CallCount() != 0 || s.providers["a5"].CallCount() != 0 {
		t.Error("agents beyond the cap must not be invoked")
	}
}

func TestBroadcastNobodyFiresLeaderFallback(t *testing.T) {
	t.Parallel()
	s := buildSquad(t, []member{
		{id: "lead", callsign: "Rescue Lead", leader: true, criteria: neverRespond{}},
		{id: "a1", callsign: "Alpha One", criteria: neverRespond{}},
	})
	s.providers["lead"].QueueText("Command, this is Rescue Lead, copy your last, over.")

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"All stations, this is Command, proceed as planned, over.")
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 1 || replies[0].SenderID != "lead" {
		t.Errorf("replies = %+v, want leader fallback", replies)
	}
}

type neverRespond struct{}

func (neverRespond) ShouldRespond(string, string, []channel.Message) bool { return false }

func TestBroadcastAllSilentFallsToLeader(t *testing.T) {
	t.Parallel()
	s := buildSquad(t, []member{
		{id: "lead", callsign: "Rescue Lead", leader: true, criteria: neverRespond{}},
		{id: "a1", callsign: "Alpha One", criteria: alwaysRespond{}},
	})
	// Alpha One matches but its reply strips down to nothing, so it did not
	// speak and the leader covers the broadcast.
	s.providers["a1"].QueueText("MEMORIZE[note]: nothing worth transmitting")
	s.providers["lead"].QueueText("Command, this is Rescue Lead, copy your last, over.")

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"All stations, this is Command, proceed as planned, over.")
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 1 || replies[0].SenderID != "lead" {
		t.Fatalf("replies = %+v, want leader fallback after silent responder", replies)
	}

	// The silent agent must not have posted anything.
	for _, m := range s.log.All() {
		if m.SenderID == "a1" {
			t.Errorf("silent agent posted to the channel: %+v", m)
		}
		if m.Kind == channel.KindAgent && strings.TrimSpace(m.Content) == "" {
			t.Errorf("empty transmission on the channel: %+v", m)
		}
	}
}

func TestAgentFaultBecomesSystemNotice(t *testing.T) {
	t.Parallel()
	s := defaultSquad(t)
	s.providers["a1"].QueueErr(errors.New("invalid api key"))

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"Alpha One, this is Command, report, over.")
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 0 {
		t.Errorf("replies = %+v, want none", replies)
	}

	all := s.log.All()
	last := all[len(all)-1]
	if last.Kind != channel.KindSystem {
		t.Fatalf("last log entry = %+v, want system notice", last)
	}
	if !strings.Contains(last.Content, "Alpha One") {
		t.Errorf("notice should name the station: %q", last.Content)
	}
	if strings.Contains(last.Content, "api key") {
		t.Errorf("notice must not leak internals: %q", last.Content)
	}
}

func TestFaultDoesNotAbortOthers(t *testing.T) {
	t.Parallel()
	s := buildSquad(t, []member{
		{id: "a1", callsign: "Alpha One", criteria: alwaysRespond{}},
		{id: "a2", callsign: "Alpha Two", criteria: alwaysRespond{}},
	})
	s.providers["a1"].QueueErr(errors.New("boom"))
	s.providers["a2"].QueueText("Alpha Two checking in.")

	replies, err := s.orch.HandleUserMessage(context.Background(),
		"All stations, this is Command, check in, over.")
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 1 || replies[0].SenderID != "a2" {
		t.Errorf("replies = %+v, want a2 despite a1 fault", replies)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	log := channel.NewLog(10)
	mk := func(id, callsign string, leader bool) *agent.Agent {
		a, err := agent.New(agent.Config{
			ID: id, Callsign: callsign, SquadLeader: leader,
			Provider: &llmmock.Provider{}, Channel: log, Metrics: metrics,
		})
		if err != nil {
			t.Fatal(err)
		}
		return a
	}

	if _, err := New(Config{Channel: log}); err == nil {
		t.Error("expected error for empty roster")
	}
	if _, err := New(Config{Channel: log, Agents: []*agent.Agent{
		mk("a1", "Alpha One", false), mk("a2", "alpha_one", false),
	}}); err == nil {
		t.Error("expected error for colliding callsigns")
	}
	if _, err := New(Config{Channel: log, Agents: []*agent.Agent{
		mk("l1", "Lead One", true), mk("l2", "Lead Two", true),
	}}); err == nil {
		t.Error("expected error for two squad leaders")
	}
}

func TestHandleUserMessageCancelled(t *testing.T) {
	t.Parallel()
	s := defaultSquad(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.orch.HandleUserMessage(ctx, "hello"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

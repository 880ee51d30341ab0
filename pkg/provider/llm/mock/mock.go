// Package mock provides a scripted test double for [llm.Provider].
//
// [Provider] returns queued responses in order and records every request for
// assertion in tests. It is safe for concurrent use.
//
// Typical usage:
//
//	p := &mock.Provider{}
//	p.Queue(&llm.CompletionResponse{StopReason: llm.StopEndTurn, Text: "Roger, out."})
//
//	// inject p into the system under test …
//
//	reqs := p.Requests()
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/squadnet-ai/squadnet/pkg/provider/llm"
)

// step is one scripted outcome.
type step struct {
	resp *llm.CompletionResponse
	err  error
}

// Provider is a configurable test double for [llm.Provider].
type Provider struct {
	mu       sync.Mutex
	script   []step
	requests []llm.CompletionRequest

	// CompleteFn, when non-nil, overrides the scripted queue entirely.
	CompleteFn func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Compile-time check: Provider must implement llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Queue appends a successful response to the script.
func (p *Provider) Queue(resp *llm.CompletionResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, step{resp: resp})
}

// QueueText is shorthand for queueing a plain end-turn reply.
func (p *Provider) QueueText(text string) {
	p.Queue(&llm.CompletionResponse{StopReason: llm.StopEndTurn, Text: text})
}

// QueueErr appends a failing step to the script.
func (p *Provider) QueueErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, step{err: err})
}

// Complete records the request and pops the next scripted outcome. Exhausting
// the script is an error so tests fail loudly on unexpected extra calls.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.CompleteFn != nil {
		p.mu.Lock()
		p.requests = append(p.requests, req)
		p.mu.Unlock()
		return p.CompleteFn(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.script) == 0 {
		return nil, fmt.Errorf("mock provider: no scripted response for call %d", len(p.requests))
	}
	next := p.script[0]
	p.script = p.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.resp, nil
}

// Requests returns a copy of every recorded request, in call order.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// CallCount returns the number of Complete invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

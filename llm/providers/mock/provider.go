// Package mock provides a deterministic scripted provider for tests and
// local runs without real API credentials.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/types"
)

// Provider replays a fixed script of replies. After the script is exhausted
// it keeps producing distinct numbered replies, so a session can always run
// to its round budget.
type Provider struct {
	name    string
	script  []string
	usage   types.TokenUsage
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

// New creates a mock provider with the given reply script.
func New(name string, script ...string) *Provider {
	return &Provider{name: name, script: script}
}

// WithUsage makes every reply carry the given usage metadata.
func (p *Provider) WithUsage(usage types.TokenUsage) *Provider {
	p.usage = usage
	return p
}

// WithError makes every call fail with err.
func (p *Provider) WithError(err error) *Provider {
	p.err = err
	return p
}

// WithDelay makes every call sleep before replying, bounded by ctx.
func (p *Provider) WithDelay(d time.Duration) *Provider {
	p.delay = d
	return p
}

// Calls returns the number of Completion invocations so far.
func (p *Provider) Calls() int {
	return int(p.calls.Load())
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Completion(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	n := int(p.calls.Add(1)) - 1

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, types.NewError(types.ErrUpstreamTimeout, "mock timed out").
				WithProvider(p.name).WithCause(ctx.Err())
		}
	}
	if p.err != nil {
		return nil, p.err
	}

	text := fmt.Sprintf("%s reply %d", p.name, n+1)
	if n < len(p.script) {
		text = p.script[n]
	}

	return &llm.ChatResponse{
		Provider:  p.name,
		Text:      text,
		Usage:     p.usage,
		CreatedAt: time.Now(),
	}, nil
}

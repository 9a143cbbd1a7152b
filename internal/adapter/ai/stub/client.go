// Package stub provides a deterministic in-process provider for local runs and tests.
package stub

import (
	"context"
	"sync"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// Reply is one scripted outcome: either Content or Err.
type Reply struct {
	Content string
	Err     error
}

// Client answers from a script. When the script is exhausted the last reply repeats.
type Client struct {
	id domain.ProviderID

	mu       sync.Mutex
	script   []Reply
	calls    int
	requests []domain.ChatRequest
}

// New returns a provider that always answers "[<id>] <latest user message>".
func New(id domain.ProviderID) *Client { return &Client{id: id} }

// NewScripted returns a provider replaying replies in order.
func NewScripted(id domain.ProviderID, replies ...Reply) *Client {
	return &Client{id: id, script: replies}
}

func (c *Client) ID() domain.ProviderID { return c.id }

// Chat returns the next scripted reply as a single-chunk stream.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.requests = append(c.requests, req)
	if len(c.script) == 0 {
		return stream.FromString("["+string(c.id)+"] "+domain.LatestUserMessage(req.Messages), nil), nil
	}
	idx := c.calls - 1
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	r := c.script[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	return stream.FromString(r.Content, nil), nil
}

// Calls returns how many times Chat was invoked.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Requests returns the requests received so far.
func (c *Client) Requests() []domain.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

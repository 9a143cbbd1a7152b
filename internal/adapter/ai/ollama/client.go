// Package ollama implements the provider adapter for an Ollama runtime. The
// same adapter serves the local and the personal provider with different models.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// Options configures one Ollama-backed provider.
type Options struct {
	// Provider is the id reported in responses, normally local or personal.
	Provider   domain.ProviderID
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client streams /api/chat responses as NDJSON.
type Client struct {
	id    domain.ProviderID
	url   string
	model string
	hc    *http.Client
}

// New builds an Ollama client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = ai.NewHTTPClient("ollama."+string(opts.Provider), opts.Timeout)
	}
	return &Client{
		id:    opts.Provider,
		url:   strings.TrimRight(opts.BaseURL, "/") + "/api/chat",
		model: opts.Model,
		hc:    hc,
	}
}

func (c *Client) ID() domain.ProviderID { return c.id }

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

// Chat posts the conversation and returns the NDJSON stream.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatStream, error) {
	b, err := json.Marshal(chatRequest{Model: c.model, Messages: req.Messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("op=ollama.chat: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("op=ollama.chat: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.hc.Do(r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransportError(c.id, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := ai.ReadErrorBody(resp.Body)
		_ = resp.Body.Close()
		observability.LoggerFromContext(ctx).Warn("ai provider non-2xx",
			slog.String("provider", string(c.id)),
			slog.String("model", c.model),
			slog.Int("status", resp.StatusCode),
			slog.String("body", body))
		return nil, &domain.ProviderError{Provider: c.id, StatusCode: resp.StatusCode, Body: body}
	}
	return stream.NewNDJSON(ctx, c.id, resp.Body), nil
}

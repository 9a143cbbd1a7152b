// Package cloud implements the provider adapter for the cloud inference
// gateway, which streams OpenAI-style deltas over server-sent events.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// Options configures the gateway client.
type Options struct {
	BaseURL  string
	ChatPath string
	APIKey   string
	// Model is optional; the gateway picks its default when empty.
	Model   string
	Timeout time.Duration
	// HTTPClient overrides the otelhttp-instrumented default, mainly for tests.
	HTTPClient *http.Client
}

// Client is the cloud provider adapter.
type Client struct {
	url    string
	apiKey string
	model  string
	hc     *http.Client
}

// New builds a cloud client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = ai.NewHTTPClient("cloud", opts.Timeout)
	}
	path := opts.ChatPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Client{
		url:    strings.TrimRight(opts.BaseURL, "/") + path,
		apiKey: opts.APIKey,
		model:  opts.Model,
		hc:     hc,
	}
}

func (c *Client) ID() domain.ProviderID { return domain.ProviderCloud }

type chatRequest struct {
	Messages []domain.Message `json:"messages"`
	Model    string           `json:"model,omitempty"`
	Stream   bool             `json:"stream"`
}

// plainResponse covers gateways that ignore stream:true and answer in one JSON document.
type plainResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Content string `json:"content"`
}

// Chat posts the conversation and returns the event stream.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatStream, error) {
	b, err := json.Marshal(chatRequest{Messages: req.Messages, Model: c.model, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("op=cloud.chat: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("op=cloud.chat: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransportError(domain.ProviderCloud, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := ai.ReadErrorBody(resp.Body)
		_ = resp.Body.Close()
		observability.LoggerFromContext(ctx).Warn("ai provider non-2xx",
			slog.String("provider", string(domain.ProviderCloud)),
			slog.Int("status", resp.StatusCode),
			slog.String("endpoint", c.url),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", body))
		return nil, &domain.ProviderError{Provider: domain.ProviderCloud, StatusCode: resp.StatusCode, Body: body}
	}

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "application/json" {
		defer func() { _ = resp.Body.Close() }()
		var pr plainResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			return nil, &domain.ProviderError{Provider: domain.ProviderCloud, StatusCode: resp.StatusCode, Body: "invalid JSON body: " + err.Error()}
		}
		content := pr.Content
		if len(pr.Choices) > 0 {
			content = pr.Choices[0].Message.Content
		}
		return stream.FromString(content, nil), nil
	}
	return stream.NewSSE(ctx, domain.ProviderCloud, resp.Body), nil
}

// Package openaicompat implements the specialized provider on top of any
// OpenAI-compatible /chat/completions server, answering with plain JSON.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
	"github.com/fairyhunter13/ai-orchestrator/pkg/textx"
)

// Options configures the specialized client.
type Options struct {
	Provider   domain.ProviderID
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client wraps a go-openai client.
type Client struct {
	id     domain.ProviderID
	model  string
	client *openai.Client
}

// New builds a client. Provider defaults to specialized.
func New(opts Options) *Client {
	id := opts.Provider
	if id == "" {
		id = domain.ProviderSpecialized
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = ai.NewHTTPClient("openaicompat."+string(id), opts.Timeout)
	}
	return &Client{id: id, model: opts.Model, client: openai.NewClientWithConfig(cfg)}
}

func (c *Client) ID() domain.ProviderID { return c.id }

// Chat performs one non-streaming completion and wraps the answer as a stream.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatStream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ProviderError{Provider: c.id, StatusCode: http.StatusOK, Body: "empty choices"}
	}
	usage := &domain.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = nil
	}
	return stream.FromString(resp.Choices[0].Message.Content, usage), nil
}

// classify maps go-openai errors onto the domain taxonomy: an HTTP status from
// the server is a ProviderError, anything else never got an answer.
func (c *Client) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		c.logFailure(ctx, apiErr.HTTPStatusCode, apiErr.Message)
		return &domain.ProviderError{Provider: c.id, StatusCode: apiErr.HTTPStatusCode, Body: textx.Snippet(apiErr.Message, 512)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := fmt.Sprint(reqErr.Err)
		c.logFailure(ctx, reqErr.HTTPStatusCode, body)
		return &domain.ProviderError{Provider: c.id, StatusCode: reqErr.HTTPStatusCode, Body: textx.Snippet(body, 512)}
	}
	return domain.NewTransportError(c.id, err)
}

func (c *Client) logFailure(ctx context.Context, status int, body string) {
	observability.LoggerFromContext(ctx).Warn("ai provider non-2xx",
		slog.String("provider", string(c.id)),
		slog.String("model", c.model),
		slog.Int("status", status),
		slog.String("body", textx.Snippet(body, 512)))
}

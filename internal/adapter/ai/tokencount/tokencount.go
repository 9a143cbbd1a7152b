// Package tokencount estimates token usage for chat calls.
//
// It uses tiktoken-go with the offline BPE loader, so no encoding files are
// downloaded at runtime. Local models do not share OpenAI's tokenizer; the
// cl100k_base counts are an estimate good enough for usage reporting.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Counter provides thread-safe token counting.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// getEncodingForModel returns the tiktoken encoding for a model, cached.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalizedModel := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalizedModel]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodingCache[normalizedModel]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalizedModel)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.String("normalized", normalizedModel),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalizedModel] = enc
	return enc, nil
}

// normalizeModelName converts model ids to tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)

	// registry prefixes, e.g. "library/llama3.2" or "TheBloke/dolphin"
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	// ollama tags, e.g. "llama3.2:3b"
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}

	switch {
	case strings.Contains(model, "gpt-4o"):
		return "gpt-4o"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		// llama, mistral, dolphin, qwen, gemma and unknown models: cl100k_base approximation
		return "gpt-4"
	}
}

// CountTokens counts the number of tokens in text for model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts tokens for a chat prompt including the per-message overhead
// used by OpenAI-compatible APIs.
func (c *Counter) CountChatTokens(msgs []domain.Message, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	const tokensPerMessage = 3
	n := 0
	for _, m := range msgs {
		n += tokensPerMessage
		n += len(enc.Encode(string(m.Role), nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	// every reply is primed with <|start|>assistant<|message|>
	n += 3
	return n, nil
}

// Usage estimates the token usage of one exchange. Counting never fails: on
// encoder errors it falls back to roughly four characters per token.
func (c *Counter) Usage(msgs []domain.Message, completion, model string) domain.TokenUsage {
	prompt, err := c.CountChatTokens(msgs, model)
	if err != nil {
		slog.Warn("failed to count prompt tokens, using estimate",
			slog.String("model", model),
			slog.Any("error", err))
		chars := 0
		for _, m := range msgs {
			chars += len(m.Content)
		}
		prompt = chars / 4
	}
	compl, err := c.CountTokens(completion, model)
	if err != nil {
		slog.Warn("failed to count completion tokens, using estimate",
			slog.String("model", model),
			slog.Any("error", err))
		compl = len(completion) / 4
	}
	return domain.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: compl,
		TotalTokens:      prompt + compl,
	}
}

package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

type ndjsonChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// NDJSON decodes one JSON object per line ({"message":{"content":"..."}}), as
// streamed by Ollama's /api/chat. A done:true object or EOF ends the stream.
type NDJSON struct {
	base
	r     *bufio.Reader
	usage domain.TokenUsage
	hasUs bool
}

// NewNDJSON wraps body. The stream owns body and closes it on Close.
func NewNDJSON(ctx context.Context, provider domain.ProviderID, body io.ReadCloser) *NDJSON {
	return &NDJSON{
		base: base{ctx: ctx, body: body, provider: provider, format: "ndjson"},
		r:    bufio.NewReader(body),
	}
}

// Recv returns the next non-empty content delta, or io.EOF at the end of the stream.
func (s *NDJSON) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return "", err
		}
		line, err := s.r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return "", s.readErr(err)
		}
		eof := err == io.EOF
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if eof {
				s.done = true
				return "", io.EOF
			}
			continue
		}
		var chunk ndjsonChunk
		if jerr := json.Unmarshal(line, &chunk); jerr != nil {
			s.drop(line, jerr)
			if eof {
				s.done = true
				return "", io.EOF
			}
			continue
		}
		if chunk.Error != "" {
			s.done = true
			return "", &domain.ProviderError{Provider: s.provider, Body: chunk.Error}
		}
		if chunk.Done || eof {
			s.done = true
			if chunk.Done && (chunk.PromptEvalCount > 0 || chunk.EvalCount > 0) {
				s.usage = domain.TokenUsage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				}
				s.hasUs = true
			}
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
			return "", io.EOF
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
}

// Usage reports the token counts from the final done:true object, if any.
func (s *NDJSON) Usage() (domain.TokenUsage, bool) {
	return s.usage, s.hasUs
}

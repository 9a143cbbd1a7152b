package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// doneSentinel terminates an OpenAI-style event stream.
const doneSentinel = "[DONE]"

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// SSE decodes a text/event-stream body carrying
// data: {"choices":[{"delta":{"content":"..."}}]} events until data: [DONE].
type SSE struct {
	base
	r *bufio.Reader
}

// NewSSE wraps body. The stream owns body and closes it on Close.
func NewSSE(ctx context.Context, provider domain.ProviderID, body io.ReadCloser) *SSE {
	return &SSE{
		base: base{ctx: ctx, body: body, provider: provider, format: "sse"},
		r:    bufio.NewReader(body),
	}
}

// Recv returns the next non-empty content delta, or io.EOF at the end of the stream.
func (s *SSE) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return "", err
		}
		data, err := s.readEvent()
		if err == io.EOF {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", s.readErr(err)
		}
		if string(data) == doneSentinel {
			s.done = true
			return "", io.EOF
		}
		var chunk sseChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			s.drop(data, err)
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			s.done = true
			return "", &domain.ProviderError{Provider: s.provider, Body: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if c := chunk.Choices[0].Delta.Content; c != "" {
			return c, nil
		}
	}
}

// readEvent returns the joined data lines of the next event. Comments and
// non-data fields are ignored.
func (s *SSE) readEvent() ([]byte, error) {
	var lines [][]byte
	for {
		line, err := s.r.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			switch {
			case len(line) == 0:
				if len(lines) > 0 {
					return bytes.Join(lines, []byte("\n")), nil
				}
			case bytes.HasPrefix(line, []byte("data:")):
				lines = append(lines, bytes.TrimSpace(line[len("data:"):]))
			}
		}
		if err != nil {
			if err == io.EOF && len(lines) > 0 {
				return bytes.Join(lines, []byte("\n")), nil
			}
			return nil, err
		}
	}
}

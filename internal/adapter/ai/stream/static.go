package stream

import (
	"io"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// Static is a one-shot stream over an already complete response, used by
// backends that answer with plain JSON.
type Static struct {
	content string
	usage   *domain.TokenUsage
	sent    bool
}

// FromString returns a stream yielding content once. usage may be nil.
func FromString(content string, usage *domain.TokenUsage) *Static {
	return &Static{content: content, usage: usage}
}

func (s *Static) Recv() (string, error) {
	if s.sent || s.content == "" {
		s.sent = true
		return "", io.EOF
	}
	s.sent = true
	return s.content, nil
}

func (s *Static) Close() error { return nil }

// Usage reports the backend-provided token counts, if any.
func (s *Static) Usage() (domain.TokenUsage, bool) {
	if s.usage == nil {
		return domain.TokenUsage{}, false
	}
	return *s.usage, true
}

// Package stream decodes incremental chat responses (SSE and NDJSON) into
// domain.ChatStream values. Malformed chunks are dropped and counted, never fatal.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// UsageReporter is implemented by streams whose backend reports token counts.
// The result is only meaningful after Recv returned io.EOF.
type UsageReporter interface {
	Usage() (domain.TokenUsage, bool)
}

// ReadAll drains s into a single string and closes it. The context is checked
// between chunks so a cancelled caller stops reading promptly.
func ReadAll(ctx context.Context, s domain.ChatStream) (string, error) {
	defer func() { _ = s.Close() }()
	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
	}
}

// base holds what both decoders share: the body, the caller context and the
// provider used to classify read failures.
type base struct {
	ctx      context.Context
	body     io.ReadCloser
	provider domain.ProviderID
	format   string
	done     bool
}

// readErr classifies a body read failure. Cancellation by the caller is passed
// through untouched so it never looks like a backend failure.
func (b *base) readErr(err error) error {
	if ctxErr := b.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return domain.NewTransportError(b.provider, err)
}

func (b *base) drop(raw []byte, err error) {
	observability.RecordStreamDrop(b.format)
	observability.LoggerFromContext(b.ctx).Debug("dropped malformed stream chunk",
		slog.String("provider", string(b.provider)),
		slog.String("format", b.format),
		slog.Int("bytes", len(raw)),
		slog.Any("error", err))
}

func (b *base) Close() error {
	b.done = true
	return b.body.Close()
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// RefusalChecker classifies fully assembled response text.
type RefusalChecker interface {
	IsRefusal(text string) bool
}

// OrchestratorDeps groups the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Providers []domain.Provider
	// Models maps a provider to the model name used for token estimates.
	Models   map[domain.ProviderID]string
	Selector Selector
	Refusals RefusalChecker
	Tokens   domain.TokenCounter
}

// Orchestrator routes chat calls to providers and applies the fallback policy:
// one failover to cloud after a failed auto-mode call, or one reroute to
// personal after a refusal, never both.
type Orchestrator struct {
	providers map[domain.ProviderID]domain.Provider
	models    map[domain.ProviderID]string
	selector  Selector
	refusals  RefusalChecker
	tokens    domain.TokenCounter
	now       func() time.Time
}

// NewOrchestrator constructs an Orchestrator. Providers with duplicate ids: last one wins.
func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		providers: make(map[domain.ProviderID]domain.Provider, len(d.Providers)),
		models:    make(map[domain.ProviderID]string, len(d.Models)),
		selector:  d.Selector,
		refusals:  d.Refusals,
		tokens:    d.Tokens,
		now:       time.Now,
	}
	for _, p := range d.Providers {
		if p != nil {
			o.providers[p.ID()] = p
		}
	}
	for k, v := range d.Models {
		o.models[k] = v
	}
	return o
}

// Providers lists the configured provider ids in lexical order.
func (o *Orchestrator) Providers() []domain.ProviderID {
	out := make([]domain.ProviderID, 0, len(o.providers))
	for id := range o.providers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Chat answers msgs through the provider selected by mode. A non-empty
// sysContext is sent as a leading system message.
func (o *Orchestrator) Chat(ctx domain.Context, msgs []domain.Message, mode domain.ProviderID, sysContext string) (domain.AIResponse, error) {
	if len(msgs) == 0 {
		return domain.AIResponse{}, fmt.Errorf("op=orchestrator.chat: %w: messages required", domain.ErrInvalidArgument)
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return domain.AIResponse{}, fmt.Errorf("op=orchestrator.chat: %w: message %d has unknown role %q", domain.ErrInvalidArgument, i, m.Role)
		}
	}
	mode, ok := domain.ParseProviderID(string(mode))
	if !ok {
		return domain.AIResponse{}, fmt.Errorf("op=orchestrator.chat: %w: unknown mode", domain.ErrInvalidArgument)
	}
	if mode != domain.ProviderAuto {
		if _, ok := o.providers[mode]; !ok {
			return domain.AIResponse{}, fmt.Errorf("op=orchestrator.chat: %w", unavailable(mode))
		}
	}

	ctx, span := observability.Tracer().Start(ctx, "Orchestrator.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("ai.mode", string(mode)))
	start := o.now()

	req := domain.ChatRequest{Messages: buildMessages(msgs, sysContext)}
	primary := mode
	var rules []fallbackRule
	if mode == domain.ProviderAuto {
		primary = o.selector.Select(msgs)
		rules = append(rules, o.failoverTo(domain.ProviderCloud))
	}
	rules = append(rules, o.rerouteRefusalTo(domain.ProviderPersonal))

	out := callWithSingleFallback(ctx, primary, o.attemptWith(req), rules...)
	resp, err := o.resolve(ctx, out)

	lg := observability.LoggerFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		lg.Warn("chat failed",
			slog.String("mode", string(mode)),
			slog.String("provider", string(primary)),
			slog.Duration("duration", o.now().Sub(start)),
			slog.Any("error", err))
		return domain.AIResponse{}, fmt.Errorf("op=orchestrator.chat: %w", err)
	}
	span.SetAttributes(
		attribute.String("ai.model", string(resp.Model)),
		attribute.Bool("ai.fallback_used", resp.FallbackUsed),
		attribute.Bool("ai.refused", resp.Refused),
	)
	lg.Info("chat completed",
		slog.String("mode", string(mode)),
		slog.String("model", string(resp.Model)),
		slog.String("original_model", string(resp.OriginalModel)),
		slog.Bool("fallback_used", resp.FallbackUsed),
		slog.Bool("refused", resp.Refused),
		slog.Duration("duration", o.now().Sub(start)))
	return resp, nil
}

func (o *Orchestrator) failoverTo(target domain.ProviderID) fallbackRule {
	return func(first attempt) (domain.ProviderID, fallbackReason, bool) {
		if first.Err == nil || !domain.IsCallFailure(first.Err) || first.Provider == target {
			return "", "", false
		}
		_, ok := o.providers[target]
		return target, reasonCallFailure, ok
	}
}

func (o *Orchestrator) rerouteRefusalTo(target domain.ProviderID) fallbackRule {
	return func(first attempt) (domain.ProviderID, fallbackReason, bool) {
		if first.Err != nil || !first.Refused || first.Provider == target {
			return "", "", false
		}
		_, ok := o.providers[target]
		return target, reasonRefusal, ok
	}
}

// resolve folds the attempts into the unified response.
func (o *Orchestrator) resolve(ctx domain.Context, out fallbackOutcome) (domain.AIResponse, error) {
	first := out.First
	if out.Retry == nil {
		if first.Err != nil {
			return domain.AIResponse{}, first.Err
		}
		return domain.AIResponse{Content: first.Content, Model: first.Provider, Refused: first.Refused, Usage: first.Usage}, nil
	}

	retry := *out.Retry
	observability.RecordFallback(string(first.Provider), string(retry.Provider), string(out.Reason))
	switch out.Reason {
	case reasonCallFailure:
		if retry.Err != nil {
			return domain.AIResponse{}, fmt.Errorf("fallback to %s after %s failed (%v): %w", retry.Provider, first.Provider, first.Err, retry.Err)
		}
	case reasonRefusal:
		if retry.Err != nil {
			// keep the refused answer rather than failing a call that did succeed
			observability.LoggerFromContext(ctx).Warn("refusal reroute failed, keeping original answer",
				slog.String("provider", string(first.Provider)),
				slog.String("fallback", string(retry.Provider)),
				slog.Any("error", retry.Err))
			return domain.AIResponse{Content: first.Content, Model: first.Provider, Refused: true, Usage: first.Usage}, nil
		}
	}
	return domain.AIResponse{
		Content:       retry.Content,
		Model:         retry.Provider,
		FallbackUsed:  true,
		OriginalModel: first.Provider,
		Refused:       retry.Refused,
		Usage:         retry.Usage,
	}, nil
}

// attemptWith returns the call function used by the fallback combinator.
func (o *Orchestrator) attemptWith(req domain.ChatRequest) func(domain.Context, domain.ProviderID) attempt {
	return func(ctx domain.Context, id domain.ProviderID) attempt {
		a := attempt{Provider: id}
		p, ok := o.providers[id]
		if !ok {
			a.Err = unavailable(id)
			return a
		}
		ctx, span := observability.Tracer().Start(ctx, "Provider.Chat")
		defer span.End()
		span.SetAttributes(attribute.String("ai.provider", string(id)))

		start := o.now()
		s, err := p.Chat(ctx, req)
		if err == nil {
			a.Content, a.Usage, err = o.drain(ctx, s, id, req.Messages)
		}
		a.Duration = o.now().Sub(start)
		if err != nil {
			a.Err = err
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.ObserveAIRequest(string(id), outcomeOf(err), a.Duration)
			return a
		}
		a.Refused = o.refusals != nil && o.refusals.IsRefusal(a.Content)
		outcome := "ok"
		if a.Refused {
			outcome = "refused"
			observability.RecordRefusal(string(id))
		}
		observability.ObserveAIRequest(string(id), outcome, a.Duration)
		return a
	}
}

// drain assembles the stream, checking ctx between chunks.
func (o *Orchestrator) drain(ctx domain.Context, s domain.ChatStream, id domain.ProviderID, msgs []domain.Message) (string, *domain.TokenUsage, error) {
	content, err := stream.ReadAll(ctx, s)
	if err != nil {
		return "", nil, err
	}
	if ur, ok := s.(stream.UsageReporter); ok {
		if u, ok := ur.Usage(); ok {
			return content, &u, nil
		}
	}
	if o.tokens == nil {
		return content, nil, nil
	}
	u := o.tokens.Usage(msgs, content, o.models[id])
	return content, &u, nil
}

func buildMessages(msgs []domain.Message, sysContext string) []domain.Message {
	out := make([]domain.Message, 0, len(msgs)+1)
	if strings.TrimSpace(sysContext) != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: sysContext})
	}
	return append(out, msgs...)
}

func unavailable(id domain.ProviderID) error {
	return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, &domain.ProviderError{Provider: id, Body: "provider not configured"})
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransport):
		return "cancelled"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	case errors.Is(err, domain.ErrProvider):
		return "provider"
	default:
		return "error"
	}
}

package usecase

import (
	"time"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// attempt is the outcome of one provider call with the text fully assembled.
type attempt struct {
	Provider domain.ProviderID
	Content  string
	Usage    *domain.TokenUsage
	Refused  bool
	Err      error
	Duration time.Duration
}

// fallbackReason labels why a second attempt was made.
type fallbackReason string

const (
	reasonCallFailure fallbackReason = "call_failure"
	reasonRefusal     fallbackReason = "refusal"
)

// fallbackRule inspects the first attempt and names the provider to retry against.
type fallbackRule func(first attempt) (domain.ProviderID, fallbackReason, bool)

// fallbackOutcome holds the first attempt and, when a rule matched, the only retry.
type fallbackOutcome struct {
	First  attempt
	Retry  *attempt
	Reason fallbackReason
}

// callWithSingleFallback calls primary, then evaluates rules in order against
// that first result. The first matching rule triggers exactly one more call;
// the retry result is never re-evaluated.
func callWithSingleFallback(ctx domain.Context, primary domain.ProviderID, call func(domain.Context, domain.ProviderID) attempt, rules ...fallbackRule) fallbackOutcome {
	out := fallbackOutcome{First: call(ctx, primary)}
	if ctx.Err() != nil {
		return out
	}
	for _, rule := range rules {
		target, reason, ok := rule(out.First)
		if !ok || target == primary {
			continue
		}
		retry := call(ctx, target)
		out.Retry = &retry
		out.Reason = reason
		break
	}
	return out
}

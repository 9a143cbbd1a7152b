package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func TestCallWithSingleFallback(t *testing.T) {
	t.Parallel()
	failing := errors.New("boom")
	always := func(target domain.ProviderID) fallbackRule {
		return func(attempt) (domain.ProviderID, fallbackReason, bool) { return target, reasonCallFailure, true }
	}
	never := func(attempt) (domain.ProviderID, fallbackReason, bool) { return "", "", false }

	tests := []struct {
		name      string
		rules     []fallbackRule
		wantCalls []domain.ProviderID
		wantRetry bool
	}{
		{name: "no rules", wantCalls: []domain.ProviderID{"a"}},
		{name: "no match", rules: []fallbackRule{never}, wantCalls: []domain.ProviderID{"a"}},
		{name: "first match wins", rules: []fallbackRule{never, always("b"), always("c")}, wantCalls: []domain.ProviderID{"a", "b"}, wantRetry: true},
		{name: "retry to self skipped", rules: []fallbackRule{always("a"), always("c")}, wantCalls: []domain.ProviderID{"a", "c"}, wantRetry: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls []domain.ProviderID
			call := func(_ domain.Context, p domain.ProviderID) attempt {
				calls = append(calls, p)
				return attempt{Provider: p, Err: failing}
			}
			out := callWithSingleFallback(context.Background(), "a", call, tt.rules...)
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantRetry, out.Retry != nil)
			assert.Equal(t, domain.ProviderID("a"), out.First.Provider)
		})
	}
}

func TestCallWithSingleFallback_NeverChains(t *testing.T) {
	t.Parallel()
	var n int
	call := func(_ domain.Context, p domain.ProviderID) attempt {
		n++
		return attempt{Provider: p, Err: errors.New("down")}
	}
	// a rule that would keep bouncing between providers
	bounce := func(a attempt) (domain.ProviderID, fallbackReason, bool) {
		if a.Provider == "a" {
			return "b", reasonCallFailure, true
		}
		return "a", reasonCallFailure, true
	}
	out := callWithSingleFallback(context.Background(), "a", call, bounce)
	require.NotNil(t, out.Retry)
	assert.Equal(t, 2, n)
	assert.Equal(t, domain.ProviderID("b"), out.Retry.Provider)
}

func TestCallWithSingleFallback_CancelledSkipsRetry(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	call := func(_ domain.Context, p domain.ProviderID) attempt {
		n++
		cancel()
		return attempt{Provider: p, Err: context.Canceled}
	}
	always := func(attempt) (domain.ProviderID, fallbackReason, bool) { return "b", reasonCallFailure, true }
	out := callWithSingleFallback(ctx, "a", call, always)
	assert.Nil(t, out.Retry)
	assert.Equal(t, 1, n)
}

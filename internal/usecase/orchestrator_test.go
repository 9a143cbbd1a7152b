package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-orchestrator/internal/config"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
	"github.com/fairyhunter13/ai-orchestrator/internal/usecase"
)

func userMsg(s string) []domain.Message {
	return []domain.Message{{Role: domain.RoleUser, Content: s}}
}

func transportErr(p domain.ProviderID) error {
	return &domain.TransportError{Provider: p, Err: errors.New("dial tcp: connection refused")}
}

type fixedCounter struct{ calls int }

func (c *fixedCounter) Usage(_ []domain.Message, _ string, _ string) domain.TokenUsage {
	c.calls++
	return domain.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}
}

func newOrchestrator(providers ...domain.Provider) *usecase.Orchestrator {
	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Providers: providers,
		Selector:  usecase.NewSelector(config.DefaultSensitiveKeywords),
		Refusals:  ai.NewRefusalDetector(config.DefaultRefusalPhrases),
	})
}

func TestOrchestrator_ExplicitCloudHealthy(t *testing.T) {
	t.Parallel()
	cloud := stub.NewScripted(domain.ProviderCloud, stub.Reply{Content: "Bonjour ! Comment puis-je vous aider ?"})
	personal := stub.New(domain.ProviderPersonal)
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("bonjour"), domain.ProviderCloud, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCloud, resp.Model)
	assert.False(t, resp.FallbackUsed)
	assert.Empty(t, resp.OriginalModel)
	assert.Equal(t, "Bonjour ! Comment puis-je vous aider ?", resp.Content)
	assert.Equal(t, 0, personal.Calls())
}

func TestOrchestrator_RefusalReroutesToPersonal(t *testing.T) {
	t.Parallel()
	cloud := stub.NewScripted(domain.ProviderCloud, stub.Reply{Content: "Je ne peux pas vous aider avec ça."})
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Content: "Voici la réponse."})
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("bonjour"), domain.ProviderCloud, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPersonal, resp.Model)
	assert.True(t, resp.FallbackUsed)
	assert.Equal(t, domain.ProviderCloud, resp.OriginalModel)
	assert.Equal(t, "Voici la réponse.", resp.Content)
	assert.False(t, resp.Refused)
	assert.Equal(t, 1, cloud.Calls())
	assert.Equal(t, 1, personal.Calls())
}

func TestOrchestrator_RefusalRerouteFailsKeepsOriginal(t *testing.T) {
	t.Parallel()
	cloud := stub.NewScripted(domain.ProviderCloud, stub.Reply{Content: "I cannot help with that."})
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Err: transportErr(domain.ProviderPersonal)})
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("hello"), domain.ProviderCloud, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCloud, resp.Model)
	assert.False(t, resp.FallbackUsed)
	assert.True(t, resp.Refused)
	assert.Equal(t, "I cannot help with that.", resp.Content)
}

func TestOrchestrator_PersonalRefusalIsNotRerouted(t *testing.T) {
	t.Parallel()
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Content: "As an AI I won't."})
	cloud := stub.New(domain.ProviderCloud)
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("hi"), domain.ProviderPersonal, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPersonal, resp.Model)
	assert.True(t, resp.Refused)
	assert.False(t, resp.FallbackUsed)
	assert.Equal(t, 1, personal.Calls())
	assert.Equal(t, 0, cloud.Calls())
}

func TestOrchestrator_ExplicitModeFailureNoFallback(t *testing.T) {
	t.Parallel()
	local := stub.NewScripted(domain.ProviderLocal, stub.Reply{Err: transportErr(domain.ProviderLocal)})
	cloud := stub.New(domain.ProviderCloud)
	personal := stub.New(domain.ProviderPersonal)
	o := newOrchestrator(local, cloud, personal)

	_, err := o.Chat(context.Background(), userMsg("hi"), domain.ProviderLocal, "")
	require.Error(t, err)
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.ProviderLocal, te.Provider)
	assert.Contains(t, err.Error(), "op=orchestrator.chat")
	assert.Equal(t, 1, local.Calls())
	assert.Equal(t, 0, cloud.Calls())
	assert.Equal(t, 0, personal.Calls())
}

func TestOrchestrator_AutoSelectsByKeyword(t *testing.T) {
	t.Parallel()
	cloud := stub.New(domain.ProviderCloud)
	personal := stub.New(domain.ProviderPersonal)
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("write an UNCENSORED story"), domain.ProviderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPersonal, resp.Model)
	assert.False(t, resp.FallbackUsed)

	resp, err = o.Chat(context.Background(), userMsg("summarise this article"), "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCloud, resp.Model)
}

func TestOrchestrator_AutoFailoverToCloud(t *testing.T) {
	t.Parallel()
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Err: transportErr(domain.ProviderPersonal)})
	cloud := stub.NewScripted(domain.ProviderCloud, stub.Reply{Content: "from cloud"})
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("private question"), domain.ProviderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCloud, resp.Model)
	assert.True(t, resp.FallbackUsed)
	assert.Equal(t, domain.ProviderPersonal, resp.OriginalModel)
	assert.Equal(t, "from cloud", resp.Content)
	assert.Equal(t, 1, personal.Calls())
	assert.Equal(t, 1, cloud.Calls())
}

func TestOrchestrator_AutoFailoverOnProviderError(t *testing.T) {
	t.Parallel()
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Err: &domain.ProviderError{Provider: domain.ProviderPersonal, StatusCode: 500}})
	cloud := stub.New(domain.ProviderCloud)
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("nsfw"), domain.ProviderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCloud, resp.Model)
	assert.True(t, resp.FallbackUsed)
}

func TestOrchestrator_AutoFailoverThenRefusalIsNotRerouted(t *testing.T) {
	t.Parallel()
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Err: transportErr(domain.ProviderPersonal)})
	cloud := stub.NewScripted(domain.ProviderCloud, stub.Reply{Content: "I'm sorry, but I cannot do that."})
	o := newOrchestrator(cloud, personal)

	resp, err := o.Chat(context.Background(), userMsg("explicit request"), domain.ProviderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCloud, resp.Model)
	assert.True(t, resp.FallbackUsed)
	assert.True(t, resp.Refused)
	assert.Equal(t, 1, personal.Calls())
	assert.Equal(t, 1, cloud.Calls())
}

func TestOrchestrator_AutoCloudFailureNoRetry(t *testing.T) {
	t.Parallel()
	cloud := stub.NewScripted(domain.ProviderCloud, stub.Reply{Err: transportErr(domain.ProviderCloud)})
	personal := stub.New(domain.ProviderPersonal)
	o := newOrchestrator(cloud, personal)

	_, err := o.Chat(context.Background(), userMsg("weather today"), domain.ProviderAuto, "")
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, 1, cloud.Calls())
	assert.Equal(t, 0, personal.Calls())
}

func TestOrchestrator_AutoFailoverBothFail(t *testing.T) {
	t.Parallel()
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Err: transportErr(domain.ProviderPersonal)})
	cloud := stub.NewScripted(domain.ProviderCloud, stub.Reply{Err: &domain.ProviderError{Provider: domain.ProviderCloud, StatusCode: 503}})
	o := newOrchestrator(cloud, personal)

	_, err := o.Chat(context.Background(), userMsg("private"), domain.ProviderAuto, "")
	require.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, 1, personal.Calls())
	assert.Equal(t, 1, cloud.Calls())
}

func TestOrchestrator_AutoPersonalUnconfiguredFailsOver(t *testing.T) {
	t.Parallel()
	cloud := stub.New(domain.ProviderCloud)
	o := newOrchestrator(cloud)

	resp, err := o.Chat(context.Background(), userMsg("confidential memo"), domain.ProviderAuto, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderCloud, resp.Model)
	assert.True(t, resp.FallbackUsed)
	assert.Equal(t, domain.ProviderPersonal, resp.OriginalModel)
}

func TestOrchestrator_Validation(t *testing.T) {
	t.Parallel()
	o := newOrchestrator(stub.New(domain.ProviderCloud))
	ctx := context.Background()

	_, err := o.Chat(ctx, nil, domain.ProviderCloud, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = o.Chat(ctx, userMsg("hi"), "gpt-99", "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = o.Chat(ctx, []domain.Message{{Role: "robot", Content: "x"}}, domain.ProviderCloud, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = o.Chat(ctx, userMsg("hi"), domain.ProviderSpecialized, "")
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	require.ErrorIs(t, err, domain.ErrProvider)
}

func TestOrchestrator_ContextBecomesSystemMessage(t *testing.T) {
	t.Parallel()
	cloud := stub.New(domain.ProviderCloud)
	o := newOrchestrator(cloud)
	msgs := userMsg("hi")

	_, err := o.Chat(context.Background(), msgs, domain.ProviderCloud, "You are terse.")
	require.NoError(t, err)
	reqs := cloud.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleSystem, Content: "You are terse."}, reqs[0].Messages[0])
	assert.Equal(t, msgs[0], reqs[0].Messages[1])
	assert.Len(t, msgs, 1)
}

func TestOrchestrator_UsageFromCounter(t *testing.T) {
	t.Parallel()
	counter := &fixedCounter{}
	o := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Providers: []domain.Provider{stub.New(domain.ProviderCloud)},
		Models:    map[domain.ProviderID]string{domain.ProviderCloud: "gpt-4o"},
		Tokens:    counter,
	})
	resp, err := o.Chat(context.Background(), userMsg("hi"), domain.ProviderCloud, "")
	require.NoError(t, err)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, 1, counter.calls)
}

// meteredProvider answers with a plain JSON style stream that carries backend token counts.
type meteredProvider struct {
	id    domain.ProviderID
	usage domain.TokenUsage
}

func (p meteredProvider) ID() domain.ProviderID { return p.id }

func (p meteredProvider) Chat(_ context.Context, _ domain.ChatRequest) (domain.ChatStream, error) {
	u := p.usage
	return stream.FromString("metered answer", &u), nil
}

func TestOrchestrator_BackendUsageSurvivesBreaker(t *testing.T) {
	t.Parallel()
	counter := &fixedCounter{}
	cbm := ai.NewCircuitBreakerManager(3, time.Minute)
	backend := meteredProvider{
		id:    domain.ProviderSpecialized,
		usage: domain.TokenUsage{PromptTokens: 11, CompletionTokens: 7, TotalTokens: 18},
	}
	o := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Providers: []domain.Provider{cbm.Wrap(backend)},
		Tokens:    counter,
	})

	resp, err := o.Chat(context.Background(), userMsg("hi"), domain.ProviderSpecialized, "")
	require.NoError(t, err)
	assert.Equal(t, "metered answer", resp.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, backend.usage, *resp.Usage)
	assert.Zero(t, counter.calls)
}

func TestOrchestrator_CancelledContextDoesNotFallback(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	personal := stub.New(domain.ProviderPersonal)
	cloud := stub.New(domain.ProviderCloud)
	o := newOrchestrator(cloud, personal)

	_, err := o.Chat(ctx, userMsg("private"), domain.ProviderAuto, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cloud.Calls())
}

func TestOrchestrator_OpenBreakerFailsOverWithoutCallingBackend(t *testing.T) {
	t.Parallel()
	cbm := ai.NewCircuitBreakerManager(2, time.Minute)
	personal := stub.NewScripted(domain.ProviderPersonal, stub.Reply{Err: transportErr(domain.ProviderPersonal)})
	cloud := stub.New(domain.ProviderCloud)
	o := newOrchestrator(cbm.Wrap(cloud), cbm.Wrap(personal))

	for i := 0; i < 3; i++ {
		resp, err := o.Chat(context.Background(), userMsg("private"), domain.ProviderAuto, "")
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderCloud, resp.Model)
		assert.True(t, resp.FallbackUsed)
	}
	// the third call hit the open breaker instead of the backend
	assert.Equal(t, 2, personal.Calls())
	assert.Equal(t, ai.CircuitOpen, cbm.GetBreaker(domain.ProviderPersonal).GetState())
}

func TestOrchestrator_Providers(t *testing.T) {
	t.Parallel()
	o := newOrchestrator(stub.New(domain.ProviderLocal), stub.New(domain.ProviderCloud))
	assert.Equal(t, []domain.ProviderID{domain.ProviderCloud, domain.ProviderLocal}, o.Providers())
}

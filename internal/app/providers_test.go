package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func TestBuildProviders_HTTPAdapters(t *testing.T) {
	cfg := testConfig(t)
	cfg.StubProviders = false
	cfg.CloudModel = "gpt-4o-mini"
	breakers := ai.NewCircuitBreakerManager(3, time.Minute)

	providers, models := BuildProviders(cfg, breakers)
	ids := make([]domain.ProviderID, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID())
	}
	assert.ElementsMatch(t, []domain.ProviderID{domain.ProviderCloud, domain.ProviderPersonal, domain.ProviderLocal, domain.ProviderSpecialized}, ids)
	assert.Equal(t, "gpt-4o-mini", models[domain.ProviderCloud])
	assert.Len(t, breakers.GetAllStats(), 4)
}

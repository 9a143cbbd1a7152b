package app

import (
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/cloud"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/ollama"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/openaicompat"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-orchestrator/internal/config"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// BuildProviders creates one adapter per provider id, each behind its own
// circuit breaker, plus the model names used for token estimates.
func BuildProviders(cfg config.Config, breakers *ai.CircuitBreakerManager) ([]domain.Provider, map[domain.ProviderID]string) {
	models := map[domain.ProviderID]string{
		domain.ProviderCloud:       cfg.CloudModel,
		domain.ProviderPersonal:    cfg.PersonalModel,
		domain.ProviderLocal:       cfg.LocalModel,
		domain.ProviderSpecialized: cfg.SpecializedModel,
	}
	var raw []domain.Provider
	if cfg.StubProviders {
		for _, id := range []domain.ProviderID{domain.ProviderCloud, domain.ProviderPersonal, domain.ProviderLocal, domain.ProviderSpecialized} {
			raw = append(raw, stub.New(id))
		}
	} else {
		raw = []domain.Provider{
			cloud.New(cloud.Options{
				BaseURL:  cfg.CloudBaseURL,
				ChatPath: cfg.CloudChatPath,
				APIKey:   cfg.CloudAPIKey,
				Model:    cfg.CloudModel,
				Timeout:  cfg.ProviderTimeout,
			}),
			ollama.New(ollama.Options{
				Provider: domain.ProviderPersonal,
				BaseURL:  cfg.PersonalBaseURL,
				Model:    cfg.PersonalModel,
				Timeout:  cfg.ProviderTimeout,
			}),
			ollama.New(ollama.Options{
				Provider: domain.ProviderLocal,
				BaseURL:  cfg.LocalBaseURL,
				Model:    cfg.LocalModel,
				Timeout:  cfg.ProviderTimeout,
			}),
			openaicompat.New(openaicompat.Options{
				Provider: domain.ProviderSpecialized,
				BaseURL:  cfg.SpecializedBaseURL,
				APIKey:   cfg.SpecializedAPIKey,
				Model:    cfg.SpecializedModel,
				Timeout:  cfg.ProviderTimeout,
			}),
		}
	}
	out := make([]domain.Provider, 0, len(raw))
	for _, p := range raw {
		out = append(out, breakers.Wrap(p))
	}
	return out, models
}

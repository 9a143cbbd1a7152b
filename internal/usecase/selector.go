// Package usecase contains application business logic services.
package usecase

import (
	"strings"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
	"github.com/fairyhunter13/ai-orchestrator/pkg/textx"
)

// Selector picks the provider for auto mode from the latest user message.
type Selector struct {
	keywords  []string
	sensitive domain.ProviderID
	standard  domain.ProviderID
}

// NewSelector routes prompts containing any keyword to personal and
// everything else to cloud.
func NewSelector(keywords []string) Selector {
	norm := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			norm = append(norm, k)
		}
	}
	return Selector{keywords: norm, sensitive: domain.ProviderPersonal, standard: domain.ProviderCloud}
}

// Select returns the provider for msgs.
func (s Selector) Select(msgs []domain.Message) domain.ProviderID {
	if textx.ContainsAnyFold(domain.LatestUserMessage(msgs), s.keywords) {
		return s.sensitive
	}
	return s.standard
}

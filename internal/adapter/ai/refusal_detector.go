// Package ai holds provider-independent pieces shared by the provider
// adapters: refusal detection, circuit breaking and the outbound HTTP client.
package ai

import (
	"strings"

	"github.com/fairyhunter13/ai-orchestrator/pkg/textx"
)

// RefusalDetector flags responses in which the model declines the request.
// Matching is a case-insensitive substring test against a fixed phrase list.
type RefusalDetector struct {
	phrases []string
}

// NewRefusalDetector lowercases and keeps the non-empty phrases.
func NewRefusalDetector(phrases []string) *RefusalDetector {
	norm := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			norm = append(norm, p)
		}
	}
	return &RefusalDetector{phrases: norm}
}

// IsRefusal reports whether text contains any refusal phrase.
func (rd *RefusalDetector) IsRefusal(text string) bool {
	return textx.ContainsAnyFold(text, rd.phrases)
}

package app

import (
	"context"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/httpserver"
)

// Pinger is anything that can report whether its backend is reachable.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the /readyz probes: the state store always,
// the event broker only when one is configured.
func BuildReadinessChecks(store Pinger, events Pinger) []httpserver.ReadyCheck {
	checks := []httpserver.ReadyCheck{{Name: "store", Check: store.Ping}}
	if events != nil {
		checks = append(checks, httpserver.ReadyCheck{Name: "events", Check: events.Ping})
	}
	return checks
}

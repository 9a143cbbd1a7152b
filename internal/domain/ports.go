package domain

// ChatRequest is what the orchestrator hands to a provider adapter.
type ChatRequest struct {
	Messages []Message
}

// ChatStream yields incremental content deltas. Recv returns io.EOF once the
// backend has finished; Close releases the underlying connection.
type ChatStream interface {
	Recv() (string, error)
	Close() error
}

// Provider is one backend adapter. Chat is called at most once per attempt and
// returns a *TransportError or *ProviderError on failure.
type Provider interface {
	ID() ProviderID
	Chat(ctx Context, req ChatRequest) (ChatStream, error)
}

// Store is the persistence port: read the current document / replace it in full.
// Load returns (nil, nil) when nothing was stored under key yet.
type Store interface {
	Load(ctx Context, key string) ([]byte, error)
	Save(ctx Context, key string, data []byte) error
	Ping(ctx Context) error
}

// EventPublisher receives task and diagnostics lifecycle events.
type EventPublisher interface {
	Publish(ctx Context, ev Event) error
}

// Event is a lifecycle notification emitted by the ledger or the monitor.
type Event struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Payload any    `json:"payload,omitempty"`
}

// HealthChecker probes one backend and reports its status.
type HealthChecker interface {
	CheckService(ctx Context, svc AIServiceStatus) AIServiceStatus
}

// TokenCounter estimates token usage for a chat exchange.
type TokenCounter interface {
	Usage(msgs []Message, completion, model string) TokenUsage
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Context, Event) error { return nil }

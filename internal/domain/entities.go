// Package domain holds the entities, ports and error taxonomy shared by the
// orchestrator, the task ledger and the health monitor.
package domain

import (
	"context"
	"time"
)

// Context is an alias so ports read naturally without importing context everywhere.
type Context = context.Context

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message is one immutable turn of a conversation.
type Message struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// LatestUserMessage returns the content of the last user message, or "" when none exists.
func LatestUserMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// ProviderID tags a backend. ProviderAuto is a routing mode, never a responder.
type ProviderID string

const (
	ProviderAuto        ProviderID = "auto"
	ProviderPersonal    ProviderID = "personal"
	ProviderCloud       ProviderID = "cloud"
	ProviderSpecialized ProviderID = "specialized"
	ProviderLocal       ProviderID = "local"
)

// ParseProviderID validates a mode string. Empty input means auto.
func ParseProviderID(s string) (ProviderID, bool) {
	switch ProviderID(s) {
	case "":
		return ProviderAuto, true
	case ProviderAuto, ProviderPersonal, ProviderCloud, ProviderSpecialized, ProviderLocal:
		return ProviderID(s), true
	}
	return "", false
}

// TokenUsage is an estimate of the tokens consumed by one chat call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AIResponse is the unified answer returned by the orchestrator.
// Invariant: FallbackUsed == (OriginalModel != "" && OriginalModel != Model).
type AIResponse struct {
	Content       string      `json:"content"`
	Model         ProviderID  `json:"model"`
	FallbackUsed  bool        `json:"fallbackUsed"`
	OriginalModel ProviderID  `json:"originalModel,omitempty"`
	Refused       bool        `json:"refused,omitempty"`
	Usage         *TokenUsage `json:"usage,omitempty"`
}

// TaskStatus is the lifecycle state of a ledger task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// CanTransition reports whether moving from s to next respects the monotonic lifecycle
// pending -> processing -> {completed|failed|cancelled}. A pending task may also be
// failed or cancelled before it ever starts.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskProcessing || next == TaskFailed || next == TaskCancelled
	case TaskProcessing:
		return next == TaskCompleted || next == TaskFailed || next == TaskCancelled
	default:
		return false
	}
}

// AITask is a tracked unit of long-running generation work. The ledger never runs it.
type AITask struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Status      TaskStatus     `json:"status"`
	Progress    int            `json:"progress"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// Clone returns a deep-enough copy so callers cannot mutate ledger state.
func (t AITask) Clone() AITask {
	out := t
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		out.CompletedAt = &v
	}
	out.Result = cloneMap(t.Result)
	out.Params = cloneMap(t.Params)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ServiceState is the reachability state of a monitored backend.
type ServiceState string

const (
	ServiceOnline   ServiceState = "online"
	ServiceOffline  ServiceState = "offline"
	ServiceChecking ServiceState = "checking"
	ServiceError    ServiceState = "error"
)

// ServiceConfig describes one backend the monitor probes.
type ServiceConfig struct {
	ID           string   `yaml:"id" json:"id" validate:"required"`
	Name         string   `yaml:"name" json:"name" validate:"required"`
	URL          string   `yaml:"url" json:"url" validate:"required,url"`
	Port         int      `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
	HealthPath   string   `yaml:"health_path" json:"healthPath"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// AIServiceStatus is the last known health of one backend.
type AIServiceStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	Port         int           `json:"port"`
	Status       ServiceState  `json:"status"`
	Latency      time.Duration `json:"latency,omitempty"`
	Version      string        `json:"version,omitempty"`
	Error        string        `json:"error,omitempty"`
	LastChecked  *time.Time    `json:"lastChecked,omitempty"`
	Capabilities []string      `json:"capabilities"`
	HealthPath   string        `json:"-"`
}

// NewServiceStatus builds the startup status of a configured backend.
func NewServiceStatus(c ServiceConfig) AIServiceStatus {
	caps := make([]string, len(c.Capabilities))
	copy(caps, c.Capabilities)
	return AIServiceStatus{
		ID:           c.ID,
		Name:         c.Name,
		URL:          c.URL,
		Port:         c.Port,
		Status:       ServiceOffline,
		Capabilities: caps,
		HealthPath:   c.HealthPath,
	}
}

// LogLevel of a diagnostic entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// DiagnosticLogEntry is one append-only record of the diagnostics log.
type DiagnosticLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Service   string    `json:"service"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// DiagnosticsSummary counts services per terminal state after a diagnostics run.
type DiagnosticsSummary struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Error   int `json:"error"`
}

// Summarize counts statuses; services still "checking" are not counted.
func Summarize(statuses []AIServiceStatus) DiagnosticsSummary {
	var s DiagnosticsSummary
	for _, st := range statuses {
		switch st.Status {
		case ServiceOnline:
			s.Online++
		case ServiceOffline:
			s.Offline++
		case ServiceError:
			s.Error++
		}
	}
	return s
}

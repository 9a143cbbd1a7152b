package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

// ErrCircuitOpen is wrapped in the TransportError returned while a breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed indicates the circuit is allowing requests to pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates the circuit is blocking requests due to failures.
	CircuitOpen
	// CircuitHalfOpen indicates the circuit is letting one probe through.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker trips after consecutive failures of one provider.
type CircuitBreaker struct {
	mu               sync.Mutex
	provider         domain.ProviderID
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time
	state            CircuitState
	probing          bool
	failureCount     int
	lastFailureTime  time.Time
	totalRequests    int
	totalFailures    int
}

// NewCircuitBreaker creates a breaker for provider. Non-positive settings fall
// back to 3 consecutive failures and a 30s recovery timeout.
func NewCircuitBreaker(provider domain.ProviderID, failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		provider:         provider,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
		state:            CircuitClosed,
	}
}

// ShouldAttempt reports whether a call may go through. Once the recovery
// timeout has passed an open breaker moves to half-open and admits exactly one probe.
func (cb *CircuitBreaker) ShouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.recoveryTimeout {
			return false
		}
		cb.setState(CircuitHalfOpen)
		cb.probing = true
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.failureCount = 0
	cb.probing = false
	if cb.state != CircuitClosed {
		cb.setState(CircuitClosed)
		slog.Info("circuit breaker closed after successful recovery",
			slog.String("provider", string(cb.provider)))
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.totalFailures++
	cb.totalRequests++
	cb.lastFailureTime = cb.now()
	cb.probing = false

	if cb.state == CircuitHalfOpen || cb.failureCount >= cb.failureThreshold {
		if cb.state != CircuitOpen {
			slog.Warn("circuit breaker opened due to consecutive failures",
				slog.String("provider", string(cb.provider)),
				slog.Int("failure_count", cb.failureCount),
				slog.Int("threshold", cb.failureThreshold))
		}
		cb.setState(CircuitOpen)
	}
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	observability.RecordCircuitBreakerState(string(cb.provider), int(s))
}

// GetState returns the current circuit state
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerStats is a point-in-time view of one breaker.
type BreakerStats struct {
	Provider      domain.ProviderID `json:"provider"`
	State         string            `json:"state"`
	FailureCount  int               `json:"failureCount"`
	TotalRequests int               `json:"totalRequests"`
	TotalFailures int               `json:"totalFailures"`
	LastFailure   *time.Time        `json:"lastFailure,omitempty"`
}

// GetStats returns circuit breaker statistics
func (cb *CircuitBreaker) GetStats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := BreakerStats{
		Provider:      cb.provider,
		State:         cb.state.String(),
		FailureCount:  cb.failureCount,
		TotalRequests: cb.totalRequests,
		TotalFailures: cb.totalFailures,
	}
	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		st.LastFailure = &t
	}
	return st
}

// CircuitBreakerManager hands out one breaker per provider.
type CircuitBreakerManager struct {
	mu               sync.Mutex
	breakers         map[domain.ProviderID]*CircuitBreaker
	failureThreshold int
	recoveryTimeout  time.Duration
}

// NewCircuitBreakerManager creates a manager whose breakers share the given settings.
func NewCircuitBreakerManager(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers:         make(map[domain.ProviderID]*CircuitBreaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// GetBreaker returns or creates the breaker of provider.
func (cbm *CircuitBreakerManager) GetBreaker(provider domain.ProviderID) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[provider]; exists {
		return breaker
	}
	breaker := NewCircuitBreaker(provider, cbm.failureThreshold, cbm.recoveryTimeout)
	cbm.breakers[provider] = breaker
	return breaker
}

// Wrap decorates p with the breaker of its provider id.
func (cbm *CircuitBreakerManager) Wrap(p domain.Provider) domain.Provider {
	return WithCircuitBreaker(p, cbm.GetBreaker(p.ID()))
}

// GetAllStats returns statistics for all breakers ordered by provider id.
func (cbm *CircuitBreakerManager) GetAllStats() []BreakerStats {
	cbm.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(cbm.breakers))
	for _, b := range cbm.breakers {
		list = append(list, b)
	}
	cbm.mu.Unlock()

	out := make([]BreakerStats, 0, len(list))
	for _, b := range list {
		out = append(out, b.GetStats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// breakerProvider fails fast with a TransportError while its breaker is open,
// so an open breaker takes part in the same fallback rules as an unreachable backend.
type breakerProvider struct {
	next domain.Provider
	cb   *CircuitBreaker
}

// WithCircuitBreaker decorates p with cb.
func WithCircuitBreaker(p domain.Provider, cb *CircuitBreaker) domain.Provider {
	return &breakerProvider{next: p, cb: cb}
}

func (b *breakerProvider) ID() domain.ProviderID { return b.next.ID() }

func (b *breakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatStream, error) {
	if !b.cb.ShouldAttempt() {
		return nil, &domain.TransportError{Provider: b.next.ID(), Err: ErrCircuitOpen}
	}
	s, err := b.next.Chat(ctx, req)
	if err != nil {
		b.record(err)
		return nil, err
	}
	return &breakerStream{ChatStream: s, owner: b}, nil
}

// record counts unreachable backends and 5xx answers; 4xx answers and caller
// cancellation say nothing about backend health.
func (b *breakerProvider) record(err error) {
	switch {
	case err == nil:
		b.cb.RecordSuccess()
	case errors.Is(err, domain.ErrTransport):
		b.cb.RecordFailure()
	case errors.Is(err, domain.ErrProvider):
		var pe *domain.ProviderError
		if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < http.StatusInternalServerError {
			b.cb.RecordSuccess()
			return
		}
		b.cb.RecordFailure()
	default:
		// cancelled by the caller: release a half-open probe without judging the backend
		b.cb.releaseProbe()
	}
}

func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

type breakerStream struct {
	domain.ChatStream
	owner    *breakerProvider
	recorded bool
}

func (s *breakerStream) Recv() (string, error) {
	delta, err := s.ChatStream.Recv()
	if err != nil && !s.recorded {
		s.recorded = true
		if errors.Is(err, io.EOF) {
			s.owner.record(nil)
		} else {
			s.owner.record(err)
		}
	}
	return delta, err
}

func (s *breakerStream) Close() error {
	if !s.recorded {
		s.recorded = true
		s.owner.cb.releaseProbe()
	}
	return s.ChatStream.Close()
}

// Usage forwards backend token counts when the wrapped stream has them.
func (s *breakerStream) Usage() (domain.TokenUsage, bool) {
	if ur, ok := s.ChatStream.(stream.UsageReporter); ok {
		return ur.Usage()
	}
	return domain.TokenUsage{}, false
}

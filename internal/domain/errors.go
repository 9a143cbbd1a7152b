package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid task transition")
	ErrTransport           = errors.New("transport error")
	ErrProvider            = errors.New("provider error")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrInternal            = errors.New("internal error")
)

// TransportError means the backend could not be reached: DNS, refused
// connection, timeout, or an open circuit breaker.
type TransportError struct {
	Provider ProviderID
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrTransport, and ErrUpstreamTimeout when the cause was a deadline.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrUpstreamTimeout:
		return IsTimeout(e.Err)
	}
	return false
}

// ProviderError means the backend answered with a non-success status.
type ProviderError struct {
	Provider   ProviderID
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: provider error: %s", e.Provider, e.Body)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: provider status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// NewTransportError wraps err unless it already is a classified call error.
func NewTransportError(p ProviderID, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	var pe *ProviderError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}
	return &TransportError{Provider: p, Err: err}
}

// IsCallFailure reports whether err is a transport or provider failure, the two
// classes that trigger the auto-mode fallback.
func IsCallFailure(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrProvider)
}

// IsTimeout reports whether err is a deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

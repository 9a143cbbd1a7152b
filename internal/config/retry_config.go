package config

import (
	"time"
)

// RetryConfig holds the exponential backoff settings used when a persistence
// write fails.
type RetryConfig struct {
	// MaxElapsedTime bounds the total time spent retrying one snapshot.
	MaxElapsedTime time.Duration
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the delay between retries.
	MaxInterval time.Duration
	Multiplier  float64
}

// GetPersistRetryConfig returns retry settings appropriate for the current environment.
// In test environments, uses much shorter timeouts for faster test execution.
func (c Config) GetPersistRetryConfig() RetryConfig {
	if c.IsTest() {
		return RetryConfig{
			MaxElapsedTime:  time.Second,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2.0,
		}
	}
	return RetryConfig{
		MaxElapsedTime:  c.PersistMaxElapsedTime,
		InitialInterval: c.PersistInitialInterval,
		MaxInterval:     c.PersistMaxInterval,
		Multiplier:      c.PersistMultiplier,
	}
}

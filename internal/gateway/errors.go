// Package gateway wraps outbound calls to the recipe and nutrition
// providers with timeouts, retry, per-provider circuit breaking, and
// a short-TTL response cache.
package gateway

import (
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindHTTPError   ErrorKind = "http_error"
	KindRateLimited ErrorKind = "rate_limited"
)

// ServiceError is a provider call failure after retries were
// exhausted (or were not applicable).
type ServiceError struct {
	Provider string
	Kind     ErrorKind
	Status   int // HTTP status when Kind is http_error or rate_limited
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d, %d attempts): %v", e.Provider, e.Kind, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s (%d attempts): %v", e.Provider, e.Kind, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// CircuitOpenError is returned without contacting the provider while
// its breaker is open.
type CircuitOpenError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: circuit open, retry in %s", e.Provider, e.RetryAfter.Round(time.Millisecond))
}

package gateway

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker is a per-provider circuit breaker. It opens after threshold
// consecutive failures inside the sliding window, rejects calls for
// the cooldown period, then admits a single half-open probe. A
// successful probe closes the circuit; a failed one reopens it.
type breaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	firstFail time.Time
	openedAt  time.Time
	probing   bool

	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time
}

func newBreaker(threshold int, window, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// allow reports whether a call may proceed. When the breaker is open
// and the cooldown has not elapsed it returns the remaining wait.
func (b *breaker) allow() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true, 0
	case breakerOpen:
		remaining := b.cooldown - b.now().Sub(b.openedAt)
		if remaining > 0 {
			return false, remaining
		}
		b.state = breakerHalfOpen
		b.probing = true
		return true, 0
	default: // half-open, one probe in flight
		if b.probing {
			return false, b.cooldown
		}
		b.probing = true
		return true, 0
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
	b.probing = false
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = now
		b.probing = false
		return
	}

	if b.failures == 0 || now.Sub(b.firstFail) > b.window {
		b.failures = 0
		b.firstFail = now
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = now
	}
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/fitstack/coach/internal/httpkit"
)

// Options tunes the outbound call policy. Zero values fall back to
// the defaults below.
type Options struct {
	CallTimeout      time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	BreakerThreshold int
	BreakerWindow    time.Duration
	BreakerCooldown  time.Duration
	CacheTTL         time.Duration
}

const (
	defaultCallTimeout      = 10 * time.Second
	defaultMaxRetries       = 3
	defaultBackoffBase      = 250 * time.Millisecond
	defaultBackoffCap       = 4 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerWindow    = 30 * time.Second
	defaultBreakerCooldown  = 15 * time.Second
)

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaultCallTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = defaultBackoffCap
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = defaultBreakerThreshold
	}
	if o.BreakerWindow <= 0 {
		o.BreakerWindow = defaultBreakerWindow
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = defaultBreakerCooldown
	}
	return o
}

// Caller executes provider requests under the shared reliability
// policy. One Caller serves all providers; breaker state and the
// response cache are partitioned by provider name.
type Caller struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
	cache  *responseCache

	mu       sync.Mutex
	breakers map[string]*breaker

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(d time.Duration) time.Duration
	onCall func(provider, outcome string)
}

func NewCaller(client *http.Client, opts Options, logger *slog.Logger) *Caller {
	if client == nil {
		client = httpkit.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Caller{
		client:   client,
		opts:     opts,
		logger:   logger.With("component", "gateway"),
		cache:    newResponseCache(opts.CacheTTL),
		breakers: make(map[string]*breaker),
		sleep:    sleepCtx,
		jitter:   defaultJitter,
	}
}

// OnCall registers a callback invoked once per Get with the provider
// name and outcome (ok, error, circuit_open, cache_hit). Used to feed
// metrics.
func (c *Caller) OnCall(fn func(provider, outcome string)) { c.onCall = fn }

func (c *Caller) report(provider, outcome string) {
	if c.onCall != nil {
		c.onCall(provider, outcome)
	}
}

func (c *Caller) breakerFor(provider string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[provider]
	if !ok {
		b = newBreaker(c.opts.BreakerThreshold, c.opts.BreakerWindow, c.opts.BreakerCooldown)
		c.breakers[provider] = b
	}
	return b
}

// Get fetches the URL under the reliability policy. The response body
// of a 2xx answer is cached by (provider, url) for the cache TTL;
// cache hits bypass the breaker entirely.
func (c *Caller) Get(ctx context.Context, provider, url string, headers http.Header) ([]byte, error) {
	cacheKey := provider + "|" + url
	if body, ok := c.cache.get(cacheKey); ok {
		c.report(provider, "cache_hit")
		return body, nil
	}

	b := c.breakerFor(provider)
	if ok, wait := b.allow(); !ok {
		c.report(provider, "circuit_open")
		return nil, &CircuitOpenError{Provider: provider, RetryAfter: wait}
	}

	body, err := c.fetchWithRetry(ctx, provider, url, headers)
	if err != nil {
		b.recordFailure()
		c.report(provider, "error")
		return nil, err
	}
	b.recordSuccess()
	c.cache.put(cacheKey, body)
	c.report(provider, "ok")
	return body, nil
}

func (c *Caller) fetchWithRetry(ctx context.Context, provider, url string, headers http.Header) ([]byte, error) {
	var lastErr *ServiceError
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.jitter(exponentialBackoff(attempt-1, c.opts.BackoffBase, c.opts.BackoffCap))
			c.logger.Debug("retrying provider call",
				"provider", provider, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, lastErr
			}
		}

		body, serr := c.fetchOnce(ctx, provider, url, headers)
		if serr == nil {
			return body, nil
		}
		serr.Attempts = attempt + 1
		lastErr = serr
		if !retryable(serr) {
			break
		}
	}
	c.logger.Warn("provider call failed",
		"provider", provider, "kind", lastErr.Kind, "attempts", lastErr.Attempts)
	return nil, lastErr
}

func (c *Caller) fetchOnce(ctx context.Context, provider, url string, headers http.Header) ([]byte, *ServiceError) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ServiceError{Provider: provider, Kind: KindHTTPError, Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		kind := KindHTTPError
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		return nil, &ServiceError{Provider: provider, Kind: kind, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := KindHTTPError
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
		return nil, &ServiceError{
			Provider: provider,
			Kind:     kind,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512)),
		}
	}

	defer httpkit.DrainAndClose(resp.Body, 1<<20)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Provider: provider, Kind: KindHTTPError, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// retryable reports whether another attempt could help. Timeouts,
// connection failures, and transient statuses qualify; other 4xx
// responses do not.
func retryable(e *ServiceError) bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited:
		return true
	}
	switch e.Status {
	case 0, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func exponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

func defaultJitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

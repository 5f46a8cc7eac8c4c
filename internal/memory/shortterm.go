package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fitstack/coach/internal/identity"
)

// ShortTermStore holds the sliding window of recent turns per user.
// Recent returns turns newest first and never includes expired ones.
type ShortTermStore interface {
	Append(ctx context.Context, turn Turn) error
	Recent(ctx context.Context, user identity.UserHash) ([]Turn, error)
	Clear(ctx context.Context, user identity.UserHash) error
}

const shortTermKeyPrefix = "memory:short_term:"

// RedisShortTerm stores the window as a Redis list, newest at the
// head, trimmed to the window size on every append. The key TTL is
// refreshed on write; per-turn expiry is also recorded in the payload
// so a refreshed key cannot resurrect stale turns.
type RedisShortTerm struct {
	client *redis.Client
	window int
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisShortTerm(client *redis.Client, window int, ttl time.Duration, logger *slog.Logger) *RedisShortTerm {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisShortTerm{
		client: client,
		window: window,
		ttl:    ttl,
		logger: logger.With("component", "memory.shortterm"),
		now:    time.Now,
	}
}

func shortTermKey(user identity.UserHash) string {
	return shortTermKeyPrefix + string(user)
}

func (s *RedisShortTerm) Append(ctx context.Context, turn Turn) error {
	if turn.ExpiresAt.IsZero() {
		turn.ExpiresAt = turn.CreatedAt.Add(s.ttl)
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}

	key := shortTermKey(turn.UserHash)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(s.window-1))
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisShortTerm) Recent(ctx context.Context, user identity.UserHash) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, shortTermKey(user), 0, int64(s.window-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := s.now()
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			s.logger.Warn("skipping undecodable turn", "user", user.Short(), "error", err)
			continue
		}
		if !t.ExpiresAt.After(now) {
			continue
		}
		t.UserHash = user
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisShortTerm) Clear(ctx context.Context, user identity.UserHash) error {
	if err := s.client.Del(ctx, shortTermKey(user)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// MemShortTerm is an in-process ShortTermStore with the same window
// and expiry semantics as the Redis one. It backs tests and degraded
// single-node runs.
type MemShortTerm struct {
	mu     sync.Mutex
	turns  map[identity.UserHash][]Turn
	window int
	ttl    time.Duration
	now    func() time.Time
}

func NewMemShortTerm(window int, ttl time.Duration) *MemShortTerm {
	return &MemShortTerm{
		turns:  make(map[identity.UserHash][]Turn),
		window: window,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *MemShortTerm) Append(_ context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.ExpiresAt.IsZero() {
		turn.ExpiresAt = turn.CreatedAt.Add(s.ttl)
	}
	list := append([]Turn{turn}, s.turns[turn.UserHash]...)
	if len(list) > s.window {
		list = list[:s.window]
	}
	s.turns[turn.UserHash] = list
	return nil
}

func (s *MemShortTerm) Recent(_ context.Context, user identity.UserHash) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]Turn, 0, len(s.turns[user]))
	for _, t := range s.turns[user] {
		if t.ExpiresAt.After(now) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemShortTerm) Clear(_ context.Context, user identity.UserHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, user)
	return nil
}

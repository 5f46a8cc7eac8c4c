package memory

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fitstack/coach/internal/embeddings"
	"github.com/fitstack/coach/internal/identity"
)

// TrimOrder controls which tier loses entries first when the
// assembled context exceeds the budget.
type TrimOrder string

const (
	// TrimShortFirst drops the oldest short-term entries, then the
	// lowest-similarity long-term entries.
	TrimShortFirst TrimOrder = "short_first"
	// TrimLongFirst drops the lowest-similarity long-term entries,
	// then the oldest short-term entries.
	TrimLongFirst TrimOrder = "long_first"
)

// Policy tunes context assembly and persistence.
type Policy struct {
	TopK          int
	MinScore      float32
	ContextBudget int // token estimate, 0 disables trimming
	TrimOrder     TrimOrder
	TTL           time.Duration
	WriteTimeout  time.Duration
}

// Manager coordinates the two memory tiers. Every method degrades
// rather than fails: a tier that errors is skipped and logged, and
// the conversation continues without it.
type Manager struct {
	short    ShortTermStore
	long     LongTermStore
	embedder embeddings.Embedder
	policy   Policy
	logger   *slog.Logger
	pending  chan struct{} // counts in-flight long-term writes
	onError  func(tier string)
	now      func() time.Time
}

const maxPendingWrites = 256

func NewManager(short ShortTermStore, long LongTermStore, embedder embeddings.Embedder, policy Policy, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.TopK <= 0 {
		policy.TopK = 3
	}
	if policy.TrimOrder == "" {
		policy.TrimOrder = TrimShortFirst
	}
	if policy.WriteTimeout <= 0 {
		policy.WriteTimeout = 10 * time.Second
	}
	return &Manager{
		short:    short,
		long:     long,
		embedder: embedder,
		policy:   policy,
		logger:   logger.With("component", "memory"),
		pending:  make(chan struct{}, maxPendingWrites),
		now:      time.Now,
	}
}

// OnError registers a callback invoked with the tier name whenever a
// backend operation fails. Used to feed failure metrics.
func (m *Manager) OnError(fn func(tier string)) { m.onError = fn }

func (m *Manager) reportError(tier string) {
	if m.onError != nil {
		m.onError(tier)
	}
}

// AssembleContext gathers both tiers for a user's incoming message.
// Short-term entries come back newest first; long-term entries in
// descending similarity, ties broken by recency. Assembly never
// fails: an unavailable tier contributes nothing.
func (m *Manager) AssembleContext(ctx context.Context, user identity.UserHash, message string) []Entry {
	var entries []Entry

	recalled := m.recall(ctx, user, message)
	for _, r := range recalled {
		entries = append(entries, Entry{
			Source:    SourceLongTerm,
			Role:      "memory",
			Text:      r.Text,
			CreatedAt: r.CreatedAt,
			Score:     r.Score,
		})
	}

	turns, err := m.short.Recent(ctx, user)
	if err != nil {
		m.reportError("short_term")
		m.logger.Warn("short-term recall failed, continuing without it", "user", user.Short(), "error", err)
	}
	for _, t := range turns {
		entries = append(entries, Entry{
			Source:    SourceShortTerm,
			Role:      t.Role,
			Text:      t.Text,
			CreatedAt: t.CreatedAt,
		})
	}

	return m.trim(entries)
}

func (m *Manager) recall(ctx context.Context, user identity.UserHash, message string) []Result {
	if m.embedder == nil || m.long == nil || message == "" {
		return nil
	}
	vector, err := m.embedder.Generate(ctx, message)
	if err != nil {
		m.reportError("embeddings")
		m.logger.Warn("query embedding failed, skipping long-term recall", "user", user.Short(), "error", err)
		return nil
	}
	results, err := m.long.Search(ctx, user, vector, m.policy.TopK, m.policy.MinScore)
	if err != nil {
		m.reportError("long_term")
		m.logger.Warn("long-term recall failed, continuing without it", "user", user.Short(), "error", err)
		return nil
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results
}

// trim drops entries until the estimated token total fits the budget.
func (m *Manager) trim(entries []Entry) []Entry {
	if m.policy.ContextBudget <= 0 {
		return entries
	}
	for estimateTokens(entries) > m.policy.ContextBudget {
		var dropped bool
		switch m.policy.TrimOrder {
		case TrimLongFirst:
			entries, dropped = dropOne(entries, SourceLongTerm)
			if !dropped {
				entries, dropped = dropOne(entries, SourceShortTerm)
			}
		default:
			entries, dropped = dropOne(entries, SourceShortTerm)
			if !dropped {
				entries, dropped = dropOne(entries, SourceLongTerm)
			}
		}
		if !dropped {
			break
		}
	}
	return entries
}

// dropOne removes the least valuable entry of the given tier: the
// oldest short-term entry, or the lowest-similarity long-term one.
func dropOne(entries []Entry, src Source) ([]Entry, bool) {
	victim := -1
	for i, e := range entries {
		if e.Source != src {
			continue
		}
		if victim == -1 {
			victim = i
			continue
		}
		switch src {
		case SourceShortTerm:
			if e.CreatedAt.Before(entries[victim].CreatedAt) {
				victim = i
			}
		case SourceLongTerm:
			if e.Score < entries[victim].Score {
				victim = i
			}
		}
	}
	if victim == -1 {
		return entries, false
	}
	return append(entries[:victim], entries[victim+1:]...), true
}

func estimateTokens(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += len(e.Text)/4 + 4
	}
	return total
}

// PersistTurn records a turn in both tiers. The short-term write is
// synchronous; the long-term embed and upsert run in the background
// detached from the request context so a finished turn cannot cancel
// them. Failures in either tier are logged and swallowed.
func (m *Manager) PersistTurn(ctx context.Context, user identity.UserHash, role, text string) {
	now := m.now()
	turn := Turn{
		ID:        uuid.NewString(),
		UserHash:  user,
		Role:      role,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(m.policy.TTL),
	}
	if err := m.short.Append(ctx, turn); err != nil {
		m.reportError("short_term")
		m.logger.Warn("short-term persist failed", "user", user.Short(), "error", err)
	}

	if m.embedder == nil || m.long == nil {
		return
	}
	select {
	case m.pending <- struct{}{}:
	default:
		m.reportError("long_term")
		m.logger.Warn("long-term write queue full, dropping record", "user", user.Short())
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() { <-m.pending }()
		wctx, cancel := context.WithTimeout(detached, m.policy.WriteTimeout)
		defer cancel()
		m.persistLongTerm(wctx, turn)
	}()
}

func (m *Manager) persistLongTerm(ctx context.Context, turn Turn) {
	vector, err := m.embedder.Generate(ctx, turn.Role+": "+turn.Text)
	if err != nil {
		m.reportError("embeddings")
		m.logger.Warn("embedding for persist failed", "user", turn.UserHash.Short(), "error", err)
		return
	}
	rec := Record{
		ID:        turn.ID,
		UserHash:  turn.UserHash,
		Text:      turn.Role + ": " + turn.Text,
		Vector:    vector,
		CreatedAt: turn.CreatedAt,
	}
	if err := m.long.Add(ctx, rec); err != nil {
		m.reportError("long_term")
		m.logger.Warn("long-term persist failed", "user", turn.UserHash.Short(), "error", err)
	}
}

// Flush blocks until all background long-term writes have finished
// or the context expires.
func (m *Manager) Flush(ctx context.Context) error {
	for i := 0; i < maxPendingWrites; i++ {
		select {
		case m.pending <- struct{}{}:
		case <-ctx.Done():
			for j := 0; j < i; j++ {
				<-m.pending
			}
			return ctx.Err()
		}
	}
	for i := 0; i < maxPendingWrites; i++ {
		<-m.pending
	}
	return nil
}

// DeleteUser erases every trace of the user from both tiers. Unlike
// recall, deletion reports failure so the caller can retry.
func (m *Manager) DeleteUser(ctx context.Context, user identity.UserHash) error {
	var firstErr error
	if err := m.short.Clear(ctx, user); err != nil {
		m.reportError("short_term")
		firstErr = err
	}
	if m.long != nil {
		if err := m.long.DeleteUser(ctx, user); err != nil {
			m.reportError("long_term")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/fitstack/coach/internal/identity"
)

var (
	alice = identity.Hash("token-alice")
	bob   = identity.Hash("token-bob")
)

// keywordEmbedder maps each known keyword to its own axis, so texts
// sharing keywords score high and unrelated texts score zero.
type keywordEmbedder struct {
	keywords []string
}

func (e *keywordEmbedder) Generate(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.keywords)+1)
	hit := false
	for i, kw := range e.keywords {
		if containsWord(text, kw) {
			vec[i] = 1
			hit = true
		}
	}
	if !hit {
		vec[len(e.keywords)] = 1
	}
	return vec, nil
}

func containsWord(text, word string) bool {
	for i := 0; i+len(word) <= len(text); i++ {
		if text[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

// fixedEmbedder returns the same vector for every text, so long-term
// scores are controlled entirely by the stored record vectors.
type fixedEmbedder struct {
	vec []float32
}

func (e fixedEmbedder) Generate(context.Context, string) ([]float32, error) {
	return e.vec, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Generate(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

type failingShortTerm struct{}

func (failingShortTerm) Append(context.Context, Turn) error { return ErrUnavailable }
func (failingShortTerm) Recent(context.Context, identity.UserHash) ([]Turn, error) {
	return nil, ErrUnavailable
}
func (failingShortTerm) Clear(context.Context, identity.UserHash) error { return ErrUnavailable }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestMemShortTermWindowAndOrder(t *testing.T) {
	store := NewMemShortTerm(3, time.Hour)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		err := store.Append(ctx, Turn{
			ID:        fmt.Sprintf("t%d", i),
			UserHash:  alice,
			Role:      "user",
			Text:      fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	turns, err := store.Recent(ctx, alice)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want window of 3", len(turns))
	}
	for i, want := range []string{"t4", "t3", "t2"} {
		if turns[i].ID != want {
			t.Errorf("turns[%d].ID = %q, want %q", i, turns[i].ID, want)
		}
	}
}

func TestMemShortTermTTLExpiry(t *testing.T) {
	store := NewMemShortTerm(10, time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	if err := store.Append(ctx, Turn{ID: "t1", UserHash: alice, Role: "user", Text: "hi", CreatedAt: now}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	turns, err := store.Recent(ctx, alice)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("before expiry: got %d turns, want 1", len(turns))
	}

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	turns, err = store.Recent(ctx, alice)
	if err != nil {
		t.Fatalf("Recent after expiry: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("after expiry: got %d turns, want 0", len(turns))
	}
}

func TestMemShortTermIsolation(t *testing.T) {
	store := NewMemShortTerm(10, time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.Append(ctx, Turn{ID: "a1", UserHash: alice, Role: "user", Text: "alice says", CreatedAt: now})
	store.Append(ctx, Turn{ID: "b1", UserHash: bob, Role: "user", Text: "bob says", CreatedAt: now})

	turns, _ := store.Recent(ctx, alice)
	if len(turns) != 1 || turns[0].ID != "a1" {
		t.Fatalf("alice sees %v, want only a1", turns)
	}
	turns, _ = store.Recent(ctx, bob)
	if len(turns) != 1 || turns[0].ID != "b1" {
		t.Fatalf("bob sees %v, want only b1", turns)
	}
}

func TestMemLongTermSimilarityOrderingAndThreshold(t *testing.T) {
	store := NewMemLongTerm()
	embed := &keywordEmbedder{keywords: []string{"protein", "running", "sleep"}}
	ctx := context.Background()

	add := func(id, text string, created time.Time) {
		vec, _ := embed.Generate(ctx, text)
		if err := store.Add(ctx, Record{ID: id, UserHash: alice, Text: text, Vector: vec, CreatedAt: created}); err != nil {
			t.Fatalf("Add %s: %v", id, err)
		}
	}
	base := time.Now()
	add("r1", "protein and running plan", base)
	add("r2", "protein intake notes", base.Add(time.Minute))
	add("r3", "sleep schedule", base)

	query, _ := embed.Generate(ctx, "how much protein do I need for running")
	results, err := store.Search(ctx, alice, query, 5, 0.3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (sleep note below threshold)", len(results))
	}
	if results[0].ID != "r1" {
		t.Errorf("top result = %s, want r1 (shares both keywords)", results[0].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at index %d", i)
		}
	}
}

func TestMemLongTermTieBreakByRecency(t *testing.T) {
	store := NewMemLongTerm()
	ctx := context.Background()
	base := time.Now()

	vec := []float32{1, 0}
	store.Add(ctx, Record{ID: "old", UserHash: alice, Text: "old", Vector: vec, CreatedAt: base})
	store.Add(ctx, Record{ID: "new", UserHash: alice, Text: "new", Vector: vec, CreatedAt: base.Add(time.Minute)})

	results, err := store.Search(ctx, alice, vec, 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].ID != "new" {
		t.Fatalf("tie not broken by recency: %+v", results)
	}
}

func TestMemLongTermIsolation(t *testing.T) {
	store := NewMemLongTerm()
	ctx := context.Background()
	vec := []float32{1, 0}

	store.Add(ctx, Record{ID: "a1", UserHash: alice, Text: "alice memory", Vector: vec, CreatedAt: time.Now()})
	store.Add(ctx, Record{ID: "b1", UserHash: bob, Text: "bob memory", Vector: vec, CreatedAt: time.Now()})

	results, _ := store.Search(ctx, alice, vec, 5, 0)
	if len(results) != 1 || results[0].ID != "a1" {
		t.Fatalf("alice sees %+v, want only a1", results)
	}
}

func TestManagerPersistThenRecall(t *testing.T) {
	embed := &keywordEmbedder{keywords: []string{"mealplan", "weather"}}
	mgr := NewManager(
		NewMemShortTerm(10, time.Hour),
		NewMemLongTerm(),
		embed,
		Policy{TopK: 3, MinScore: 0.5, TTL: time.Hour},
		testLogger(),
	)
	ctx := context.Background()

	mgr.PersistTurn(ctx, alice, "assistant", "your mealplan: 2200 kcal across three meals")
	if err := mgr.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	entries := mgr.AssembleContext(ctx, alice, "what was my last mealplan?")
	var foundLong, foundShort bool
	for _, e := range entries {
		if e.Source == SourceLongTerm && containsWord(e.Text, "2200 kcal") {
			foundLong = true
		}
		if e.Source == SourceShortTerm && containsWord(e.Text, "2200 kcal") {
			foundShort = true
		}
	}
	if !foundLong {
		t.Error("persisted turn not recalled from long-term tier")
	}
	if !foundShort {
		t.Error("persisted turn missing from short-term tier")
	}

	entries = mgr.AssembleContext(ctx, bob, "what was my last mealplan?")
	if len(entries) != 0 {
		t.Fatalf("bob recalled %d of alice's entries, want 0", len(entries))
	}
}

func TestManagerDegradesWhenShortTermDown(t *testing.T) {
	embed := &keywordEmbedder{keywords: []string{"protein"}}
	long := NewMemLongTerm()
	vec, _ := embed.Generate(context.Background(), "protein targets")
	long.Add(context.Background(), Record{ID: "r1", UserHash: alice, Text: "protein targets", Vector: vec, CreatedAt: time.Now()})

	var failures []string
	mgr := NewManager(failingShortTerm{}, long, embed, Policy{TopK: 3, MinScore: 0.5, TTL: time.Hour}, testLogger())
	mgr.OnError(func(tier string) { failures = append(failures, tier) })

	entries := mgr.AssembleContext(context.Background(), alice, "protein question")
	if len(entries) != 1 || entries[0].Source != SourceLongTerm {
		t.Fatalf("expected long-term-only context, got %+v", entries)
	}
	if len(failures) != 1 || failures[0] != "short_term" {
		t.Errorf("failure callback got %v, want [short_term]", failures)
	}
}

func TestManagerDegradesWhenEmbeddingDown(t *testing.T) {
	short := NewMemShortTerm(10, time.Hour)
	short.Append(context.Background(), Turn{ID: "t1", UserHash: alice, Role: "user", Text: "hello", CreatedAt: time.Now()})

	mgr := NewManager(short, NewMemLongTerm(), failingEmbedder{}, Policy{TopK: 3, MinScore: 0.5, TTL: time.Hour}, testLogger())

	entries := mgr.AssembleContext(context.Background(), alice, "anything")
	if len(entries) != 1 || entries[0].Source != SourceShortTerm {
		t.Fatalf("expected short-term-only context, got %+v", entries)
	}
}

func TestManagerTrimDropsOldestShortTermFirst(t *testing.T) {
	short := NewMemShortTerm(10, time.Hour)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 4; i++ {
		short.Append(ctx, Turn{
			ID:        fmt.Sprintf("t%d", i),
			UserHash:  alice,
			Role:      "user",
			Text:      "some padding text to make each entry cost tokens",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	mgr := NewManager(short, nil, nil, Policy{TopK: 3, ContextBudget: 35, TTL: time.Hour}, testLogger())
	entries := mgr.AssembleContext(ctx, alice, "query")

	if len(entries) >= 4 {
		t.Fatalf("trimming did not drop anything: %d entries", len(entries))
	}
	for _, e := range entries {
		if e.CreatedAt.Equal(base) {
			t.Error("oldest entry survived trimming")
		}
	}
}

// trimFixture assembles a mixed context: two short-term turns plus
// two long-term records scoring 1.0 and 0.8 against the query vector.
// Every entry costs the same 16 estimated tokens.
func trimFixture(t *testing.T, policy Policy) []Entry {
	t.Helper()
	ctx := context.Background()
	base := time.Now()
	padding := "some padding text to make each entry cost tokens"

	short := NewMemShortTerm(10, time.Hour)
	for i := 0; i < 2; i++ {
		err := short.Append(ctx, Turn{
			ID:        fmt.Sprintf("t%d", i),
			UserHash:  alice,
			Role:      "user",
			Text:      padding,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	long := NewMemLongTerm()
	long.Add(ctx, Record{ID: "close", UserHash: alice, Text: padding, Vector: []float32{1, 0}, CreatedAt: base})
	long.Add(ctx, Record{ID: "far", UserHash: alice, Text: padding, Vector: []float32{0.8, 0.6}, CreatedAt: base})

	mgr := NewManager(short, long, fixedEmbedder{vec: []float32{1, 0}}, policy, testLogger())
	return mgr.AssembleContext(ctx, alice, "query")
}

func TestManagerTrimFallsThroughToLongTerm(t *testing.T) {
	// Budget fits a single entry: both short-term turns go first, then
	// the lower-similarity long-term record.
	entries := trimFixture(t, Policy{TopK: 3, MinScore: 0.5, ContextBudget: 16, TTL: time.Hour})

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after trimming, got %d: %+v", len(entries), entries)
	}
	if entries[0].Source != SourceLongTerm {
		t.Errorf("surviving entry source = %q, want long-term", entries[0].Source)
	}
	if entries[0].Score < 0.9 {
		t.Errorf("lowest-similarity record survived trimming, score = %v", entries[0].Score)
	}
}

func TestManagerTrimLongFirstDropsLongTermBeforeShort(t *testing.T) {
	entries := trimFixture(t, Policy{TopK: 3, MinScore: 0.5, ContextBudget: 35, TTL: time.Hour, TrimOrder: TrimLongFirst})

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after trimming, got %d: %+v", len(entries), entries)
	}
	for _, e := range entries {
		if e.Source != SourceShortTerm {
			t.Errorf("long-term entry survived trimming ahead of short-term: %+v", e)
		}
	}
}

func TestManagerDeleteUser(t *testing.T) {
	embed := &keywordEmbedder{keywords: []string{"goal"}}
	mgr := NewManager(NewMemShortTerm(10, time.Hour), NewMemLongTerm(), embed, Policy{TopK: 3, TTL: time.Hour}, testLogger())
	ctx := context.Background()

	mgr.PersistTurn(ctx, alice, "user", "my goal is 70kg")
	if err := mgr.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := mgr.DeleteUser(ctx, alice); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if entries := mgr.AssembleContext(ctx, alice, "what is my goal?"); len(entries) != 0 {
		t.Fatalf("entries survived deletion: %+v", entries)
	}
}

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fitstack/coach/internal/embeddings"
	"github.com/fitstack/coach/internal/identity"
)

// MemLongTerm is an in-process LongTermStore scoring by cosine
// similarity. It backs tests and degraded single-node runs.
type MemLongTerm struct {
	mu      sync.Mutex
	records map[identity.UserHash][]Record
}

func NewMemLongTerm() *MemLongTerm {
	return &MemLongTerm{records: make(map[identity.UserHash][]Record)}
}

func (s *MemLongTerm) Add(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserHash] = append(s.records[rec.UserHash], rec)
	return nil
}

func (s *MemLongTerm) Search(_ context.Context, user identity.UserHash, vector []float32, topK int, minScore float32) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []Result
	for _, rec := range s.records[user] {
		score := embeddings.CosineSimilarity(vector, rec.Vector)
		if score < minScore {
			continue
		}
		results = append(results, Result{Record: rec, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemLongTerm) DeleteUser(_ context.Context, user identity.UserHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, user)
	return nil
}

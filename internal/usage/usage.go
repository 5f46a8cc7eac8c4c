// Package usage tracks token usage for model interactions. Records
// are aggregated in process; totals reset on restart and are meant
// for operational visibility, not billing.
package usage

import (
	"sync"
	"time"
)

// Record is a single model interaction's token usage.
type Record struct {
	Timestamp    time.Time
	Model        string
	InputTokens  int
	OutputTokens int
}

// Summary holds aggregated token totals.
type Summary struct {
	TotalRecords      int   `json:"total_records"`
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
}

// Tracker aggregates usage records. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	total   Summary
	byModel map[string]*Summary
}

func NewTracker() *Tracker {
	return &Tracker{byModel: make(map[string]*Summary)}
}

// Add folds one record into the totals.
func (t *Tracker) Add(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.TotalRecords++
	t.total.TotalInputTokens += int64(rec.InputTokens)
	t.total.TotalOutputTokens += int64(rec.OutputTokens)

	s, ok := t.byModel[rec.Model]
	if !ok {
		s = &Summary{}
		t.byModel[rec.Model] = s
	}
	s.TotalRecords++
	s.TotalInputTokens += int64(rec.InputTokens)
	s.TotalOutputTokens += int64(rec.OutputTokens)
}

// Total returns the aggregate across all models.
func (t *Tracker) Total() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByModel returns per-model summaries.
func (t *Tracker) ByModel() map[string]Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Summary, len(t.byModel))
	for model, s := range t.byModel {
		out[model] = *s
	}
	return out
}

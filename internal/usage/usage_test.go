package usage

import (
	"sync"
	"testing"
	"time"
)

func TestTrackerAggregates(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Add(Record{Timestamp: now, Model: "gpt-4o-mini", InputTokens: 100, OutputTokens: 40})
	tr.Add(Record{Timestamp: now, Model: "gpt-4o-mini", InputTokens: 50, OutputTokens: 10})
	tr.Add(Record{Timestamp: now, Model: "gpt-4o", InputTokens: 10, OutputTokens: 5})

	total := tr.Total()
	if total.TotalRecords != 3 || total.TotalInputTokens != 160 || total.TotalOutputTokens != 55 {
		t.Errorf("total = %+v", total)
	}

	byModel := tr.ByModel()
	if s := byModel["gpt-4o-mini"]; s.TotalRecords != 2 || s.TotalInputTokens != 150 {
		t.Errorf("gpt-4o-mini = %+v", s)
	}
	if s := byModel["gpt-4o"]; s.TotalRecords != 1 {
		t.Errorf("gpt-4o = %+v", s)
	}
}

func TestTrackerConcurrentAdds(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Add(Record{Model: "gpt-4o-mini", InputTokens: 1, OutputTokens: 1})
		}()
	}
	wg.Wait()

	if total := tr.Total(); total.TotalRecords != 50 || total.TotalInputTokens != 50 {
		t.Errorf("total = %+v", total)
	}
}

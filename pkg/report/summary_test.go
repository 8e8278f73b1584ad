package report

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryText(t *testing.T) {
	s := New("run-1", time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC))
	s.Addf("Found %d records to process", 3)
	s.AddWindow(WindowSummary{
		Window:   "2024-03",
		Outcome:  "loaded",
		Records:  3,
		Inserted: map[string]int64{"tenders": 2, "buyers": 1},
		Errors:   []string{"failed to insert 1 rows into items: boom"},
		Duration: 1500 * time.Millisecond,
	})
	s.Finish(time.Date(2024, 3, 5, 6, 1, 0, 0, time.UTC), false)

	text := s.Text()
	assert.Contains(t, text, "run run-1 started 2024-03-05T06:00:00Z")
	assert.Contains(t, text, "[2024-03] loaded, 3 records, 1.5s")
	assert.Contains(t, text, "  buyers: 1 inserted\n  tenders: 2 inserted\n")
	assert.Contains(t, text, "  error: failed to insert 1 rows into items: boom")
	assert.Contains(t, text, "log:\nFound 3 records to process\n")

	assert.Equal(t, "fern: 1 window(s), ok", s.Subject("fern"))
}

func TestSummaryFailedSubject(t *testing.T) {
	s := New("run-2", time.Now())
	s.Finish(time.Now(), true)
	assert.Equal(t, "fern: 0 window(s), failed", s.Subject("fern"))
}

func TestSummaryJSON(t *testing.T) {
	s := New("run-3", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	s.AddWindow(WindowSummary{Window: "2024-01", Outcome: "no_document"})
	s.Addf("nothing to do")

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-3", decoded["run_id"])
	assert.NotContains(t, decoded, "finished_at")
	assert.Len(t, decoded["windows"], 1)
	assert.Equal(t, []any{"nothing to do"}, decoded["log"])
}

func TestSummaryConcurrentWrites(t *testing.T) {
	s := New("run-4", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Addf("line %d", i)
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Lines(), 20)
}

// Package report collects the human readable summary of a pipeline run.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// WindowSummary is the outcome of one processed window.
type WindowSummary struct {
	Window   string           `json:"window"`
	Outcome  string           `json:"outcome"`
	Records  int              `json:"records"`
	Inserted map[string]int64 `json:"inserted,omitempty"`
	Errors   []string         `json:"errors,omitempty"`
	Duration time.Duration    `json:"duration_ns"`
}

// Summary is the run log sink. It is safe for concurrent use.
type Summary struct {
	mu sync.Mutex

	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
	Failed     bool            `json:"failed"`
	Windows    []WindowSummary `json:"windows"`
	Log        []string        `json:"log"`
}

func New(runID string, startedAt time.Time) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: startedAt,
	}
}

// Addf appends a formatted line to the run log.
func (s *Summary) Addf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log = append(s.Log, fmt.Sprintf(format, args...))
}

// AddWindow records the outcome of a window.
func (s *Summary) AddWindow(w WindowSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Windows = append(s.Windows, w)
}

// Finish marks the run complete.
func (s *Summary) Finish(at time.Time, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishedAt = at
	s.Failed = failed
}

// Lines returns a copy of the run log.
func (s *Summary) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Log...)
}

// Subject is a one line description of the run.
func (s *Summary) Subject(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "ok"
	if s.Failed {
		status = "failed"
	}
	return fmt.Sprintf("%s: %d window(s), %s", prefix, len(s.Windows), status)
}

// Text renders the window table followed by the run log.
func (s *Summary) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "run %s started %s\n", s.RunID, s.StartedAt.UTC().Format(time.RFC3339))
	for _, w := range s.Windows {
		fmt.Fprintf(&b, "\n[%s] %s, %d records, %s\n", w.Window, w.Outcome, w.Records, w.Duration.Round(time.Millisecond))

		tables := make([]string, 0, len(w.Inserted))
		for table := range w.Inserted {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			fmt.Fprintf(&b, "  %s: %d inserted\n", table, w.Inserted[table])
		}
		for _, e := range w.Errors {
			fmt.Fprintf(&b, "  error: %s\n", e)
		}
	}

	if len(s.Log) > 0 {
		b.WriteString("\nlog:\n")
		for _, line := range s.Log {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// MarshalJSON encodes the summary under its lock.
func (s *Summary) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type plain Summary
	return json.Marshal((*plain)(s))
}

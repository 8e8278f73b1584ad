// Package window decides which monthly partitions of the source dataset a run processes.
package window

import (
	"fmt"
	"sort"
	"time"
)

// LateArrivalDay is the last day of a month on which the previous month is still reprocessed.
const LateArrivalDay = 10

// Window is a (year, month) partition of the source dataset.
type Window struct {
	Year  int
	Month time.Month
}

// New creates a window for the given year and month.
func New(year int, month time.Month) Window {
	return Window{Year: year, Month: month}
}

// Of returns the window containing t.
func Of(t time.Time) Window {
	return Window{Year: t.Year(), Month: t.Month()}
}

// Parse parses a window in the form YYYY-MM.
func Parse(s string) (Window, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q, expected YYYY-MM: %w", s, err)
	}
	return Of(t), nil
}

// Previous returns the calendar month before w.
func (w Window) Previous() Window {
	if w.Month == time.January {
		return Window{Year: w.Year - 1, Month: time.December}
	}
	return Window{Year: w.Year, Month: w.Month - 1}
}

// Before reports whether w is chronologically earlier than other.
func (w Window) Before(other Window) bool {
	if w.Year != other.Year {
		return w.Year < other.Year
	}
	return w.Month < other.Month
}

// String formats the window as YYYY-MM.
func (w Window) String() string {
	return fmt.Sprintf("%04d-%02d", w.Year, int(w.Month))
}

// Key formats the window as YYYY_MM, used for directory names and lock keys.
func (w Window) Key() string {
	return fmt.Sprintf("%04d_%02d", w.Year, int(w.Month))
}

// MonthPadded returns the two digit month.
func (w Window) MonthPadded() string {
	return fmt.Sprintf("%02d", int(w.Month))
}

// Select returns the windows to process for the given day: the current month, plus the
// previous month while its publications may still be arriving. The result is distinct
// and sorted ascending.
func Select(today time.Time) []Window {
	current := Of(today)
	candidates := []Window{current}
	if today.Day() <= LateArrivalDay {
		candidates = append(candidates, current.Previous())
	}
	return normalize(candidates)
}

func normalize(windows []Window) []Window {
	seen := make(map[Window]struct{}, len(windows))
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

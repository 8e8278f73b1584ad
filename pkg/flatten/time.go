package flatten

import (
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/ocds"
)

// Layouts seen in published packages, most common first. Values without a zone are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime returns nil for unset or unparseable values.
func parseTime(t ocds.Text) *time.Time {
	if !t.IsSet() {
		return nil
	}
	raw := strings.TrimSpace(t.String())
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}

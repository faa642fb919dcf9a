package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/effortless/internal/domain"
)

// floatingLayouts are accepted for timestamps recorded without an offset.
var floatingLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an RFC 3339 timestamp (offset-aware) or one of the
// offset-less layouts, which yield a time in domain.Floating.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("ParseTimestamp: empty value")
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range floatingLayouts {
		if t, err := time.ParseInLocation(layout, s, domain.Floating); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("ParseTimestamp: unrecognized timestamp %q", s)
}

// FormatTimestamp renders t so that ParseTimestamp restores its awareness.
func FormatTimestamp(t time.Time) string {
	if domain.IsFloating(t) {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format(time.RFC3339)
}

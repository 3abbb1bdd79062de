// ABOUTME: Timestamp parsing shared by stored records and API requests
// ABOUTME: Accepts RFC 3339 and naive ISO 8601 forms, naive ones read as UTC

package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an RFC 3339 timestamp or a naive ISO 8601 one. The
// result is in UTC; timestamps without an offset are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// looseTime decodes RFC 3339 exactly as time.Time does and falls back to
// ParseTime for naive timestamps written by older exports.
type looseTime time.Time

func (t *looseTime) UnmarshalJSON(data []byte) error {
	var strict time.Time
	if err := strict.UnmarshalJSON(data); err == nil {
		*t = looseTime(strict)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = looseTime(parsed)
	return nil
}

// Package models defines the persisted entities shared by the storage,
// ingestion, and API layers.
package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// displayLayout is the timestamp format rendered to API clients.
	displayLayout = "2006-01-02 15:04:05"

	// stampLayout is the microsecond layout carried in master event stamps.
	stampLayout = "2006-01-02T15:04:05.000000"
)

// Time wraps time.Time with the wire format used across the API: values
// serialize as "2006-01-02 15:04:05" in UTC.
type Time struct {
	time.Time
}

// NewTime converts a time.Time into the API representation.
func NewTime(t time.Time) Time {
	return Time{t.UTC()}
}

// Now returns the current time in the API representation.
func Now() Time {
	return NewTime(time.Now())
}

// ParseStamp parses a master event `_stamp` value.
func ParseStamp(s string) (Time, error) {
	t, err := time.Parse(stampLayout, s)
	if err != nil {
		return Time{}, fmt.Errorf("parsing event stamp %q: %w", s, err)
	}
	return NewTime(t), nil
}

// MarshalJSON renders the display layout as a JSON string.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(displayLayout) + `"`), nil
}

// UnmarshalJSON accepts the display layout, with RFC 3339 as a fallback for
// machine-produced documents.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(displayLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}

// String returns the display layout.
func (t Time) String() string {
	return t.UTC().Format(displayLayout)
}

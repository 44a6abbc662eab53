package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Time is a UTC timestamp as the service sends it. The service emits ISO-8601
// strings that may omit the zone designator; those are read as UTC.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// NewTime wraps t, normalised to UTC.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

// UnmarshalJSON accepts null, RFC 3339 and zone-less ISO-8601 strings.
func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	if s == "" {
		*t = Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q: unsupported layout", s)
}

// MarshalJSON writes RFC 3339 in UTC, or null for the zero value.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

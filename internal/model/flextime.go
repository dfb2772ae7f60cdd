package model

import (
	"encoding/json"
	"time"
)

// timeLayouts are tried in order when decoding a timestamp. The
// upstream trigger emits RFC 3339, but rows written by hand or by older
// clients have been seen without a zone or with a space separator.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FlexTime is a timestamp that never fails to decode. Absent, null or
// unparseable values come out as the zero time, so a record with a
// mangled timestamp still produces a notification instead of a 400;
// formatting then degrades to the zero-time text.
type FlexTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}

	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

package ha

import (
	"bytes"
	"encoding/json"
	"time"
)

// timestampLayout is the layout Home Assistant emits: numeric offset, fractional
// seconds only when non-zero.
const timestampLayout = "2006-01-02T15:04:05.999999999-07:00"

// ParseTimestamp parses an ISO-8601 date-time with an explicit UTC offset, such
// as "2023-04-25T23:49:34.728773+00:00". Fractional seconds of any precision are
// accepted and the offset is kept as given.
func ParseTimestamp(s string) (time.Time, error) {
	// RFC 3339 parsing accepts a fractional second even though the layout has none.
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ParseError{Value: s, Err: err}
	}
	return t, nil
}

// FormatTimestamp renders t in the layout Home Assistant uses
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// Timestamp is a time.Time that encodes to and from Home Assistant timestamps.
// The zero value encodes as null.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(FormatTimestamp(t.Time))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &ParseError{Value: string(data), Err: err}
	}

	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Equal reports whether both timestamps denote the same instant with the same offset
func (t Timestamp) Equal(other Timestamp) bool {
	_, offset := t.Zone()
	_, otherOffset := other.Zone()
	return t.Time.Equal(other.Time) && offset == otherOffset
}

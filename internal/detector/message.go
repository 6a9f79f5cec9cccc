package detector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timestampLayout is the fixed wire format for payload timestamps.
const timestampLayout = "2006-01-02T15:04:05"

// Timestamp is a payload timestamp in the pipeline's fixed wire format.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses "YYYY-MM-DDTHH:MM:SS". Null and empty strings leave
// the timestamp zero, matching an absent optional field.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON outputs the timestamp in the wire format.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(timestampLayout))
}

// Destinations accepts either a single string or a list of strings, which is
// how upstream services encode the metadata destination field.
type Destinations []string

// UnmarshalJSON handles both wire shapes.
func (d *Destinations) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*d = Destinations{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("destination must be a string or list of strings: %w", err)
	}
	*d = Destinations(many)
	return nil
}

// Metadata is the message envelope header.
type Metadata struct {
	ID          string       `json:"id"`
	Method      string       `json:"method"`
	Destination Destinations `json:"destination"`
}

// Article is the content payload inspected by detectors. Optional fields are
// zero-valued when absent; detectors treat zero as "missing" before touching
// a field.
type Article struct {
	Source      string    `json:"source"`
	Date        Timestamp `json:"date"`
	LoadingDate Timestamp `json:"loading_date"`
	Delta       int64     `json:"delta"`

	ChatID        int64 `json:"chat_id"`
	Views         int64 `json:"views"`
	Forwards      int64 `json:"forwards"`
	ReactionCount int64 `json:"reaction_count"`

	Country           string `json:"country"`
	ForwardFromChatID int64  `json:"forward_from_chat_id"`
}

// Message is one pipeline event: envelope metadata plus the article payload.
type Message struct {
	Metadata Metadata `json:"metadata"`
	Payload  Article  `json:"payload"`
}

// ParseMessage decodes a raw pipeline message.
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline message: %w", err)
	}
	if msg.Metadata.ID == "" {
		return nil, fmt.Errorf("pipeline message has no metadata id")
	}
	return &msg, nil
}

// EffectiveDate is the article's anomaly date: the loading date when present,
// otherwise the publication date.
func (m *Message) EffectiveDate() time.Time {
	if !m.Payload.LoadingDate.IsZero() {
		return m.Payload.LoadingDate.Time
	}
	return m.Payload.Date.Time
}

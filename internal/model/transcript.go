package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the speaker or source of a transcript entry.
type Role string

const (
	RoleEvent     Role = "event"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// SentimentMarkerName is the event name the call platform uses for
// sentiment tags.
const SentimentMarkerName = "sentiment_hr"

// TranscriptEntry is the wire shape of one transcript item.
type TranscriptEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// TranscriptEvent is either a DialogueTurn or a MarkerEvent.
type TranscriptEvent interface {
	transcriptEvent()
}

// DialogueTurn is something said on the call, or an unnamed platform event.
type DialogueTurn struct {
	Role    Role
	Content string
}

// MarkerEvent is a named structured event emitted by the platform.
type MarkerEvent struct {
	Name  string
	Value string
}

func (DialogueTurn) transcriptEvent() {}
func (MarkerEvent) transcriptEvent() {}

// Event converts the wire entry into its variant. Only role "event" entries
// with a name are markers.
func (e TranscriptEntry) Event() TranscriptEvent {
	if e.Role == RoleEvent && e.Name != "" {
		return MarkerEvent{Name: e.Name, Value: e.Content}
	}
	return DialogueTurn{Role: e.Role, Content: e.Content}
}

// Validate checks the entry's role.
func (e TranscriptEntry) Validate() error {
	switch e.Role {
	case RoleEvent, RoleAssistant, RoleUser:
		return nil
	default:
		return fmt.Errorf("unknown transcript role %q", e.Role)
	}
}

// Transcript is the ordered record of a call.
type Transcript []TranscriptEntry

// Events returns the transcript as typed variants, in order.
func (t Transcript) Events() []TranscriptEvent {
	out := make([]TranscriptEvent, 0, len(t))
	for _, e := range t {
		out = append(out, e.Event())
	}
	return out
}

// Validate checks every entry, reporting the first bad index.
func (t Transcript) Validate() error {
	for i, e := range t {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("transcript[%d]: %w", i, err)
		}
	}
	return nil
}

// UnmarshalJSON accepts an array of entries, a JSON string holding such an
// array, or null.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*t = nil
			return nil
		}
		data = []byte(inner)
	}
	var entries []TranscriptEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	*t = entries
	return nil
}

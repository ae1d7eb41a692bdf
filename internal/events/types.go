// Package events implements EventBus (C12): WebSocket fan-out of meeting
// lifecycle events plus PostgreSQL NOTIFY/LISTEN cross-pod delivery and a
// catchup/replay query for late joiners. Grounded directly on the teacher's
// pkg/events package (persist-then-notify, single-goroutine-owns-the-LISTEN-
// connection serialization, exponential-backoff reconnect) and
// pkg/api/websocket.go for the WebSocket transport — see DESIGN.md for why
// this package follows gorilla/websocket rather than the teacher's other,
// inconsistent coder/websocket usage.
package events

import (
	"encoding/json"
	"time"
)

// MeetingChannel is the NOTIFY/LISTEN and Hub channel name for one
// meeting's event stream.
func MeetingChannel(meetingID string) string {
	return "meeting_" + meetingID
}

// envelope is the wire shape delivered to WebSocket subscribers and
// persisted in the events table; it mirrors discussion.Event field for
// field but lives in this package to avoid a discussion->events coupling.
type envelope struct {
	Type           string         `json:"type"`
	MeetingID      string         `json:"meeting_id"`
	Timestamp      time.Time      `json:"timestamp"`
	AgentID        string         `json:"agent_id,omitempty"`
	SequenceNumber *int           `json:"sequence_number,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (e envelope) marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Package chatlog persists agent-to-agent communications (durable chat
// history, independent of the broker's in-memory per-session queues),
// grounded on the teacher's pkg/services/chat_service.go service-over-repo
// style and the original's AgentCommunicationService.log_communication /
// query_communications.
package chatlog

import "time"

// maxContentBytes mirrors the original's 10MB message-size ceiling.
const maxContentBytes = 10 * 1024 * 1024

// Message is one durable agent-to-agent communication record.
type Message struct {
	MessageID       string
	RoomID          string
	SenderID        string
	RecipientID     string
	ProtocolName    string
	ProtocolVersion string
	Topic           string
	Content         string
	Timestamp       time.Time
}

// Filter narrows QueryCommunications results.
type Filter struct {
	SenderID    string
	RecipientID string
	Topic       string
	Since       *time.Time
	Until       *time.Time
	Page        int // 1-indexed
	PageSize    int
}

// Page is a paginated query result.
type Page struct {
	Messages []Message
	Total    int
	Page     int
	PageSize int
}

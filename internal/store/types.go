// Package store implements the project-namespaced key/value and queue
// primitives (C1 of SPEC_FULL.md) that every broker-core component builds
// on. Two variants satisfy the same Store interface: Memory (per-process,
// grounded on the original's InMemoryStorage key-tuple scheme) and Postgres
// (durable, grounded on the teacher's pkg/database + hand-written SQL).
package store

import (
	"context"
	"time"
)

// Priority is a message delivery priority class. Queues are FIFO within a
// class; urgent > high > normal > low.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// rank orders priorities for dequeue purposes; higher is served first.
func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// SessionStatus mirrors the Session state machine in SPEC_FULL.md §4.5.
type SessionStatus string

const (
	SessionActive       SessionStatus = "active"
	SessionStale        SessionStatus = "stale"
	SessionDisconnected SessionStatus = "disconnected"
)

// Capabilities is what a Session advertises for negotiation.
type Capabilities struct {
	SupportedProtocols map[string][]string `json:"supported_protocols"`
	SupportedFeatures  []string            `json:"supported_features"`
}

// Session is one logical agent's presence within a project.
type Session struct {
	SessionID      string
	ProjectID      string
	ConnectionTime time.Time
	LastHeartbeat  time.Time
	Status         SessionStatus
	Capabilities   Capabilities
	QueueSize      int
}

// ProtocolMetadata carries the descriptive, non-functional fields of a
// Protocol registration.
type ProtocolMetadata struct {
	Author      string
	Description string
	Tags        []string
}

// Protocol is a named, versioned message contract advertised within a
// project.
type Protocol struct {
	ProjectID     string
	Name          string
	Version       string
	MessageSchema map[string]any
	Capabilities  []string
	Metadata      ProtocolMetadata
	CreatedAt     time.Time
}

// Headers carries per-message routing metadata.
type Headers struct {
	Priority Priority
	TTL      *int // seconds
	Custom   map[string]string
}

// Message is one payload addressed to a session (or broadcast when
// RecipientID is empty).
type Message struct {
	MessageID       string
	SenderID        string
	RecipientID     string // empty = broadcast; Store.Enqueue always targets one session
	Timestamp       time.Time
	ProtocolName    string
	ProtocolVersion string
	Payload         map[string]any
	Headers         Headers
}

// ProtocolFilter narrows ListProtocols/Dequeue-adjacent lookups. Nil/empty
// fields are wildcards.
type ProtocolFilter struct {
	Name    string
	Version string
}

// SessionFilter narrows ListSessions. Empty Status is a wildcard.
type SessionFilter struct {
	Status SessionStatus
}

// QueueFullError-adjacent warning threshold: enqueue emits a warning signal
// (via the caller-supplied sink) once a queue crosses this fraction of
// capacity.
const QueueWarnFraction = 0.9

// WarnSink receives queue-utilization warnings. The Store itself never logs
// directly — SPEC_FULL.md treats log formatting as an ambient, adapter-level
// concern — so callers (SessionManager) supply a sink.
type WarnSink func(projectID, sessionID string, size, capacity int)

// Store is the contract both Memory and Postgres satisfy. Every method
// requires a project_id as its namespace root; no operation crosses
// projects.
type Store interface {
	SaveProtocol(ctx context.Context, p Protocol) error
	GetProtocol(ctx context.Context, projectID, name, version string) (Protocol, error)
	ListProtocols(ctx context.Context, projectID string, filter ProtocolFilter) ([]Protocol, error)
	DeleteProtocol(ctx context.Context, projectID, name, version string) error

	SaveSession(ctx context.Context, s Session) error
	UpdateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, projectID, sessionID string) (Session, error)
	ListSessions(ctx context.Context, projectID string, filter SessionFilter) ([]Session, error)
	DeleteSession(ctx context.Context, projectID, sessionID string) error

	Enqueue(ctx context.Context, projectID, sessionID string, msg Message, capacity int, warn WarnSink) (queueSize int, err error)
	Dequeue(ctx context.Context, projectID, sessionID string, limit int) ([]Message, error)
	QueueSize(ctx context.Context, projectID, sessionID string) (int, error)
	ClearQueue(ctx context.Context, projectID, sessionID string) error
}

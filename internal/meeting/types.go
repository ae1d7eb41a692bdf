// Package meeting implements MeetingService (C10): meeting/participant/
// message/decision persistence with atomic sequence-number and
// speaking-order assignment, grounded on the teacher's
// pkg/services/session_service.go transactional style.
package meeting

import "time"

// Status is a Meeting's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ParticipantRole distinguishes the meeting's moderator (the first
// participant added) from the rest.
type ParticipantRole string

const (
	RoleModerator   ParticipantRole = "moderator"
	RoleParticipant ParticipantRole = "participant"
)

// MessageType classifies a MeetingMessage.
type MessageType string

const (
	MessageStatement MessageType = "statement"
	MessageQuestion  MessageType = "question"
	MessageProposal  MessageType = "proposal"
	MessageOpinion   MessageType = "opinion"
	MessageConsensus MessageType = "consensus"
	MessageVote      MessageType = "vote"
)

// DecisionStatus is a Decision's lifecycle state.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionApproved DecisionStatus = "approved"
	DecisionRejected DecisionStatus = "rejected"
)

// Meeting is a discussion convened over a set of agent participants.
type Meeting struct {
	ID                  string
	ProjectID           string
	Title               string
	Description         string
	Agenda              string
	Status              Status
	MaxDiscussionRounds int
	CurrentRound        int
	MaxDurationSeconds  int
	CreatedAt           time.Time
	StartedAt           *time.Time
	EndedAt             *time.Time
}

// Participant is a (meeting_id, agent_id) membership row.
type Participant struct {
	MeetingID     string
	AgentID       string
	Role          ParticipantRole
	SpeakingOrder int
	JoinedAt      time.Time
}

// Message is a durable MeetingMessage row; SequenceNumber is strictly
// increasing and gap-free per meeting.
type Message struct {
	MeetingID      string
	SequenceNumber int
	AgentID        string
	Content        string
	Type           MessageType
	Timestamp      time.Time
}

// Decision is the durable outcome of a meeting's DECISION phase.
type Decision struct {
	ID                      string
	MeetingID               string
	Title                   string
	Description             string
	Options                 []string
	SelectedOption          string
	Rationale               string
	ParticipantAgreement    map[string]string // agent_id -> chosen option (or bool-like "true"/"false")
	RelatedCommunicationIDs []string
	Status                  DecisionStatus
	DecidedAt               *time.Time
}

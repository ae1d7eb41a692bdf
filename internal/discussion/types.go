// Package discussion implements DiscussionCoordinator (C11): the
// sequential-discussion state machine that drives N agents through rounds
// of opinion collection and consensus voting under timeouts. Grounded on
// pkg/agent/orchestrator/runner.go's goroutine + context.WithTimeout +
// channel dispatch pattern, and the original's SequentialDiscussionAlgorithm
// for the opinions/votes bookkeeping shape — with this spec's richer
// threshold-based consensus and sentinel values superseding the original's
// simpler "all agree" check.
package discussion

import (
	"context"
	"time"
)

// Phase is one state in the discussion state machine.
type Phase string

const (
	PhaseSetup               Phase = "SETUP"
	PhaseOpinionCollection   Phase = "OPINION_COLLECTION"
	PhaseConsensusBuilding   Phase = "CONSENSUS_BUILDING"
	PhaseDecision            Phase = "DECISION"
	PhaseNoConsensus         Phase = "NO_CONSENSUS"
	PhaseCompleted           Phase = "COMPLETED"
)

// Sentinel reply values recorded when a participant never responds, never
// votes, or explicitly abstains.
const (
	NoResponse = "[NO RESPONSE]"
	NoVote     = "[NO VOTE]"
	Abstain    = "[ABSTAIN]"
)

// RoundState is the durable-in-memory record of one discussion round.
type RoundState struct {
	RoundNumber      int
	StartedAt        time.Time
	CompletedAt      *time.Time
	Opinions         map[string]string
	Votes            map[string]string
	ConsensusReached bool
	SelectedOption   string
}

// State is the coordinator's live view of one meeting's discussion — an
// in-memory mirror, never the system of record (meeting.Service owns the
// durable rows).
type State struct {
	MeetingID      string
	Phase          Phase
	CurrentRound   int
	SpeakingOrder  []string // agent IDs, ordered
	CurrentSpeaker string   // set only during OPINION_COLLECTION
	Opinions       map[string]string
	Votes          map[string]string
	Rounds         []RoundState
}

// Event is one broadcast notification; Data carries phase-specific payload
// (e.g. {"question": ..., "options": [...]}).
type Event struct {
	Type           string
	MeetingID      string
	Timestamp      time.Time
	AgentID        string
	SequenceNumber *int
	Data           map[string]any
}

// Event type names, exactly per spec.
const (
	EventAgentJoined           = "agent_joined"
	EventAgentLeft             = "agent_left"
	EventRoundStarted          = "round_started"
	EventOpinionRequest        = "opinion_request"
	EventOpinionPresented      = "opinion_presented"
	EventConsensusVoteRequest  = "consensus_vote_request"
	EventConsensusReached      = "consensus_reached"
	EventRoundCompleted        = "round_completed"
	EventDiscussionPaused      = "discussion_paused"
	EventDiscussionResumed     = "discussion_resumed"
	EventStateSync             = "state_sync"
	EventDecisionRecorded      = "decision_recorded"
	EventMeetingCompleted      = "meeting_completed"
)

// Publisher delivers Events to live subscribers; satisfied by
// internal/events.Hub. Defined here (rather than imported) to keep
// internal/discussion free of a dependency on the transport layer.
type Publisher interface {
	Publish(meetingID string, ev Event)
}

// ReplySource is the seam between the coordinator's bounded per-participant
// waits and however a live reply actually arrives. The original source
// assumes replies are pushed in externally; this interface supplements that
// gap explicitly. AwaitReply must return promptly once ctx is cancelled
// (the coordinator always calls it under context.WithTimeout).
type ReplySource interface {
	AwaitReply(ctx context.Context, meetingID, agentID string) (string, error)
}

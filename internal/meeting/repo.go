package meeting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// Repo persists meetings and their participants/messages/decisions. A
// durable PostgresRepo backs production deployments; MemoryRepo is used by
// tests and single-process deployments, grounded on the teacher's
// in-memory-map repo shape seen across pkg/session and pkg/queue.
type Repo interface {
	CreateMeeting(ctx context.Context, m Meeting, participants []Participant) (Meeting, []Participant, error)
	GetMeeting(ctx context.Context, id string) (Meeting, bool, error)
	UpdateMeetingStatus(ctx context.Context, id string, status Status, startedAt, endedAt *bool) (Meeting, error)
	AddParticipant(ctx context.Context, meetingID, agentID string) (Participant, error)
	ListParticipants(ctx context.Context, meetingID string) ([]Participant, error)
	RecordMessage(ctx context.Context, meetingID, agentID, content string, msgType MessageType) (Message, error)
	ListMessages(ctx context.Context, meetingID string) ([]Message, error)
	RecordDecision(ctx context.Context, d Decision) (Decision, error)
	GetDecision(ctx context.Context, meetingID string) (Decision, bool, error)
	IncrementRound(ctx context.Context, meetingID string) (int, error)
}

// MemoryRepo is an in-process Repo guarded by a single mutex — meeting rows
// are few and short-lived relative to broker sessions, so one lock suffices
// (store.Memory likewise uses a single lock).
type MemoryRepo struct {
	mu           sync.Mutex
	meetings     map[string]Meeting
	participants map[string][]Participant // meeting_id -> ordered by speaking_order
	messages     map[string][]Message     // meeting_id -> ordered by sequence_number
	decisions    map[string]Decision      // meeting_id -> decision
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		meetings:     make(map[string]Meeting),
		participants: make(map[string][]Participant),
		messages:     make(map[string][]Message),
		decisions:    make(map[string]Decision),
	}
}

func (r *MemoryRepo) CreateMeeting(_ context.Context, m Meeting, participants []Participant) (Meeting, []Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.meetings[m.ID]; exists {
		return Meeting{}, nil, apperr.Newf(apperr.Duplicate, "meeting %q already exists", m.ID)
	}
	r.meetings[m.ID] = m
	cp := append([]Participant(nil), participants...)
	r.participants[m.ID] = cp
	return m, cp, nil
}

func (r *MemoryRepo) GetMeeting(_ context.Context, id string) (Meeting, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	return m, ok, nil
}

func (r *MemoryRepo) UpdateMeetingStatus(_ context.Context, id string, status Status, startedAt, endedAt *bool) (Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok {
		return Meeting{}, apperr.Newf(apperr.NotFound, "meeting %q not found", id)
	}
	m.Status = status
	now := time.Now()
	if startedAt != nil && *startedAt {
		m.StartedAt = &now
	}
	if endedAt != nil && *endedAt {
		m.EndedAt = &now
	}
	r.meetings[id] = m
	return m, nil
}

func (r *MemoryRepo) AddParticipant(_ context.Context, meetingID, agentID string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meetings[meetingID]; !ok {
		return Participant{}, apperr.Newf(apperr.NotFound, "meeting %q not found", meetingID)
	}
	existing := r.participants[meetingID]
	maxOrder := 0
	for _, p := range existing {
		if p.SpeakingOrder > maxOrder {
			maxOrder = p.SpeakingOrder
		}
		if p.AgentID == agentID {
			return Participant{}, apperr.Newf(apperr.Duplicate, "agent %q already in meeting %q", agentID, meetingID)
		}
	}
	p := Participant{MeetingID: meetingID, AgentID: agentID, Role: RoleParticipant, SpeakingOrder: maxOrder + 1}
	r.participants[meetingID] = append(existing, p)
	return p, nil
}

func (r *MemoryRepo) ListParticipants(_ context.Context, meetingID string) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]Participant(nil), r.participants[meetingID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].SpeakingOrder < out[j].SpeakingOrder })
	return out, nil
}

func (r *MemoryRepo) RecordMessage(_ context.Context, meetingID, agentID, content string, msgType MessageType) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meetings[meetingID]; !ok {
		return Message{}, apperr.Newf(apperr.NotFound, "meeting %q not found", meetingID)
	}
	existing := r.messages[meetingID]
	next := 1
	if len(existing) > 0 {
		next = existing[len(existing)-1].SequenceNumber + 1
	}
	msg := Message{MeetingID: meetingID, SequenceNumber: next, AgentID: agentID, Content: content, Type: msgType}
	r.messages[meetingID] = append(existing, msg)
	return msg, nil
}

func (r *MemoryRepo) ListMessages(_ context.Context, meetingID string) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages[meetingID]...), nil
}

func (r *MemoryRepo) RecordDecision(_ context.Context, d Decision) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meetings[d.MeetingID]; !ok {
		return Decision{}, apperr.Newf(apperr.NotFound, "meeting %q not found", d.MeetingID)
	}
	r.decisions[d.MeetingID] = d
	return d, nil
}

func (r *MemoryRepo) GetDecision(_ context.Context, meetingID string) (Decision, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decisions[meetingID]
	return d, ok, nil
}

func (r *MemoryRepo) IncrementRound(_ context.Context, meetingID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[meetingID]
	if !ok {
		return 0, apperr.Newf(apperr.NotFound, "meeting %q not found", meetingID)
	}
	m.CurrentRound++
	r.meetings[meetingID] = m
	return m.CurrentRound, nil
}

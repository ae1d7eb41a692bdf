package meeting

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

// Service is MeetingService (C10): meeting lifecycle plus the atomic
// sequence_number/speaking_order bookkeeping DiscussionCoordinator relies
// on.
type Service struct {
	repo  Repo
	clock clock.Clock
	log   *slog.Logger
}

func NewService(repo Repo, c clock.Clock) *Service {
	return &Service{repo: repo, clock: c, log: slog.With("component", "meeting.Service")}
}

// CreateMeeting requires at least 2 participants; the first is assigned the
// moderator role, and every participant, the moderator included, gets a dense
// speaking_order starting at 1.
func (s *Service) CreateMeeting(ctx context.Context, projectID, title, description, agenda string, participantIDs []string, maxRounds, maxDurationSeconds int) (Meeting, []Participant, error) {
	if len(participantIDs) < 2 {
		return Meeting{}, nil, apperr.New(apperr.Validation, "at least 2 participants are required for a meeting")
	}
	if maxRounds < 1 {
		maxRounds = 1
	}

	m := Meeting{
		ID:                  uuid.New().String(),
		ProjectID:           projectID,
		Title:               title,
		Description:         description,
		Agenda:              agenda,
		Status:              StatusPending,
		MaxDiscussionRounds: maxRounds,
		CurrentRound:        0,
		MaxDurationSeconds:  maxDurationSeconds,
		CreatedAt:           s.clock.Now(),
	}

	participants := make([]Participant, len(participantIDs))
	for i, agentID := range participantIDs {
		role := RoleParticipant
		if i == 0 {
			role = RoleModerator
		}
		participants[i] = Participant{
			MeetingID:     m.ID,
			AgentID:       agentID,
			Role:          role,
			SpeakingOrder: i + 1,
			JoinedAt:      m.CreatedAt,
		}
	}

	created, storedParticipants, err := s.repo.CreateMeeting(ctx, m, participants)
	if err != nil {
		return Meeting{}, nil, err
	}
	s.log.Info("created meeting", "meeting_id", created.ID, "project_id", projectID, "participants", len(participants))
	return created, storedParticipants, nil
}

func (s *Service) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	m, ok, err := s.repo.GetMeeting(ctx, id)
	if err != nil {
		return Meeting{}, err
	}
	if !ok {
		return Meeting{}, apperr.Newf(apperr.NotFound, "meeting %q not found", id)
	}
	return m, nil
}

// Activate transitions pending -> active, stamping started_at.
func (s *Service) Activate(ctx context.Context, meetingID string) (Meeting, error) {
	return s.transition(ctx, meetingID, StatusPending, StatusActive, true, false)
}

// Complete transitions active -> completed, stamping ended_at.
func (s *Service) Complete(ctx context.Context, meetingID string) (Meeting, error) {
	return s.transition(ctx, meetingID, StatusActive, StatusCompleted, false, true)
}

// Fail transitions active -> failed, stamping ended_at.
func (s *Service) Fail(ctx context.Context, meetingID string) (Meeting, error) {
	return s.transition(ctx, meetingID, StatusActive, StatusFailed, false, true)
}

// Cancel transitions pending|active -> cancelled, stamping ended_at.
func (s *Service) Cancel(ctx context.Context, meetingID string) (Meeting, error) {
	m, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return Meeting{}, err
	}
	if m.Status != StatusPending && m.Status != StatusActive {
		return Meeting{}, apperr.Newf(apperr.InvalidState, "meeting %q is %s, cannot cancel", meetingID, m.Status)
	}
	yes := true
	return s.repo.UpdateMeetingStatus(ctx, meetingID, StatusCancelled, nil, &yes)
}

func (s *Service) transition(ctx context.Context, meetingID string, from, to Status, setStarted, setEnded bool) (Meeting, error) {
	m, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return Meeting{}, err
	}
	if m.Status != from {
		return Meeting{}, apperr.Newf(apperr.InvalidState, "meeting %q is %s, expected %s", meetingID, m.Status, from)
	}
	var startedPtr, endedPtr *bool
	if setStarted {
		startedPtr = &setStarted
	}
	if setEnded {
		endedPtr = &setEnded
	}
	return s.repo.UpdateMeetingStatus(ctx, meetingID, to, startedPtr, endedPtr)
}

// AddParticipant appends at max(speaking_order)+1, requiring the meeting to
// still be pending or active.
func (s *Service) AddParticipant(ctx context.Context, meetingID, agentID string) (Participant, error) {
	m, err := s.GetMeeting(ctx, meetingID)
	if err != nil {
		return Participant{}, err
	}
	if m.Status != StatusPending && m.Status != StatusActive {
		return Participant{}, apperr.Newf(apperr.InvalidState, "meeting %q is %s, cannot add participants", meetingID, m.Status)
	}
	return s.repo.AddParticipant(ctx, meetingID, agentID)
}

func (s *Service) ListParticipants(ctx context.Context, meetingID string) ([]Participant, error) {
	return s.repo.ListParticipants(ctx, meetingID)
}

// RecordMessage assigns sequence_number = max(sequence_number)+1 atomically
// per meeting.
func (s *Service) RecordMessage(ctx context.Context, meetingID, agentID, content string, msgType MessageType) (Message, error) {
	return s.repo.RecordMessage(ctx, meetingID, agentID, content, msgType)
}

func (s *Service) ListMessages(ctx context.Context, meetingID string) ([]Message, error) {
	return s.repo.ListMessages(ctx, meetingID)
}

// RecordDecision persists the DECISION-phase outcome. A status=approved
// decision must carry a non-empty SelectedOption.
func (s *Service) RecordDecision(ctx context.Context, d Decision) (Decision, error) {
	if d.Status == DecisionApproved && d.SelectedOption == "" {
		return Decision{}, apperr.New(apperr.Validation, "an approved decision must have a selected_option")
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt == nil {
		now := s.clock.Now()
		d.DecidedAt = &now
	}
	return s.repo.RecordDecision(ctx, d)
}

func (s *Service) GetDecision(ctx context.Context, meetingID string) (Decision, bool, error) {
	return s.repo.GetDecision(ctx, meetingID)
}

// IncrementRound bumps Meeting.CurrentRound atomically, serialized on the
// meeting row.
func (s *Service) IncrementRound(ctx context.Context, meetingID string) (int, error) {
	return s.repo.IncrementRound(ctx, meetingID)
}

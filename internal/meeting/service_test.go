package meeting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

func TestService_CreateMeeting_AssignsModeratorAndSpeakingOrder(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, participants, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b", "agent-c"}, 3, 3600)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, m.Status)
	require.Len(t, participants, 3)
	assert.Equal(t, RoleModerator, participants[0].Role)
	assert.Equal(t, RoleParticipant, participants[1].Role)
	assert.Equal(t, RoleParticipant, participants[2].Role)
	assert.Equal(t, 1, participants[0].SpeakingOrder)
	assert.Equal(t, 2, participants[1].SpeakingOrder)
	assert.Equal(t, 3, participants[2].SpeakingOrder)
}

func TestService_CreateMeeting_RequiresAtLeastTwoParticipants(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	_, _, err := svc.CreateMeeting(ctx, "project_a", "Solo meeting", "", "", []string{"agent-a"}, 3, 3600)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))
}

// TestService_AddParticipant_MidMeetingGetsMaxPlusOne covers the decision
// that a participant joining after creation is appended at max(speaking_order)
// + 1, never renumbering existing participants.
func TestService_AddParticipant_MidMeetingGetsMaxPlusOne(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, _, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b"}, 3, 3600)
	require.NoError(t, err)

	p, err := svc.AddParticipant(ctx, m.ID, "agent-late")
	require.NoError(t, err)
	assert.Equal(t, 3, p.SpeakingOrder)
	assert.Equal(t, RoleParticipant, p.Role)

	all, err := svc.ListParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "agent-late", all[2].AgentID)
}

func TestService_AddParticipant_RejectsDuplicateAgent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, _, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b"}, 3, 3600)
	require.NoError(t, err)

	_, err = svc.AddParticipant(ctx, m.ID, "agent-a")
	require.Error(t, err)
	assert.Equal(t, apperr.Duplicate, apperr.CodeOf(err))
}

func TestService_AddParticipant_RejectsOnCompletedMeeting(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, _, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b"}, 3, 3600)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, m.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, m.ID)
	require.NoError(t, err)

	_, err = svc.AddParticipant(ctx, m.ID, "agent-late")
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidState, apperr.CodeOf(err))
}

// TestService_RecordMessage_SequenceNumberIsGapFree exercises the
// sequence_number invariant: consecutive messages on the same meeting are
// numbered 1, 2, 3, ... with no gaps, independent of which agent sent them.
func TestService_RecordMessage_SequenceNumberIsGapFree(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, _, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b"}, 3, 3600)
	require.NoError(t, err)

	senders := []string{"agent-a", "agent-b", "agent-a", "agent-b", "agent-a"}
	for i, agentID := range senders {
		msg, err := svc.RecordMessage(ctx, m.ID, agentID, "hello", MessageStatement)
		require.NoError(t, err)
		assert.Equal(t, i+1, msg.SequenceNumber)
	}

	all, err := svc.ListMessages(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, all, len(senders))
	for i, msg := range all {
		assert.Equal(t, i+1, msg.SequenceNumber)
	}
}

func TestService_RecordDecision_ApprovedRequiresSelectedOption(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, _, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b"}, 3, 3600)
	require.NoError(t, err)

	_, err = svc.RecordDecision(ctx, Decision{MeetingID: m.ID, Status: DecisionApproved, SelectedOption: ""})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))

	d, err := svc.RecordDecision(ctx, Decision{MeetingID: m.ID, Status: DecisionApproved, SelectedOption: "X"})
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	require.NotNil(t, d.DecidedAt)
}

func TestService_IncrementRound(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, _, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b"}, 3, 3600)
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		got, err := svc.IncrementRound(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestService_Cancel_OnlyFromPendingOrActive(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), clock.NewFake(time.Now()))

	m, _, err := svc.CreateMeeting(ctx, "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b"}, 3, 3600)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, m.ID)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, m.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, m.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidState, apperr.CodeOf(err))
}

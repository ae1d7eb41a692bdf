package discussion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/meeting"
)

// scriptedReplySource hands out pre-recorded replies per agent, consumed in
// call order (opinion then vote, per round) — simpler than driving the real
// ChannelReplySource's timing from a test.
type scriptedReplySource struct {
	mu      sync.Mutex
	replies map[string][]string
}

func newScriptedReplySource(replies map[string][]string) *scriptedReplySource {
	return &scriptedReplySource{replies: replies}
}

// AwaitReply pops the next scripted reply for agentID. When the agent has
// none left, it blocks until ctx is done and returns ctx.Err(), mirroring
// how a live reply source behaves for an agent that never responds — this
// exercises the coordinator's own timeout-to-sentinel conversion rather
// than short-circuiting it.
func (s *scriptedReplySource) AwaitReply(ctx context.Context, _, agentID string) (string, error) {
	s.mu.Lock()
	q := s.replies[agentID]
	if len(q) > 0 {
		s.replies[agentID] = q[1:]
		s.mu.Unlock()
		return q[0], nil
	}
	s.mu.Unlock()

	<-ctx.Done()
	return "", ctx.Err()
}

type collectingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *collectingPublisher) Publish(meetingID string, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *collectingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func newTestMeeting(t *testing.T, maxRounds int) (*meeting.Service, string) {
	t.Helper()
	svc := meeting.NewService(meeting.NewMemoryRepo(), clock.NewFake(time.Now()))
	m, _, err := svc.CreateMeeting(context.Background(), "project_a", "Pick a vendor", "", "",
		[]string{"agent-a", "agent-b", "agent-c"}, maxRounds, 3600)
	require.NoError(t, err)
	return svc, m.ID
}

// TestCoordinator_ReachesConsensus is scenario 4: unanimous round-1 votes
// drive the meeting straight to a recorded, approved Decision.
func TestCoordinator_ReachesConsensus(t *testing.T) {
	svc, meetingID := newTestMeeting(t, 3)
	replies := newScriptedReplySource(map[string][]string{
		"agent-a": {"I like X", "X"},
		"agent-b": {"X works for me", "X"},
		"agent-c": {"X is fine", "X"},
	})
	pub := &collectingPublisher{}
	coord := NewCoordinator(svc, replies, pub, clock.NewFake(time.Now()), 5*time.Second, 0.75)

	err := coord.Run(context.Background(), meetingID, "which vendor?", []string{"X", "Y", "Z"})
	require.NoError(t, err)

	d, found, err := svc.GetDecision(context.Background(), meetingID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, meeting.DecisionApproved, d.Status)
	assert.Equal(t, "X", d.SelectedOption)

	m, err := svc.GetMeeting(context.Background(), meetingID)
	require.NoError(t, err)
	assert.Equal(t, meeting.StatusCompleted, m.Status)

	assert.Contains(t, pub.types(), EventConsensusReached)
	assert.Contains(t, pub.types(), EventDecisionRecorded)
}

// TestCoordinator_NoConsensusAfterAllRounds is scenario 5: three-way splits
// every round exhaust max_rounds with no Decision recorded.
func TestCoordinator_NoConsensusAfterAllRounds(t *testing.T) {
	svc, meetingID := newTestMeeting(t, 3)
	replies := newScriptedReplySource(map[string][]string{
		"agent-a": {"op1", "X", "op2", "X", "op3", "X"},
		"agent-b": {"op1", "Y", "op2", "Y", "op3", "Y"},
		"agent-c": {"op1", "Z", "op2", "Z", "op3", "Z"},
	})
	pub := &collectingPublisher{}
	coord := NewCoordinator(svc, replies, pub, clock.NewFake(time.Now()), 5*time.Second, 0.75)

	err := coord.Run(context.Background(), meetingID, "which vendor?", []string{"X", "Y", "Z"})
	require.NoError(t, err)

	_, found, err := svc.GetDecision(context.Background(), meetingID)
	require.NoError(t, err)
	assert.False(t, found)

	m, err := svc.GetMeeting(context.Background(), meetingID)
	require.NoError(t, err)
	assert.Equal(t, meeting.StatusCompleted, m.Status)
	assert.Equal(t, 3, m.CurrentRound)

	st := coord.State()
	assert.Equal(t, PhaseNoConsensus, st.Phase)
	assert.Len(t, st.Rounds, 3)
}

func TestCoordinator_TimeoutRecordsNoResponse(t *testing.T) {
	svc, meetingID := newTestMeeting(t, 1)
	// agent-b and agent-c never reply; their AwaitReply calls time out.
	replies := newScriptedReplySource(map[string][]string{
		"agent-a": {"op1", "X"},
	})
	coord := NewCoordinator(svc, replies, nil, clock.NewFake(time.Now()), 20*time.Millisecond, 0.75)

	err := coord.Run(context.Background(), meetingID, "which vendor?", []string{"X", "Y"})
	require.NoError(t, err)

	st := coord.State()
	require.Len(t, st.Rounds, 1)
	assert.Equal(t, NoResponse, st.Rounds[0].Opinions["agent-b"])
	assert.Equal(t, NoVote, st.Rounds[0].Votes["agent-b"])
}

func TestCheckConsensus(t *testing.T) {
	tests := []struct {
		name         string
		votes        map[string]string
		theta        float64
		wantReached  bool
		wantSelected string
	}{
		{"unanimous", map[string]string{"a": "X", "b": "X", "c": "X"}, 0.75, true, "X"},
		{"three-way split below threshold", map[string]string{"a": "X", "b": "Y", "c": "Z"}, 0.75, false, ""},
		{"all abstain has no valid votes", map[string]string{"a": Abstain, "b": Abstain}, 0.75, false, ""},
		{"two of three meets 0.66", map[string]string{"a": "X", "b": "X", "c": "Y"}, 0.66, true, "X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, reached := checkConsensus(tt.votes, tt.theta)
			assert.Equal(t, tt.wantReached, reached)
			if tt.wantReached {
				assert.Equal(t, tt.wantSelected, selected)
			}
		})
	}
}

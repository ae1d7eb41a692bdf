package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

func ttlSeconds(s int) *int { return &s }

func TestMemory_Enqueue_RespectsCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))

	for i := 0; i < 3; i++ {
		size, err := m.Enqueue(ctx, "project_a", "agent-a", Message{MessageID: string(rune('a' + i))}, 3, nil)
		require.NoError(t, err)
		assert.Equal(t, i+1, size)
	}

	_, err := m.Enqueue(ctx, "project_a", "agent-a", Message{MessageID: "overflow"}, 3, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.QueueFull, apperr.CodeOf(err))
}

func TestMemory_Enqueue_WarnsNearCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))

	var warned bool
	warn := func(projectID, sessionID string, size, capacity int) { warned = true }

	for i := 0; i < 9; i++ {
		_, err := m.Enqueue(ctx, "project_a", "agent-a", Message{MessageID: string(rune('a' + i))}, 10, warn)
		require.NoError(t, err)
	}
	assert.True(t, warned, "enqueueing past the warn fraction of capacity should invoke the warn sink")
}

func TestMemory_Dequeue_PriorityOrderedThenFIFO(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))

	msgs := []Message{
		{MessageID: "1", Headers: Headers{Priority: PriorityNormal}},
		{MessageID: "2", Headers: Headers{Priority: PriorityUrgent}},
		{MessageID: "3", Headers: Headers{Priority: PriorityLow}},
		{MessageID: "4", Headers: Headers{Priority: PriorityUrgent}},
	}
	for _, msg := range msgs {
		_, err := m.Enqueue(ctx, "project_a", "agent-a", msg, 10, nil)
		require.NoError(t, err)
	}

	out, err := m.Dequeue(ctx, "project_a", "agent-a", 10)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, []string{"2", "4", "1", "3"}, []string{out[0].MessageID, out[1].MessageID, out[2].MessageID, out[3].MessageID})
}

func TestMemory_Dequeue_DropsExpiredMessages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))

	_, err := m.Enqueue(ctx, "project_a", "agent-a", Message{
		MessageID: "expired", Timestamp: time.Now().Add(-time.Hour), Headers: Headers{TTL: ttlSeconds(1)},
	}, 10, nil)
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "project_a", "agent-a", Message{MessageID: "fresh", Timestamp: time.Now()}, 10, nil)
	require.NoError(t, err)

	out, err := m.Dequeue(ctx, "project_a", "agent-a", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "fresh", out[0].MessageID)
}

func TestMemory_Dequeue_PartialLimitLeavesRemainderQueued(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))

	for i := 0; i < 5; i++ {
		_, err := m.Enqueue(ctx, "project_a", "agent-a", Message{MessageID: string(rune('a' + i))}, 10, nil)
		require.NoError(t, err)
	}

	out, err := m.Dequeue(ctx, "project_a", "agent-a", 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	size, err := m.QueueSize(ctx, "project_a", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestMemory_SaveSession_DuplicateIDDiscardsOldQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))
	_, err := m.Enqueue(ctx, "project_a", "agent-a", Message{MessageID: "1"}, 10, nil)
	require.NoError(t, err)

	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))

	size, err := m.QueueSize(ctx, "project_a", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestMemory_ClearQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSession(ctx, Session{ProjectID: "project_a", SessionID: "agent-a"}))
	_, err := m.Enqueue(ctx, "project_a", "agent-a", Message{MessageID: "1"}, 10, nil)
	require.NoError(t, err)

	require.NoError(t, m.ClearQueue(ctx, "project_a", "agent-a"))
	size, err := m.QueueSize(ctx, "project_a", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

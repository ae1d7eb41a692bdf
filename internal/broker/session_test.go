package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

// TestSessionManager_QueueCapacity is scenario 2: with capacity 100, 100
// enqueues succeed, the 101st is QUEUE_FULL, and dequeuing 10 frees room for
// 10 more.
func TestSessionManager_QueueCapacity(t *testing.T) {
	s := store.NewMemory()
	mgr := NewSessionManager(s, Thresholds{QueueCapacity: 100}, clock.NewFake(time.Now()))
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "project_a", "sess-1", store.Capabilities{})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := mgr.EnqueueMessage(ctx, "project_a", "sess-1", store.Message{MessageID: fmt.Sprintf("msg-%d", i)})
		require.NoError(t, err)
	}

	_, err = mgr.EnqueueMessage(ctx, "project_a", "sess-1", store.Message{MessageID: "msg-overflow"})
	require.Error(t, err)
	assert.Equal(t, apperr.QueueFull, apperr.CodeOf(err))

	_, err = s.Dequeue(ctx, "project_a", "sess-1", 10)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := mgr.EnqueueMessage(ctx, "project_a", "sess-1", store.Message{MessageID: fmt.Sprintf("msg-more-%d", i)})
		require.NoError(t, err)
	}

	size, err := s.QueueSize(ctx, "project_a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 100, size)
}

// TestSessionManager_StaleThenDisconnectGC is scenario 3: advancing a fake
// clock past stale_threshold, then past disconnect_threshold, drives the
// session through active -> stale -> disconnected.
func TestSessionManager_StaleThenDisconnectGC(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := store.NewMemory()
	mgr := NewSessionManager(s, Thresholds{
		QueueCapacity:       100,
		StaleThreshold:      30 * time.Second,
		DisconnectThreshold: 60 * time.Second,
	}, fake)
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "project_a", "sess-1", store.Capabilities{})
	require.NoError(t, err)

	fake.Advance(35 * time.Second)
	stale, err := mgr.CheckStaleSessions(ctx, "project_a")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "sess-1", stale[0].SessionID)

	got, err := s.GetSession(ctx, "project_a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, store.SessionStale, got.Status)

	fake.Advance(30 * time.Second) // total elapsed: 65s
	disconnected, err := mgr.CleanupExpiredSessions(ctx, "project_a")
	require.NoError(t, err)
	require.Len(t, disconnected, 1)
	assert.Equal(t, "sess-1", disconnected[0].SessionID)

	got, err = s.GetSession(ctx, "project_a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, store.SessionDisconnected, got.Status)
}

func TestSessionManager_UpdateHeartbeat_ResurrectsStaleSession(t *testing.T) {
	fake := clock.NewFake(time.Now())
	s := store.NewMemory()
	mgr := NewSessionManager(s, Thresholds{StaleThreshold: 30 * time.Second, DisconnectThreshold: 60 * time.Second}, fake)
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "project_a", "sess-1", store.Capabilities{})
	require.NoError(t, err)

	fake.Advance(35 * time.Second)
	_, err = mgr.CheckStaleSessions(ctx, "project_a")
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateHeartbeat(ctx, "project_a", "sess-1"))

	got, err := s.GetSession(ctx, "project_a", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, store.SessionActive, got.Status)
}

func TestSessionManager_DuplicateSessionID_DiscardsOldQueue(t *testing.T) {
	s := store.NewMemory()
	mgr := NewSessionManager(s, Thresholds{QueueCapacity: 10}, clock.NewFake(time.Now()))
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "project_a", "sess-1", store.Capabilities{})
	require.NoError(t, err)
	_, err = mgr.EnqueueMessage(ctx, "project_a", "sess-1", store.Message{MessageID: "stale-msg"})
	require.NoError(t, err)

	_, err = mgr.CreateSession(ctx, "project_a", "sess-1", store.Capabilities{})
	require.NoError(t, err)

	size, err := s.QueueSize(ctx, "project_a", "sess-1")
	require.NoError(t, err)
	assert.Zero(t, size)
}

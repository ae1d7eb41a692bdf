package chatlog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

func newTestChatService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	return NewService(repo, clock.NewFake(time.Now())), repo
}

func TestService_LogCommunication_RequiresExistingRoom(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t)

	_, err := svc.LogCommunication(ctx, "room-1", "agent-a", "agent-b", "chat", "1.0.0", "vendor", "hello")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestService_EnsureRoomThenLogCommunication(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t)

	require.NoError(t, svc.EnsureRoom(ctx, "room-1", "project_a", "Vendor picks"))

	msg, err := svc.LogCommunication(ctx, "room-1", "agent-a", "agent-b", "chat", "1.0.0", "vendor", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, "room-1", msg.RoomID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestService_LogCommunication_RejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t)
	require.NoError(t, svc.EnsureRoom(ctx, "room-1", "project_a", ""))

	_, err := svc.LogCommunication(ctx, "room-1", "agent-a", "agent-b", "chat", "1.0.0", "vendor", "")
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))
}

func TestService_LogCommunication_RejectsOversizedContent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t)
	require.NoError(t, svc.EnsureRoom(ctx, "room-1", "project_a", ""))

	oversized := strings.Repeat("x", maxContentBytes+1)
	_, err := svc.LogCommunication(ctx, "room-1", "agent-a", "agent-b", "chat", "1.0.0", "vendor", oversized)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))
}

func TestService_QueryCommunications_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestChatService(t)
	require.NoError(t, svc.EnsureRoom(ctx, "room-1", "project_a", ""))

	for i := 0; i < 5; i++ {
		sender := "agent-a"
		if i%2 == 0 {
			sender = "agent-b"
		}
		_, err := svc.LogCommunication(ctx, "room-1", sender, "agent-c", "chat", "1.0.0", "vendor", "hello")
		require.NoError(t, err)
	}

	page, err := svc.QueryCommunications(ctx, "room-1", Filter{SenderID: "agent-a", Page: 1, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	for _, m := range page.Messages {
		assert.Equal(t, "agent-a", m.SenderID)
	}

	page, err = svc.QueryCommunications(ctx, "room-1", Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Messages, 2)

	page, err = svc.QueryCommunications(ctx, "room-1", Filter{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
}

package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/store"
)

func chatSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []any{"text"},
	}
}

// TestRegistry_ProjectIsolation is scenario 1 from the testable-properties
// list: the same protocol name/version registered under two projects stays
// partitioned by project in both ListProtocols and Discover.
func TestRegistry_ProjectIsolation(t *testing.T) {
	s := store.NewMemory()
	reg := NewRegistry(s)
	ctx := context.Background()

	for _, projectID := range []string{"project_a", "project_b"} {
		err := reg.Register(ctx, store.Protocol{
			ProjectID:     projectID,
			Name:          "chat",
			Version:       "1.0.0",
			MessageSchema: chatSchema(),
		})
		require.NoError(t, err)
	}

	a, err := reg.Discover(ctx, "project_a", DiscoverFilter{})
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Equal(t, "project_a", a[0].ProjectID)

	b, err := reg.Discover(ctx, "project_b", DiscoverFilter{Name: "chat"})
	require.NoError(t, err)
	assert.Len(t, b, 1)
	for _, info := range b {
		assert.NotEqual(t, "project_a", info.ProjectID)
	}
}

func TestRegistry_Register_InvalidSchemaRejected(t *testing.T) {
	s := store.NewMemory()
	reg := NewRegistry(s)
	ctx := context.Background()

	err := reg.Register(ctx, store.Protocol{
		ProjectID:     "project_a",
		Name:          "broken",
		Version:       "1.0.0",
		MessageSchema: map[string]any{"type": "not-a-real-type"},
	})
	require.Error(t, err)
}

func TestRegistry_ShareProtocol(t *testing.T) {
	s := store.NewMemory()
	reg := NewRegistry(s)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, store.Protocol{
		ProjectID: "project_a", Name: "chat", Version: "1.0.0", MessageSchema: chatSchema(),
	}))

	t.Run("rejects sharing with self", func(t *testing.T) {
		err := reg.ShareProtocol(ctx, "chat", "1.0.0", "project_a", "project_a")
		require.Error(t, err)
	})

	t.Run("grants visibility to target project only", func(t *testing.T) {
		require.NoError(t, reg.ShareProtocol(ctx, "chat", "1.0.0", "project_a", "project_b"))

		shared, err := reg.Discover(ctx, "project_b", DiscoverFilter{IncludeShared: true})
		require.NoError(t, err)
		require.Len(t, shared, 1)
		assert.Equal(t, "project_a", shared[0].SourceProjectID)

		unshared, err := reg.Discover(ctx, "project_c", DiscoverFilter{IncludeShared: true})
		require.NoError(t, err)
		assert.Empty(t, unshared)
	})

	t.Run("unshare removes the grant", func(t *testing.T) {
		require.NoError(t, reg.UnshareProtocol(ctx, "chat", "1.0.0", "project_a", "project_b"))
		shared, err := reg.Discover(ctx, "project_b", DiscoverFilter{IncludeShared: true})
		require.NoError(t, err)
		assert.Empty(t, shared)
	})

	t.Run("unsharing a grant that does not exist is NOT_FOUND", func(t *testing.T) {
		err := reg.UnshareProtocol(ctx, "chat", "1.0.0", "project_a", "project_never_shared")
		require.Error(t, err)
	})
}

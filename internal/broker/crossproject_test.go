package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/project"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

func setupCrossProjectFixture(t *testing.T, c clock.Clock) (*CrossProjectRouter, *project.Registry, project.Repo) {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemory()
	thresholds := DefaultThresholds()
	sessions := NewSessionManager(s, thresholds, c)
	router := NewRouter(sessions, NewNegotiator(), c)

	repo := project.NewMemoryRepo()
	registry := project.NewRegistry(repo, c)

	crossCfg := project.DefaultConfig()
	crossCfg.AllowCrossProject = true
	_, err := registry.CreateProject(ctx, "project_a", "Project A", "", &crossCfg, nil, "owner-a")
	require.NoError(t, err)
	_, err = registry.CreateProject(ctx, "project_b", "Project B", "", &crossCfg, nil, "owner-b")
	require.NoError(t, err)

	require.NoError(t, registry.SetPermissions(ctx, "project_a", []project.CrossProjectPermission{
		{TargetProjectID: "project_b", MessageRateLimit: 2},
	}))

	for _, projectID := range []string{"project_a", "project_b"} {
		_, err := sessions.CreateSession(ctx, projectID, "agent-in-"+projectID, store.Capabilities{})
		require.NoError(t, err)
	}

	policy := project.NewAdminPolicy(registry, c, 300*time.Second)
	return NewCrossProjectRouter(router, policy, c), registry, repo
}

// TestCrossProjectRouter_RateLimit is scenario 6: a 2/min permission allows
// the first two sends in a minute and rate-limits the third. The admin-key
// bypass is covered by TestCrossProjectRouter_AdminKeyBypassesRateLimit.
func TestCrossProjectRouter_RateLimit(t *testing.T) {
	fake := clock.NewFake(time.Now())
	cross, _, _ := setupCrossProjectFixture(t, fake)
	ctx := context.Background()

	msg := func() store.Message { return store.Message{SenderID: "agent-in-project_a", RecipientID: "agent-in-project_b"} }

	_, err := cross.SendMessage(ctx, "agent-in-project_a", "agent-in-project_b", "project_a", "project_b", "", msg())
	require.NoError(t, err)

	_, err = cross.SendMessage(ctx, "agent-in-project_a", "agent-in-project_b", "project_a", "project_b", "", msg())
	require.NoError(t, err)

	_, err = cross.SendMessage(ctx, "agent-in-project_a", "agent-in-project_b", "project_a", "project_b", "", msg())
	require.Error(t, err)
	assert.Equal(t, apperr.RateLimited, apperr.CodeOf(err))
}

func TestCrossProjectRouter_AdminKeyBypassesRateLimit(t *testing.T) {
	fake := clock.NewFake(time.Now())
	cross, _, repo := setupCrossProjectFixture(t, fake)
	ctx := context.Background()

	// Grant project_a (the sender) an admin key directly through the repo
	// (only exported Repo methods are used — Registry itself has no "mint an
	// admin key" operation, admin status is purely the key_id convention
	// AdminPolicy checks for). The plaintext must round-trip through the same
	// rsplit("project_id_key_id_secret")/sha256 scheme ValidateAPIKey uses,
	// so it's built and hashed exactly as mintAPIKey would.
	adminKey := "project_a_admin_s3cret-admin-token"
	sum := sha256.Sum256([]byte(adminKey))

	p, ok, err := repo.Get(ctx, "project_a")
	require.NoError(t, err)
	require.True(t, ok)
	p.APIKeys = append(p.APIKeys, project.APIKey{KeyID: "admin", KeyHash: hex.EncodeToString(sum[:]), IsActive: true})
	require.NoError(t, repo.Update(ctx, p))

	msg := store.Message{SenderID: "agent-in-project_a", RecipientID: "agent-in-project_b"}
	for i := 0; i < 5; i++ {
		_, err := cross.SendMessage(ctx, "agent-in-project_a", "agent-in-project_b", "project_a", "project_b", adminKey, msg)
		require.NoError(t, err)
	}
}

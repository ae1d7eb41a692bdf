package project

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

func newTestRegistry(t *testing.T, c clock.Clock) *Registry {
	t.Helper()
	return NewRegistry(NewMemoryRepo(), c)
}

func TestRegistry_CreateProject_MintsInitialKey(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	p, err := reg.CreateProject(ctx, "project_a", "Project A", "", nil, []string{"team-x"}, "owner-1")
	require.NoError(t, err)
	require.Len(t, p.APIKeys, 1)
	assert.NotEmpty(t, p.APIKeys[0].PlaintextOnce)
	assert.True(t, p.APIKeys[0].IsActive)
	assert.Equal(t, StatusActive, p.Status)
}

func TestRegistry_CreateProject_RejectsReservedID(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	_, err := reg.CreateProject(ctx, "admin", "Admin", "", nil, nil, "owner-1")
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))
}

func TestRegistry_CreateProject_RejectsInvalidID(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	_, err := reg.CreateProject(ctx, "Project-A", "Project A", "", nil, nil, "owner-1")
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))
}

func TestRegistry_ValidateAPIKey_RoundTrips(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	p, err := reg.CreateProject(ctx, "project_a", "Project A", "", nil, nil, "owner-1")
	require.NoError(t, err)

	pid, kid, ok := reg.ValidateAPIKey(ctx, p.APIKeys[0].PlaintextOnce)
	assert.True(t, ok)
	assert.Equal(t, "project_a", pid)
	assert.Equal(t, p.APIKeys[0].KeyID, kid)
}

func TestRegistry_ValidateAPIKey_WrongSecretRejected(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	_, err := reg.CreateProject(ctx, "project_a", "Project A", "", nil, nil, "owner-1")
	require.NoError(t, err)

	_, _, ok := reg.ValidateAPIKey(ctx, "project_a_bogus-key-id_bogus-secret")
	assert.False(t, ok)
}

// TestRegistry_RotateAPIKeys_OldKeyValidUntilGraceExpires is the api_key
// rotate/validate grace-period invariant: the old key keeps validating
// until its grace period elapses, then stops, while the new key validates
// immediately.
func TestRegistry_RotateAPIKeys_OldKeyValidUntilGraceExpires(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Now())
	reg := newTestRegistry(t, fake)

	p, err := reg.CreateProject(ctx, "project_a", "Project A", "", nil, nil, "owner-1")
	require.NoError(t, err)
	oldPlaintext := p.APIKeys[0].PlaintextOnce
	oldKeyID := p.APIKeys[0].KeyID

	newKeys, err := reg.RotateAPIKeys(ctx, "project_a", oldKeyID, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, newKeys, 1)
	newPlaintext := newKeys[0].PlaintextOnce

	// Immediately after rotation both keys validate.
	_, _, ok := reg.ValidateAPIKey(ctx, oldPlaintext)
	assert.True(t, ok, "old key should still validate within its grace period")
	_, _, ok = reg.ValidateAPIKey(ctx, newPlaintext)
	assert.True(t, ok)

	fake.Advance(31 * time.Second)

	_, _, ok = reg.ValidateAPIKey(ctx, oldPlaintext)
	assert.False(t, ok, "old key must stop validating once its grace period has elapsed")
	_, _, ok = reg.ValidateAPIKey(ctx, newPlaintext)
	assert.True(t, ok, "the newly rotated key is unaffected by the old key's expiry")
}

func TestRegistry_RotateAPIKeys_UnknownKeyIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	_, err := reg.CreateProject(ctx, "project_a", "Project A", "", nil, nil, "owner-1")
	require.NoError(t, err)

	_, err = reg.RotateAPIKeys(ctx, "project_a", "nonexistent-key", 30*time.Second)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestRegistry_ListProjects_FiltersInactiveAndUndiscoverable(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	_, err := reg.CreateProject(ctx, "project_a", "Project A", "", nil, nil, "owner-1")
	require.NoError(t, err)

	hiddenCfg := DefaultConfig()
	hiddenCfg.Discoverable = false
	_, err = reg.CreateProject(ctx, "project_b", "Project B", "", &hiddenCfg, nil, "owner-2")
	require.NoError(t, err)

	list, err := reg.ListProjects(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "project_a", list[0].ProjectID)
}

func TestRegistry_UpdateProject_OnlySetsSuppliedFields(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	_, err := reg.CreateProject(ctx, "project_a", "Project A", "original description", nil, nil, "owner-1")
	require.NoError(t, err)

	newName := "Renamed Project"
	updated, err := reg.UpdateProject(ctx, "project_a", &newName, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Project", updated.Metadata.Name)
	assert.Equal(t, "original description", updated.Metadata.Description)
}

func TestRegistry_DeleteProject_RejectsWhenSessionsActive(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t, clock.NewFake(time.Now()))

	_, err := reg.CreateProject(ctx, "project_a", "Project A", "", nil, nil, "owner-1")
	require.NoError(t, err)

	err = reg.DeleteProject(ctx, "project_a", 3)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidState, apperr.CodeOf(err))

	require.NoError(t, reg.DeleteProject(ctx, "project_a", 0))
	_, err = reg.GetProject(ctx, "project_a")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

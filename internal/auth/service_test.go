package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/workerpool"
)

func newTestService(t *testing.T, c clock.Clock) *Service {
	t.Helper()
	tokens := NewTokenIssuer([]byte("test-signing-secret"), time.Minute, time.Hour, c)
	return NewService(NewMemoryUserRepo(), NewMemoryAgentRepo(), tokens, DefaultArgon2Params(), c)
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	u, err := svc.Register(ctx, "alice", "alice@example.com", "correct-horse-battery", RoleUser)
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "correct-horse-battery", u.PasswordHash)

	pair, err := svc.Login(ctx, "alice", "correct-horse-battery")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestService_Register_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	_, err := svc.Register(ctx, "alice", "a@example.com", "correct-horse-battery", RoleUser)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other@example.com", "another-long-password", RoleUser)
	require.Error(t, err)
	assert.Equal(t, apperr.Duplicate, apperr.CodeOf(err))
}

func TestService_Register_PasswordTooShort(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	_, err := svc.Register(ctx, "alice", "a@example.com", "short", RoleUser)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))
}

func TestService_Login_WrongPassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	_, err := svc.Register(ctx, "alice", "a@example.com", "correct-horse-battery", RoleUser)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong-password-here")
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestService_Login_UnknownUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	_, err := svc.Login(ctx, "nobody", "whatever-password")
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestService_RefreshAccessToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	_, err := svc.Register(ctx, "alice", "a@example.com", "correct-horse-battery", RoleUser)
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "alice", "correct-horse-battery")
	require.NoError(t, err)

	refreshed, err := svc.RefreshAccessToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, pair.AccessToken, refreshed.AccessToken)

	// The old refresh token is single-use.
	_, err = svc.RefreshAccessToken(ctx, pair.RefreshToken)
	require.Error(t, err)
}

func TestService_RevokeToken_InvalidatesAccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	_, err := svc.Register(ctx, "alice", "a@example.com", "correct-horse-battery", RoleUser)
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "alice", "correct-horse-battery")
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeToken(ctx, pair.AccessToken))

	_, err = svc.VerifyAccessToken(ctx, pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestService_IssueAndValidateAgentToken(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake(time.Now())
	svc := newTestService(t, fake)

	plaintext, agent, err := svc.IssueAgentToken(ctx, "project_a", "helper-bot", []string{"chat"}, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, plaintext)
	assert.Nil(t, agent.LastUsed)

	validated, err := svc.ValidateAgentToken(ctx, "project_a", "helper-bot", plaintext)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, validated.ID)
	require.NotNil(t, validated.LastUsed)
}

func TestService_ValidateAgentToken_WrongSecretRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	_, _, err := svc.IssueAgentToken(ctx, "project_a", "helper-bot", nil, "user-1")
	require.NoError(t, err)

	_, err = svc.ValidateAgentToken(ctx, "project_a", "helper-bot", "project_a_helper-bot_wrong-secret")
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestService_ValidateAgentToken_DeactivatedAgentRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	plaintext, agent, err := svc.IssueAgentToken(ctx, "project_a", "helper-bot", nil, "user-1")
	require.NoError(t, err)

	agent.IsActive = false
	require.NoError(t, svc.agents.Update(ctx, agent))

	_, err = svc.ValidateAgentToken(ctx, "project_a", "helper-bot", plaintext)
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestService_RegisterAndLogin_RoutedThroughHashPool(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, clock.NewFake(time.Now()))

	pool := workerpool.New(2, 4)
	pool.Start(ctx)
	defer pool.Stop()
	svc.SetHashPool(pool)

	_, err := svc.Register(ctx, "carol", "carol@example.com", "correct-horse-battery", RoleUser)
	require.NoError(t, err)

	pair, err := svc.Login(ctx, "carol", "correct-horse-battery")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	_, err = svc.Login(ctx, "carol", "wrong-password-entirely")
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

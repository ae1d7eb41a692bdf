package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/workerpool"
)

// UserRepo persists User records. A durable implementation backs the users
// table; tests typically use MemoryUserRepo.
type UserRepo interface {
	Create(ctx context.Context, u User) error
	GetByUsername(ctx context.Context, username string) (User, bool, error)
	GetByID(ctx context.Context, id string) (User, bool, error)
}

// AgentRepo persists Agent records (agent_api_keys table).
type AgentRepo interface {
	Create(ctx context.Context, a Agent) error
	GetByProjectAndNickname(ctx context.Context, projectID, nickname string) (Agent, bool, error)
	Update(ctx context.Context, a Agent) error
}

// Service is AuthService (C9), wiring password hashing, JWT issuance, and
// agent-token authentication behind one entry point, grounded on the
// teacher's pkg/services auth-adjacent patterns (tx-scoped mutation,
// sentinel errors) and the original's argon2id/JWT semantics.
type Service struct {
	users    UserRepo
	agents   AgentRepo
	tokens   *TokenIssuer
	params   Argon2Params
	clock    clock.Clock
	log      *slog.Logger
	hashPool *workerpool.Pool
}

func NewService(users UserRepo, agents AgentRepo, tokens *TokenIssuer, params Argon2Params, c clock.Clock) *Service {
	return &Service{users: users, agents: agents, tokens: tokens, params: params, clock: c, log: slog.With("component", "auth.Service")}
}

// SetHashPool routes argon2id hashing/verification through pool instead of
// running inline on the calling goroutine, bounding how many concurrent
// password operations compete for CPU under a register/login burst. Optional:
// a Service with no pool set hashes inline, which is what every existing test
// does.
func (s *Service) SetHashPool(pool *workerpool.Pool) {
	s.hashPool = pool
}

// runHashTask executes fn on the hash pool if one is set, else inline.
func (s *Service) runHashTask(ctx context.Context, fn func() error) error {
	if s.hashPool == nil {
		return fn()
	}
	done := make(chan error, 1)
	if err := s.hashPool.Submit(func(context.Context) { done <- fn() }); err != nil {
		return apperr.Wrap(apperr.Internal, "submit hash task", err)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register creates a new user with an argon2id-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string, role Role) (User, error) {
	var hash string
	err := s.runHashTask(ctx, func() error {
		h, err := HashPassword(password, s.params)
		hash = h
		return err
	})
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return User{}, err
	}
	s.log.Info("registered user", "username", username)
	return u, nil
}

// Login verifies username/password and issues a TokenPair.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	u, ok, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok || !u.IsActive {
		return TokenPair{}, apperr.New(apperr.Unauthorized, "invalid username or password")
	}
	var valid bool
	err = s.runHashTask(ctx, func() error {
		v, err := VerifyPassword(password, u.PasswordHash)
		valid = v
		return err
	})
	if err != nil {
		return TokenPair{}, err
	}
	if !valid {
		return TokenPair{}, apperr.New(apperr.Unauthorized, "invalid username or password")
	}
	return s.tokens.Issue(u.ID)
}

// RefreshAccessToken delegates to the TokenIssuer.
func (s *Service) RefreshAccessToken(_ context.Context, refreshToken string) (TokenPair, error) {
	return s.tokens.RefreshAccessToken(refreshToken)
}

// RevokeToken delegates to the TokenIssuer.
func (s *Service) RevokeToken(_ context.Context, token string) error {
	return s.tokens.RevokeToken(token)
}

// VerifyAccessToken returns the bound user_id for a valid access token.
func (s *Service) VerifyAccessToken(_ context.Context, accessToken string) (string, error) {
	return s.tokens.VerifyAccess(accessToken)
}

// IssueAgentToken mints {project_id}_{nickname}_{secret}, persisting only
// its hash. The plaintext is returned once.
func (s *Service) IssueAgentToken(ctx context.Context, projectID, nickname string, capabilities []string, createdByID string) (plaintext string, agent Agent, err error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", Agent{}, apperr.Wrap(apperr.Internal, "generate agent secret", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	plaintext = fmt.Sprintf("%s_%s_%s", projectID, nickname, secret)

	agent = Agent{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		Nickname:     nickname,
		TokenHash:    hashToken(plaintext),
		Capabilities: capabilities,
		IsActive:     true,
		CreatedByID:  createdByID,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return "", Agent{}, err
	}
	return plaintext, agent, nil
}

// ValidateAgentToken compares the hash of plaintext against the stored
// record for (project_id, nickname) — the caller parses the wire format
// from the right, the way the project package's rsplitAPIKey does — and updates last_used
// on success.
func (s *Service) ValidateAgentToken(ctx context.Context, projectID, nickname, plaintext string) (Agent, error) {
	a, ok, err := s.agents.GetByProjectAndNickname(ctx, projectID, nickname)
	if err != nil {
		return Agent{}, err
	}
	if !ok || !a.IsActive {
		return Agent{}, apperr.New(apperr.Unauthorized, "invalid agent token")
	}
	if a.TokenHash != hashToken(plaintext) {
		return Agent{}, apperr.New(apperr.Unauthorized, "invalid agent token")
	}
	now := s.clock.Now()
	a.LastUsed = &now
	if err := s.agents.Update(ctx, a); err != nil {
		return Agent{}, err
	}
	return a, nil
}

// hashToken hashes a high-entropy bearer secret; see project.hashSecret for
// why this is a fast hash rather than argon2 here.
func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

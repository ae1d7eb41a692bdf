package auth

import (
	"context"
	"sync"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// MemoryUserRepo is a per-process UserRepo for tests and small deployments.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	byID  map[string]User
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{byID: make(map[string]User)}
}

func (r *MemoryUserRepo) Create(_ context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Username == u.Username {
			return apperr.Newf(apperr.Duplicate, "username %q already registered", u.Username)
		}
	}
	r.byID[u.ID] = u
	return nil
}

func (r *MemoryUserRepo) GetByUsername(_ context.Context, username string) (User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Username == username {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id string) (User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	return u, ok, nil
}

// MemoryAgentRepo is a per-process AgentRepo for tests and small deployments.
type MemoryAgentRepo struct {
	mu     sync.RWMutex
	agents map[string]Agent // keyed by project_id + "/" + nickname
}

func NewMemoryAgentRepo() *MemoryAgentRepo {
	return &MemoryAgentRepo{agents: make(map[string]Agent)}
}

func agentKey(projectID, nickname string) string { return projectID + "/" + nickname }

func (r *MemoryAgentRepo) Create(_ context.Context, a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := agentKey(a.ProjectID, a.Nickname)
	if _, exists := r.agents[key]; exists {
		return apperr.Newf(apperr.Duplicate, "agent %q already exists in project %q", a.Nickname, a.ProjectID)
	}
	r.agents[key] = a
	return nil
}

func (r *MemoryAgentRepo) GetByProjectAndNickname(_ context.Context, projectID, nickname string) (Agent, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentKey(projectID, nickname)]
	return a, ok, nil
}

func (r *MemoryAgentRepo) Update(_ context.Context, a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := agentKey(a.ProjectID, a.Nickname)
	if _, ok := r.agents[key]; !ok {
		return apperr.Newf(apperr.NotFound, "agent %q not found in project %q", a.Nickname, a.ProjectID)
	}
	r.agents[key] = a
	return nil
}

package project

import (
	"context"
	"sort"
	"sync"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// Repo is the persistence seam Registry depends on. MemoryRepo mirrors the
// original's ProjectRegistry._projects dict; PostgresRepo persists across
// the projects/project_api_keys/cross_project_permissions tables.
type Repo interface {
	Create(ctx context.Context, p Project) error
	Get(ctx context.Context, projectID string) (Project, bool, error)
	List(ctx context.Context) ([]Project, error)
	Update(ctx context.Context, p Project) error
	Delete(ctx context.Context, projectID string) error
}

// MemoryRepo is a per-process Repo, grounded on the original's
// ProjectRegistry._projects dict.
type MemoryRepo struct {
	mu       sync.RWMutex
	projects map[string]Project
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{projects: make(map[string]Project)}
}

func (r *MemoryRepo) Create(_ context.Context, p Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[p.ProjectID]; exists {
		return apperr.Newf(apperr.Duplicate, "project %q already exists", p.ProjectID)
	}
	r.projects[p.ProjectID] = p
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, projectID string) (Project, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	return p, ok, nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (r *MemoryRepo) Update(_ context.Context, p Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ProjectID]; !ok {
		return apperr.Newf(apperr.NotFound, "project %q not found", p.ProjectID)
	}
	r.projects[p.ProjectID] = p
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[projectID]; !ok {
		return apperr.Newf(apperr.NotFound, "project %q not found", projectID)
	}
	delete(r.projects, projectID)
	return nil
}

package project

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

// reservedProjectIDs mirrors SPEC_FULL.md's "reserved names disallowed"
// rule; these would collide with routes/paths a deployment reserves.
var reservedProjectIDs = map[string]bool{
	"admin":  true,
	"system": true,
	"api":    true,
	"health": true,
}

var projectIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

// Registry is the ProjectRegistry (C2), grounded on the original's
// ProjectRegistry class: project CRUD plus API-key mint/rotate/validate,
// generalized to Go with an injectable Repo and clock.Clock instead of a
// bare in-process dict and datetime.now(UTC).
type Registry struct {
	repo  Repo
	clock clock.Clock
	log   *slog.Logger
}

// NewRegistry constructs a Registry backed by repo. Pass project.NewMemoryRepo()
// for a per-process registry or project.NewPostgresRepo(db) for a durable one.
func NewRegistry(repo Repo, c clock.Clock) *Registry {
	return &Registry{repo: repo, clock: c, log: slog.With("component", "project.Registry")}
}

// CreateProject mints one initial APIKey and returns the project including
// its plaintext secret — the only time the plaintext is available.
func (r *Registry) CreateProject(ctx context.Context, projectID, name, description string, cfg *Config, tags []string, owner string) (Project, error) {
	if err := validateProjectID(projectID); err != nil {
		return Project{}, err
	}
	if len(name) == 0 {
		return Project{}, apperr.FieldError("name", "name is required")
	}
	if len(name) > 100 {
		return Project{}, apperr.FieldError("name", "name must be at most 100 characters")
	}
	if len(description) > 500 {
		return Project{}, apperr.FieldError("description", "description must be at most 500 characters")
	}

	resolvedCfg := DefaultConfig()
	if cfg != nil {
		resolvedCfg = *cfg
	}

	keyID := generateKeyID()
	plaintext, hash, err := mintAPIKey(projectID, keyID)
	if err != nil {
		return Project{}, apperr.Wrap(apperr.Internal, "mint api key", err)
	}

	now := r.clock.Now()
	p := Project{
		ProjectID: projectID,
		Metadata:  Metadata{Name: name, Description: description, Tags: tags, Owner: owner},
		Config:    resolvedCfg,
		Status:    StatusActive,
		APIKeys: []APIKey{{
			KeyID:         keyID,
			KeyHash:       hash,
			PlaintextOnce: plaintext,
			IsActive:      true,
			CreatedAt:     now,
		}},
		CreatedAt:    now,
		LastModified: now,
	}

	if err := r.repo.Create(ctx, p); err != nil {
		return Project{}, err
	}
	r.log.Info("created project", "project_id", projectID, "name", name)
	return p, nil
}

func (r *Registry) GetProject(ctx context.Context, projectID string) (Project, error) {
	p, ok, err := r.repo.Get(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if !ok {
		return Project{}, apperr.Newf(apperr.NotFound, "project %q not found", projectID)
	}
	return p, nil
}

// ListProjects applies the same filtering the original's list_projects does:
// inactive projects excluded by default, a case-insensitive name substring
// filter, and only discoverable projects surfaced.
func (r *Registry) ListProjects(ctx context.Context, filter ListFilter) ([]Info, error) {
	all, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(all))
	for _, p := range all {
		if !filter.IncludeInactive && !p.IsActive() {
			continue
		}
		if filter.NameFilter != "" && !strings.Contains(strings.ToLower(p.Metadata.Name), strings.ToLower(filter.NameFilter)) {
			continue
		}
		if !p.Config.Discoverable {
			continue
		}
		out = append(out, infoFromProject(p, filter.IncludeStats))
	}
	return out, nil
}

// UpdateProject applies only the non-nil fields supplied.
func (r *Registry) UpdateProject(ctx context.Context, projectID string, name, description *string, cfg *Config, tags []string) (Project, error) {
	p, err := r.GetProject(ctx, projectID)
	if err != nil {
		return Project{}, err
	}
	if name != nil {
		p.Metadata.Name = *name
	}
	if description != nil {
		p.Metadata.Description = *description
	}
	if tags != nil {
		p.Metadata.Tags = tags
	}
	if cfg != nil {
		p.Config = *cfg
	}
	p.LastModified = r.clock.Now()
	if err := r.repo.Update(ctx, p); err != nil {
		return Project{}, err
	}
	r.log.Info("updated project", "project_id", projectID)
	return p, nil
}

// DeleteProject fails if sessionCount > 0. The registry does not track
// sessions itself; the caller supplies the count.
func (r *Registry) DeleteProject(ctx context.Context, projectID string, sessionCount int) error {
	if sessionCount > 0 {
		return apperr.Newf(apperr.InvalidState, "cannot delete project %q with %d active sessions", projectID, sessionCount)
	}
	if err := r.repo.Delete(ctx, projectID); err != nil {
		return err
	}
	r.log.Info("deleted project", "project_id", projectID)
	return nil
}

// ValidateAPIKey parses plaintext by the last two underscore delimiters
// (rsplit semantics) so project IDs may themselves contain underscores,
// then checks presence, active state, and expiration.
func (r *Registry) ValidateAPIKey(ctx context.Context, plaintext string) (projectID, keyID string, ok bool) {
	pid, kid, _, splitOK := rsplitAPIKey(plaintext)
	if !splitOK {
		return "", "", false
	}
	p, err := r.GetProject(ctx, pid)
	if err != nil {
		return "", "", false
	}
	hash := hashSecret(plaintext)
	now := r.clock.Now()
	for _, k := range p.APIKeys {
		if k.KeyID != kid || k.KeyHash != hash {
			continue
		}
		if !k.IsActive {
			return "", "", false
		}
		if k.ExpiresAt != nil && k.ExpiresAt.Before(now) {
			return "", "", false
		}
		return pid, kid, true
	}
	return "", "", false
}

// RotateAPIKeys sets expires_at = now + grace on the target key(s) and
// appends a freshly minted replacement for each, returning the new keys
// (with plaintext populated).
func (r *Registry) RotateAPIKeys(ctx context.Context, projectID string, keyID string, gracePeriod time.Duration) ([]APIKey, error) {
	p, err := r.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if gracePeriod <= 0 {
		gracePeriod = 300 * time.Second
	}
	now := r.clock.Now()
	expiry := now.Add(gracePeriod)

	var newKeys []APIKey
	rotateOne := func(idx int) error {
		newID := generateKeyID()
		plaintext, hash, err := mintAPIKey(projectID, newID)
		if err != nil {
			return err
		}
		p.APIKeys[idx].ExpiresAt = &expiry
		nk := APIKey{KeyID: newID, KeyHash: hash, PlaintextOnce: plaintext, IsActive: true, CreatedAt: now}
		p.APIKeys = append(p.APIKeys, nk)
		newKeys = append(newKeys, nk)
		return nil
	}

	if keyID != "" {
		found := false
		for i, k := range p.APIKeys {
			if k.KeyID == keyID {
				if err := rotateOne(i); err != nil {
					return nil, apperr.Wrap(apperr.Internal, "mint rotated key", err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, apperr.Newf(apperr.NotFound, "key %q not found in project %q", keyID, projectID)
		}
	} else {
		n := len(p.APIKeys)
		for i := 0; i < n; i++ {
			if err := rotateOne(i); err != nil {
				return nil, apperr.Wrap(apperr.Internal, "mint rotated key", err)
			}
		}
	}

	if err := r.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	r.log.Info("rotated api keys", "project_id", projectID, "key_id", keyID, "new_keys", len(newKeys))
	return newKeys, nil
}

// SetPermissions replaces a project's outbound cross-project permissions.
func (r *Registry) SetPermissions(ctx context.Context, projectID string, perms []CrossProjectPermission) error {
	p, err := r.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	p.Permissions = perms
	p.LastModified = r.clock.Now()
	return r.repo.Update(ctx, p)
}

func validateProjectID(id string) error {
	if reservedProjectIDs[id] {
		return apperr.FieldError("project_id", fmt.Sprintf("project_id %q is reserved", id))
	}
	if !projectIDPattern.MatchString(id) {
		return apperr.FieldError("project_id", "project_id must match [a-z][a-z0-9_]*[a-z0-9]")
	}
	return nil
}

func generateKeyID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return "key" + hex.EncodeToString(buf[:])
}

// mintAPIKey generates the {project_id}_{key_id}_{secret} wire format with a
// 64-char hex secret, returning both the plaintext (shown once) and its stored
// hash. Neither the generated key_id nor the secret contains an underscore, so
// rsplitAPIKey recovers the project ID, key ID and secret unambiguously.
func mintAPIKey(projectID, keyID string) (plaintext, hash string, err error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", err
	}
	secret := hex.EncodeToString(secretBytes)
	plaintext = fmt.Sprintf("%s_%s_%s", projectID, keyID, secret)
	return plaintext, hashSecret(plaintext), nil
}

// hashSecret hashes a high-entropy bearer token. Unlike user passwords
// (hashed with argon2id in internal/auth), API-key and agent-token secrets
// already carry >=256 bits of crypto/rand entropy, so a fast general-purpose
// hash is sufficient — there is no brute-forceable search space for a
// memory-hard KDF to defend against.
func hashSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// rsplitAPIKey splits "{project_id}_{key_id}_{secret}" from the right so
// project IDs may contain underscores, matching SPEC_FULL.md's rsplit('_', 2)
// rule (a deliberate departure from the original's left-split).
func rsplitAPIKey(apiKey string) (projectID, keyID, secret string, ok bool) {
	i := strings.LastIndexByte(apiKey, '_')
	if i < 0 {
		return "", "", "", false
	}
	secret = apiKey[i+1:]
	rest := apiKey[:i]
	j := strings.LastIndexByte(rest, '_')
	if j < 0 {
		return "", "", "", false
	}
	keyID = rest[j+1:]
	projectID = rest[:j]
	if projectID == "" || keyID == "" || secret == "" {
		return "", "", "", false
	}
	return projectID, keyID, secret, true
}

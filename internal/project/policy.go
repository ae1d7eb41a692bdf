package project

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

// cacheKey identifies one cached access decision by (project_id, action, target).
type cacheKey struct {
	projectID string
	action    string
	target    string
}

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// AdminPolicy is the access-decision layer (C3), grounded on the original's
// implicit AdminPolicy checks scattered through ProjectRegistry/Router, here
// consolidated with an explicit TTL cache keyed by (project_id, action,
// target) as SPEC_FULL.md specifies.
type AdminPolicy struct {
	registry *Registry
	clock    clock.Clock
	ttl      time.Duration

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewAdminPolicy constructs a policy whose cache TTL is ttl, or 300s when ttl
// is not positive.
func NewAdminPolicy(registry *Registry, c clock.Clock, ttl time.Duration) *AdminPolicy {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &AdminPolicy{registry: registry, clock: c, ttl: ttl, cache: make(map[cacheKey]cacheEntry)}
}

// IsAdmin reports whether apiKey validates to an admin/owner key for
// projectID.
func (a *AdminPolicy) IsAdmin(ctx context.Context, projectID, apiKey string) bool {
	if apiKey == "" {
		return false
	}
	pid, kid, ok := a.registry.ValidateAPIKey(ctx, apiKey)
	if !ok || pid != projectID {
		return false
	}
	return kid == "admin" || kid == "owner"
}

// CanAccessProject is true if requester == target, or apiKey is an admin
// key for target, or both projects allow cross-project access.
func (a *AdminPolicy) CanAccessProject(ctx context.Context, requester, target, apiKey string) bool {
	if requester == target {
		return true
	}
	if a.IsAdmin(ctx, target, apiKey) {
		return true
	}

	key := cacheKey{projectID: requester, action: "access", target: target}
	if cached, ok := a.lookup(key); ok {
		return cached
	}

	allowed := a.crossProjectAllowed(ctx, requester, target)
	a.store(key, allowed)
	return allowed
}

// CanSendCrossProjectMessage applies CanAccessProject's rule plus a protocol
// whitelist check on the requester's permission for target.
func (a *AdminPolicy) CanSendCrossProjectMessage(ctx context.Context, sender, recipient, protocolName, apiKey string) bool {
	if !a.CanAccessProject(ctx, sender, recipient, apiKey) {
		return false
	}
	if sender == recipient || a.IsAdmin(ctx, recipient, apiKey) {
		return true
	}
	perm, ok := a.findPermission(ctx, sender, recipient)
	if !ok {
		return false
	}
	return perm.Allows(protocolName)
}

// GetMessageRateLimit returns 0 (unlimited) when apiKey is an admin key for
// the sending project — the sender's own elevated privilege, not the
// recipient's — else the sender's permission-specific limit (0 also meaning
// unlimited there).
func (a *AdminPolicy) GetMessageRateLimit(ctx context.Context, sender, recipient, apiKey string) int {
	if a.IsAdmin(ctx, sender, apiKey) {
		return 0
	}
	perm, ok := a.findPermission(ctx, sender, recipient)
	if !ok {
		return 0
	}
	return perm.MessageRateLimit
}

// CanManageProject requires an admin key that itself validates to projectID.
func (a *AdminPolicy) CanManageProject(ctx context.Context, projectID, apiKey string) bool {
	return a.IsAdmin(ctx, projectID, apiKey)
}

// ClearPermissionCache drops every cached decision. Registry mutations
// (SetPermissions, RotateAPIKeys) do not call it; cached decisions otherwise
// live until their TTL expires.
func (a *AdminPolicy) ClearPermissionCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[cacheKey]cacheEntry)
}

func (a *AdminPolicy) crossProjectAllowed(ctx context.Context, requester, target string) bool {
	reqProject, err := a.registry.GetProject(ctx, requester)
	if err != nil || !reqProject.Config.AllowCrossProject {
		return false
	}
	targetProject, err := a.registry.GetProject(ctx, target)
	if err != nil || !targetProject.Config.AllowCrossProject {
		return false
	}
	// Both flags set: access is granted whether or not a permission row
	// exists; the protocol whitelist is applied only by
	// CanSendCrossProjectMessage.
	for _, perm := range reqProject.Permissions {
		if perm.TargetProjectID == target {
			return true
		}
	}
	return true
}

func (a *AdminPolicy) findPermission(ctx context.Context, sender, recipient string) (CrossProjectPermission, bool) {
	p, err := a.registry.GetProject(ctx, sender)
	if err != nil {
		return CrossProjectPermission{}, false
	}
	for _, perm := range p.Permissions {
		if perm.TargetProjectID == recipient {
			return perm, true
		}
	}
	return CrossProjectPermission{}, false
}

func (a *AdminPolicy) lookup(key cacheKey) (bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[key]
	if !ok || a.clock.Now().After(entry.expiresAt) {
		return false, false
	}
	return entry.allowed, true
}

func (a *AdminPolicy) store(key cacheKey, allowed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[key] = cacheEntry{allowed: allowed, expiresAt: a.clock.Now().Add(a.ttl)}
}

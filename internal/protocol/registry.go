package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

// Registry is the ProtocolRegistry (C4), grounded on the original's
// protocol/registry.py, generalized to hold the cross-project sharing index
// behind a mutex instead of a bare module-level dict (`_shared_protocols`).
type Registry struct {
	store store.Store
	log   *slog.Logger

	mu     sync.RWMutex
	shared map[ShareKey]map[string]bool // source key -> set(target_project_id)
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{
		store:  s,
		log:    slog.With("component", "protocol.Registry"),
		shared: make(map[ShareKey]map[string]bool),
	}
}

// Register validates message_schema as Draft-07 JSON Schema, then delegates
// persistence to Store. A structurally invalid schema or a duplicate
// (project_id, name, version) both fail synchronously.
func (r *Registry) Register(ctx context.Context, p store.Protocol) error {
	if err := validateDraft7Schema(p.ProjectID, p.Name, p.Version, p.MessageSchema); err != nil {
		return err
	}
	if err := r.store.SaveProtocol(ctx, p); err != nil {
		return err
	}
	r.log.Info("registered protocol", "project_id", p.ProjectID, "name", p.Name, "version", p.Version)
	return nil
}

// Discover lists protocols within project_id, optionally unioned with
// protocols shared into it from other projects. The tag filter requires a
// nonempty intersection with the candidate's metadata tags.
func (r *Registry) Discover(ctx context.Context, projectID string, filter DiscoverFilter) ([]Info, error) {
	protos, err := r.store.ListProtocols(ctx, projectID, store.ProtocolFilter{Name: filter.Name, Version: filter.Version})
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(protos))
	for _, p := range protos {
		out = append(out, infoFrom(p, ""))
	}

	if filter.IncludeShared {
		sharedInfos, err := r.sharedInto(ctx, projectID, filter.Name, filter.Version)
		if err != nil {
			return nil, err
		}
		out = append(out, sharedInfos...)
	}

	if len(filter.Tags) > 0 {
		out = filterByTags(out, filter.Tags)
	}
	return out, nil
}

// ShareProtocol grants targetProjectID read-only visibility into a protocol
// owned by sourceProjectID. Sharing with self is rejected.
func (r *Registry) ShareProtocol(ctx context.Context, name, version, sourceProjectID, targetProjectID string) error {
	if sourceProjectID == targetProjectID {
		return apperr.New(apperr.Validation, "cannot share a protocol within the same project")
	}
	if _, err := r.store.GetProtocol(ctx, sourceProjectID, name, version); err != nil {
		return err
	}

	key := ShareKey{SourceProjectID: sourceProjectID, Name: name, Version: version}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shared[key] == nil {
		r.shared[key] = make(map[string]bool)
	}
	r.shared[key][targetProjectID] = true
	return nil
}

// UnshareProtocol removes a previously granted share; returns NOT_FOUND if
// no such grant exists.
func (r *Registry) UnshareProtocol(_ context.Context, name, version, sourceProjectID, targetProjectID string) error {
	key := ShareKey{SourceProjectID: sourceProjectID, Name: name, Version: version}
	r.mu.Lock()
	defer r.mu.Unlock()
	targets, ok := r.shared[key]
	if !ok || !targets[targetProjectID] {
		return apperr.Newf(apperr.NotFound, "protocol %s v%s is not shared from %s to %s", name, version, sourceProjectID, targetProjectID)
	}
	delete(targets, targetProjectID)
	if len(targets) == 0 {
		delete(r.shared, key)
	}
	return nil
}

// CanDeleteProtocol blocks deletion when any active/stale session in the
// project still advertises the protocol among its supported_protocols.
func (r *Registry) CanDeleteProtocol(ctx context.Context, projectID, name, version string) (bool, string) {
	sessions, err := r.store.ListSessions(ctx, projectID, store.SessionFilter{})
	if err != nil {
		return false, fmt.Sprintf("failed to check sessions: %v", err)
	}
	for _, s := range sessions {
		if s.Status == store.SessionDisconnected {
			continue
		}
		versions, ok := s.Capabilities.SupportedProtocols[name]
		if !ok {
			continue
		}
		for _, v := range versions {
			if v == version {
				return false, fmt.Sprintf("session %s still references %s v%s", s.SessionID, name, version)
			}
		}
	}
	return true, ""
}

func (r *Registry) sharedInto(ctx context.Context, targetProjectID, name, version string) ([]Info, error) {
	r.mu.RLock()
	var keys []ShareKey
	for key, targets := range r.shared {
		if !targets[targetProjectID] {
			continue
		}
		if name != "" && key.Name != name {
			continue
		}
		if version != "" && key.Version != version {
			continue
		}
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(keys))
	for _, key := range keys {
		p, err := r.store.GetProtocol(ctx, key.SourceProjectID, key.Name, key.Version)
		if err != nil {
			continue // shared record vanished (source protocol deleted); skip, don't fail discovery
		}
		out = append(out, infoFrom(p, key.SourceProjectID))
	}
	return out, nil
}

func infoFrom(p store.Protocol, sourceProjectID string) Info {
	return Info{
		ProjectID:       p.ProjectID,
		Name:            p.Name,
		Version:         p.Version,
		Capabilities:    p.Capabilities,
		Metadata:        p.Metadata,
		SourceProjectID: sourceProjectID,
	}
}

func filterByTags(infos []Info, tags []string) []Info {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	out := infos[:0:0]
	for _, info := range infos {
		for _, t := range info.Metadata.Tags {
			if want[t] {
				out = append(out, info)
				break
			}
		}
	}
	return out
}

// validateDraft7Schema confirms schema compiles as a Draft-07 JSON Schema,
// surfacing the compiler's complaint as a structured ValidationError.
func validateDraft7Schema(projectID, name, version string, schema map[string]any) error {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft7)

	url := fmt.Sprintf("mem://%s/%s/%s", projectID, name, version)
	if err := c.AddResource(url, schema); err != nil {
		return &ValidationError{
			Path:       "$",
			Constraint: "schema",
			Message:    err.Error(),
		}
	}
	if _, err := c.Compile(url); err != nil {
		return &ValidationError{
			Path:       "$",
			Constraint: "schema",
			Message:    fmt.Sprintf("invalid message_schema for %s v%s: %v", name, version, err),
		}
	}
	return nil
}

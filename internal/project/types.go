// Package project implements the project registry (C2) and admin/
// cross-project access policy (C3) of SPEC_FULL.md — project CRUD, API-key
// mint/rotate/validate, and permission decisions with a TTL cache.
package project

import "time"

// Status is a Project's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Config carries a project's tunable limits and cross-project posture.
type Config struct {
	MaxSessions         int
	MaxProtocols        int
	MaxMessageQueueSize int
	AllowCrossProject   bool
	Discoverable        bool
	SharedProtocols     []string
}

// DefaultConfig matches the original's ProjectConfig field defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageQueueSize: 100,
		Discoverable:        true,
	}
}

// Metadata is descriptive, non-functional project data.
type Metadata struct {
	Name        string
	Description string
	Tags        []string
	Owner       string
}

// Statistics tracks rolling counters SPEC_FULL.md's components update as a
// side effect of their own operations (session/protocol registration,
// message routing).
type Statistics struct {
	SessionCount  int
	MessageCount  int
	ProtocolCount int
	LastActivity  time.Time
}

// APIKey is one issued credential. PlaintextOnce is populated only by the
// call that minted or rotated it — callers must persist it immediately,
// since only KeyHash survives.
type APIKey struct {
	KeyID         string
	KeyHash       string
	PlaintextOnce string
	IsActive      bool
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

// IsAdmin reports whether this key's ID marks it as an administrative key.
// SPEC_FULL.md reserves the literals "admin" and "owner" for this purpose.
func (k APIKey) IsAdmin() bool {
	return k.KeyID == "admin" || k.KeyID == "owner"
}

// CrossProjectPermission grants a source project's sessions limited access
// into a target project.
type CrossProjectPermission struct {
	TargetProjectID  string
	AllowedProtocols []string // empty = wildcard
	MessageRateLimit int      // messages/minute; 0 = unlimited
}

// Allows reports whether protocolName is permitted by this grant. An empty
// AllowedProtocols list is a wildcard.
func (p CrossProjectPermission) Allows(protocolName string) bool {
	if len(p.AllowedProtocols) == 0 {
		return true
	}
	for _, name := range p.AllowedProtocols {
		if name == protocolName {
			return true
		}
	}
	return false
}

// Project is the full internal record. Registry.GetProject returns it whole,
// API keys included; Registry.ListProjects returns the trimmed Info view.
type Project struct {
	ProjectID    string
	Metadata     Metadata
	Config       Config
	Statistics   Statistics
	Status       Status
	APIKeys      []APIKey
	Permissions  []CrossProjectPermission
	CreatedAt    time.Time
	LastModified time.Time
}

// IsActive reports whether the project accepts new sessions and messages.
func (p Project) IsActive() bool {
	return p.Status == StatusActive
}

// Info is the public, discoverable view returned by ListProjects.
type Info struct {
	ProjectID  string
	Metadata   Metadata
	Config     Config
	Statistics *Statistics // only populated when requested
	Status     Status
	CreatedAt  time.Time
}

func infoFromProject(p Project, includeStats bool) Info {
	info := Info{
		ProjectID: p.ProjectID,
		Metadata:  p.Metadata,
		Config:    p.Config,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
	if includeStats {
		stats := p.Statistics
		info.Statistics = &stats
	}
	return info
}

// ListFilter narrows ListProjects.
type ListFilter struct {
	NameFilter      string
	IncludeInactive bool
	IncludeStats    bool
}

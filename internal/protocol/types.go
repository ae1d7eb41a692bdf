// Package protocol implements the protocol registry (C4) of SPEC_FULL.md:
// registration with JSON Schema Draft-07 validation, discovery, and
// read-only cross-project sharing, grounded on the original's
// protocol/registry.py ProtocolRegistry.
package protocol

import "github.com/codeready-toolchain/agentbroker/internal/store"

// ValidationError reports one structural problem with a message_schema
// submitted at registration, mirroring SPEC_FULL.md's required shape.
type ValidationError struct {
	Path       string
	Constraint string
	Expected   string
	Actual     string
	Message    string
}

func (e *ValidationError) Error() string { return e.Message }

// Info is the public discovery view of a registered protocol.
type Info struct {
	ProjectID       string
	Name            string
	Version         string
	Capabilities    []string
	Metadata        store.ProtocolMetadata
	SourceProjectID string // non-empty when surfaced via a cross-project share
}

// ShareKey identifies one (source_project, name, version) sharing grant.
type ShareKey struct {
	SourceProjectID string
	Name            string
	Version         string
}

// DiscoverFilter narrows Discover.
type DiscoverFilter struct {
	Name          string
	Version       string
	Tags          []string
	IncludeShared bool
}

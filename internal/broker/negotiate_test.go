package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/store"
)

func sessionWith(projectID string, protocols map[string][]string, features []string) store.Session {
	return store.Session{
		SessionID: "sess-" + projectID,
		ProjectID: projectID,
		Capabilities: store.Capabilities{
			SupportedProtocols: protocols,
			SupportedFeatures:  features,
		},
	}
}

func TestNegotiator_Negotiate_CompatibleSharesHighestVersion(t *testing.T) {
	n := NewNegotiator()
	a := sessionWith("project_a", map[string][]string{"chat": {"1.0.0", "1.1.0"}}, []string{"streaming", "files"})
	b := sessionWith("project_a", map[string][]string{"chat": {"1.0.0", "1.1.0", "2.0.0"}}, []string{"streaming"})

	result := n.Negotiate(a, b, false)
	require.True(t, result.Compatible)
	assert.Equal(t, "1.1.0", result.SupportedProtocols["chat"])
	assert.Equal(t, []string{"streaming"}, result.FeatureIntersections)
	assert.Equal(t, []string{"files"}, result.UnsupportedFeatures)
	assert.False(t, result.CrossProject)
}

func TestNegotiator_Negotiate_NoOverlappingVersionIsIncompatible(t *testing.T) {
	n := NewNegotiator()
	a := sessionWith("project_a", map[string][]string{"chat": {"1.0.0"}}, nil)
	b := sessionWith("project_a", map[string][]string{"chat": {"2.0.0"}}, nil)

	result := n.Negotiate(a, b, false)
	assert.False(t, result.Compatible)
	assert.NotEmpty(t, result.Incompatibilities)
}

func TestNegotiator_Negotiate_CrossProjectDisallowedByDefault(t *testing.T) {
	n := NewNegotiator()
	a := sessionWith("project_a", map[string][]string{"chat": {"1.0.0"}}, nil)
	b := sessionWith("project_b", map[string][]string{"chat": {"1.0.0"}}, nil)

	result := n.Negotiate(a, b, false)
	assert.False(t, result.Compatible)
	assert.True(t, result.CrossProject)
	assert.Contains(t, result.Incompatibilities[0], "cross-project")
}

func TestNegotiator_Negotiate_CrossProjectAllowed(t *testing.T) {
	n := NewNegotiator()
	a := sessionWith("project_a", map[string][]string{"chat": {"1.0.0"}}, nil)
	b := sessionWith("project_b", map[string][]string{"chat": {"1.0.0"}}, nil)

	result := n.Negotiate(a, b, true)
	assert.True(t, result.Compatible)
	assert.True(t, result.CrossProject)
}

func TestNegotiator_CompatibilityMatrix_GroupsByProject(t *testing.T) {
	n := NewNegotiator()
	sessions := []store.Session{
		sessionWith("project_a", map[string][]string{"chat": {"1.0.0"}}, nil),
		sessionWith("project_a", map[string][]string{"chat": {"1.0.0"}}, nil),
		sessionWith("project_b", map[string][]string{"chat": {"1.0.0"}}, nil),
	}
	entries, grouping := n.CompatibilityMatrix(sessions, false)
	assert.Len(t, entries, 3) // 3 choose 2
	assert.Len(t, grouping["project_a"], 2)
	assert.Len(t, grouping["project_b"], 1)
}

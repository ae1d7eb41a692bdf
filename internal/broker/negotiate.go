package broker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/agentbroker/internal/store"
)

// NegotiationResult is the outcome of comparing two sessions' capabilities,
// matching SPEC_FULL.md §4.6's field list exactly.
type NegotiationResult struct {
	Compatible           bool
	SupportedProtocols   map[string]string // name -> chosen (highest shared) version
	FeatureIntersections []string
	UnsupportedFeatures  []string
	Incompatibilities    []string
	CrossProject         bool
	Suggestion           string
}

// Negotiator is C6: pure computation over two sessions' advertised
// capabilities, no store dependency.
type Negotiator struct{}

func NewNegotiator() *Negotiator { return &Negotiator{} }

// Negotiate compares a and b. If they belong to different projects and
// allowCrossProject is false, negotiation is refused outright regardless of
// any protocol/feature overlap.
func (n *Negotiator) Negotiate(a, b store.Session, allowCrossProject bool) NegotiationResult {
	crossProject := a.ProjectID != b.ProjectID
	if crossProject && !allowCrossProject {
		return NegotiationResult{
			Compatible:        false,
			CrossProject:      true,
			Incompatibilities: []string{"cross-project negotiation disallowed"},
			Suggestion:        "pass allow_cross_project=true or route through CrossProjectRouter",
		}
	}

	supported := make(map[string]string)
	var incompatibilities []string
	for name, versionsA := range a.Capabilities.SupportedProtocols {
		versionsB, ok := b.Capabilities.SupportedProtocols[name]
		if !ok {
			continue
		}
		if best, ok := highestSharedVersion(versionsA, versionsB); ok {
			supported[name] = best
		} else {
			incompatibilities = append(incompatibilities, fmt.Sprintf("protocol %s: no overlapping version", name))
		}
	}

	featureSet := make(map[string]bool, len(a.Capabilities.SupportedFeatures))
	for _, f := range a.Capabilities.SupportedFeatures {
		featureSet[f] = true
	}
	var intersection []string
	bFeatureSet := make(map[string]bool, len(b.Capabilities.SupportedFeatures))
	for _, f := range b.Capabilities.SupportedFeatures {
		bFeatureSet[f] = true
		if featureSet[f] {
			intersection = append(intersection, f)
		}
	}
	var unsupported []string
	for f := range featureSet {
		if !bFeatureSet[f] {
			unsupported = append(unsupported, f)
		}
	}
	for f := range bFeatureSet {
		if !featureSet[f] {
			unsupported = append(unsupported, f)
		}
	}
	sort.Strings(intersection)
	sort.Strings(unsupported)

	compatible := len(supported) > 0 && len(incompatibilities) == 0
	suggestion := "sessions are compatible"
	if !compatible {
		suggestion = "no common protocol version found; align on a shared protocol name and version"
	}

	return NegotiationResult{
		Compatible:           compatible,
		SupportedProtocols:   supported,
		FeatureIntersections: intersection,
		UnsupportedFeatures:  unsupported,
		Incompatibilities:    incompatibilities,
		CrossProject:         crossProject,
		Suggestion:           suggestion,
	}
}

// MatrixEntry is one pairwise result within a CompatibilityMatrix.
type MatrixEntry struct {
	SessionA string
	SessionB string
	Result   NegotiationResult
}

// CompatibilityMatrix computes every pairwise negotiation across sessions
// plus a per-project grouping of session IDs.
func (n *Negotiator) CompatibilityMatrix(sessions []store.Session, allowCrossProject bool) ([]MatrixEntry, map[string][]string) {
	var entries []MatrixEntry
	for i := 0; i < len(sessions); i++ {
		for j := i + 1; j < len(sessions); j++ {
			entries = append(entries, MatrixEntry{
				SessionA: sessions[i].SessionID,
				SessionB: sessions[j].SessionID,
				Result:   n.Negotiate(sessions[i], sessions[j], allowCrossProject),
			})
		}
	}

	grouping := make(map[string][]string)
	for _, s := range sessions {
		grouping[s.ProjectID] = append(grouping[s.ProjectID], s.SessionID)
	}
	return entries, grouping
}

// highestSharedVersion returns the highest dotted-triple version present in
// both lists. No semver library appears anywhere in the example pack at
// this scope, so this hand-rolled comparator (numeric-component compare,
// falling back to string compare on parse failure) is a deliberate
// stdlib-only piece — see DESIGN.md.
func highestSharedVersion(a, b []string) (string, bool) {
	bSet := make(map[string]bool, len(b))
	for _, v := range b {
		bSet[v] = true
	}
	var shared []string
	for _, v := range a {
		if bSet[v] {
			shared = append(shared, v)
		}
	}
	if len(shared) == 0 {
		return "", false
	}
	sort.Slice(shared, func(i, j int) bool { return compareVersions(shared[i], shared[j]) > 0 })
	return shared[0], true
}

// compareVersions compares two dotted version strings component-wise,
// numerically where possible. Returns <0, 0, or >0.
func compareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			return na - nb
		}
	}
	return strings.Compare(a, b)
}

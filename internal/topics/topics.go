// Package topics suggests meeting topics from recent agent communications.
// It is an isolated, pure-function collaborator: the broker and meeting
// coordinator never import it, and it never touches storage itself — the
// caller (e.g. a future scheduling job) is responsible for fetching the
// Communications to analyze, grounded on the original's TopicAnalyzer.
package topics

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	defaultMinCommunications = 3
	defaultMaxTopics         = 5
	generalTopic             = "general"
)

// Communication is the minimal view of a logged agent-to-agent message this
// package needs; callers adapt their own storage row to this shape.
type Communication struct {
	ID         string
	SenderID   string
	ReceiverID string
	Topic      string
}

// Suggestion is one candidate meeting topic, grounded on the fields
// TopicAnalyzer.analyze_communications returns per topic group.
type Suggestion struct {
	Topic                 string
	Priority              float64
	Reason                string
	RelatedCommunications []string
	CommunicationCount    int
}

// topicNormalize replaces each run of characters other than word characters
// and spaces with a space, and whitespace is then collapsed, so near-duplicate
// free-text topics ("DB Migration", "db  migration", "DB-Migration!") group
// together instead of splitting the
// count the original's exact-string grouping would otherwise have missed.
var topicNormalize = regexp.MustCompile(`[^\w\s]+`)
var topicWhitespace = regexp.MustCompile(`\s+`)

func normalizeTopic(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return generalTopic
	}
	topic = topicNormalize.ReplaceAllString(topic, " ")
	topic = topicWhitespace.ReplaceAllString(topic, " ")
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return generalTopic
	}
	return topic
}

// AnalyzeOptions narrows AnalyzeCommunications the way analyze_communications
// narrows its comms query: an optional agent filter and a minimum group size
// below which a topic isn't worth surfacing.
type AnalyzeOptions struct {
	AgentFilter       map[string]bool // nil means no filtering
	MinCommunications int             // 0 means defaultMinCommunications
}

// AnalyzeCommunications groups comms by normalized topic and returns one
// Suggestion per group with at least MinCommunications members, sorted by
// Priority descending — the full-fidelity counterpart of the original's
// analyze_communications.
func AnalyzeCommunications(comms []Communication, opts AnalyzeOptions) []Suggestion {
	minCommunications := opts.MinCommunications
	if minCommunications <= 0 {
		minCommunications = defaultMinCommunications
	}

	groups := make(map[string][]Communication)
	var order []string
	for _, c := range comms {
		if opts.AgentFilter != nil && !opts.AgentFilter[c.SenderID] && !opts.AgentFilter[c.ReceiverID] {
			continue
		}
		topic := normalizeTopic(c.Topic)
		if _, ok := groups[topic]; !ok {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], c)
	}

	var suggestions []Suggestion
	for _, topic := range order {
		group := groups[topic]
		if len(group) < minCommunications {
			continue
		}
		ids := make([]string, len(group))
		for i, c := range group {
			ids[i] = c.ID
		}
		suggestions = append(suggestions, Suggestion{
			Topic:                 topic,
			Priority:              priority(len(group)),
			Reason:                reason(len(group)),
			RelatedCommunications: ids,
			CommunicationCount:    len(group),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Priority > suggestions[j].Priority
	})
	return suggestions
}

func priority(count int) float64 {
	p := float64(count) / 10.0
	if p > 1.0 {
		p = 1.0
	}
	return p
}

func reason(count int) string {
	if count == 1 {
		return "1 communication"
	}
	return fmt.Sprintf("%d communications", count)
}

// SuggestTopics returns up to defaultMaxTopics topic names drawn from comms,
// ordered by priority descending — grounded on the original's suggest_topics,
// narrowed to the bare topic→topic mapping callers most often need.
func SuggestTopics(comms []Communication) []string {
	suggestions := AnalyzeCommunications(comms, AnalyzeOptions{})
	max := defaultMaxTopics
	if len(suggestions) < max {
		max = len(suggestions)
	}
	out := make([]string, max)
	for i := 0; i < max; i++ {
		out[i] = suggestions[i].Topic
	}
	return out
}

package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commsWithTopic(topic string, n int) []Communication {
	out := make([]Communication, n)
	for i := range out {
		out[i] = Communication{ID: topic + "-msg", SenderID: "agent-a", ReceiverID: "agent-b", Topic: topic}
	}
	return out
}

func TestAnalyzeCommunications_GroupsByNormalizedTopic(t *testing.T) {
	comms := []Communication{
		{ID: "1", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "DB Migration"},
		{ID: "2", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "db  migration"},
		{ID: "3", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "DB-Migration!"},
	}
	suggestions := AnalyzeCommunications(comms, AnalyzeOptions{MinCommunications: 3})
	require.Len(t, suggestions, 1)
	assert.Equal(t, "db migration", suggestions[0].Topic)
	assert.Equal(t, 3, suggestions[0].CommunicationCount)
}

func TestAnalyzeCommunications_EmptyTopicFallsBackToGeneral(t *testing.T) {
	comms := []Communication{
		{ID: "1", SenderID: "agent-a", ReceiverID: "agent-b", Topic: ""},
		{ID: "2", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "   "},
		{ID: "3", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "!!!"},
	}
	suggestions := AnalyzeCommunications(comms, AnalyzeOptions{MinCommunications: 3})
	require.Len(t, suggestions, 1)
	assert.Equal(t, generalTopic, suggestions[0].Topic)
}

func TestAnalyzeCommunications_BelowMinimumIsDropped(t *testing.T) {
	comms := commsWithTopic("vendor", 2)
	suggestions := AnalyzeCommunications(comms, AnalyzeOptions{MinCommunications: 3})
	assert.Empty(t, suggestions)
}

func TestAnalyzeCommunications_FiltersByAgent(t *testing.T) {
	comms := []Communication{
		{ID: "1", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "vendor"},
		{ID: "2", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "vendor"},
		{ID: "3", SenderID: "agent-a", ReceiverID: "agent-b", Topic: "vendor"},
		{ID: "4", SenderID: "agent-x", ReceiverID: "agent-y", Topic: "vendor"},
		{ID: "5", SenderID: "agent-x", ReceiverID: "agent-y", Topic: "vendor"},
		{ID: "6", SenderID: "agent-x", ReceiverID: "agent-y", Topic: "vendor"},
	}
	suggestions := AnalyzeCommunications(comms, AnalyzeOptions{
		AgentFilter:       map[string]bool{"agent-a": true},
		MinCommunications: 3,
	})
	require.Len(t, suggestions, 1)
	assert.Equal(t, 3, suggestions[0].CommunicationCount)
}

func TestAnalyzeCommunications_SortedByPriorityDescending(t *testing.T) {
	var comms []Communication
	comms = append(comms, commsWithTopic("small", 3)...)
	comms = append(comms, commsWithTopic("big", 8)...)
	suggestions := AnalyzeCommunications(comms, AnalyzeOptions{MinCommunications: 3})
	require.Len(t, suggestions, 2)
	assert.Equal(t, "big", suggestions[0].Topic)
	assert.Equal(t, "small", suggestions[1].Topic)
	assert.Greater(t, suggestions[0].Priority, suggestions[1].Priority)
}

func TestSuggestTopics_CapsAtFive(t *testing.T) {
	var comms []Communication
	for i := 0; i < 7; i++ {
		comms = append(comms, commsWithTopic(string(rune('a'+i))+"-topic", 3)...)
	}
	names := SuggestTopics(comms)
	assert.LessOrEqual(t, len(names), 5)
}

func TestSuggestTopics_EmptyInput(t *testing.T) {
	assert.Empty(t, SuggestTopics(nil))
}

package httpapi

import (
	"sync"

	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/config"
	"github.com/codeready-toolchain/agentbroker/internal/discussion"
	"github.com/codeready-toolchain/agentbroker/internal/events"
	"github.com/codeready-toolchain/agentbroker/internal/meeting"
)

// coordinatorRegistry lazily builds and caches one discussion.Coordinator
// per meeting, each wired to its own discussion.ChannelReplySource and
// sharing the process-wide events.Hub for publication and reply delivery.
type coordinatorRegistry struct {
	mu           sync.Mutex
	meetings     *meeting.Service
	hub          *events.Hub
	defaults     config.Defaults
	coordinators map[string]*entry
}

type entry struct {
	coordinator *discussion.Coordinator
	replies     *discussion.ChannelReplySource
}

func newCoordinatorRegistry(meetings *meeting.Service, hub *events.Hub, defaults config.Defaults) *coordinatorRegistry {
	return &coordinatorRegistry{
		meetings:     meetings,
		hub:          hub,
		defaults:     defaults,
		coordinators: make(map[string]*entry),
	}
}

// get returns the coordinator for meetingID, creating it (and its reply
// source) on first use.
func (r *coordinatorRegistry) get(meetingID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.coordinators[meetingID]; ok {
		return e
	}
	replies := discussion.NewChannelReplySource()
	coord := discussion.NewCoordinator(r.meetings, replies, r.hub, clock.Real{}, r.defaults.ReplyTimeout, r.defaults.ConsensusThreshold)
	e := &entry{coordinator: coord, replies: replies}
	r.coordinators[meetingID] = e
	return e
}

// feeder adapts one meeting's ChannelReplySource to events.Hub.ReplyFeeder,
// satisfying the interface hub.go declares without the events package
// importing discussion's concrete type.
func (r *coordinatorRegistry) feeder(meetingID string) events.ReplyFeeder {
	return r.get(meetingID).replies
}

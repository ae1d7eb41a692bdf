package discussion

import (
	"context"
	"sync"
)

// ChannelReplySource is the in-memory ReplySource implementation:
// internal/httpapi's WebSocket handler calls Deliver as inbound client
// messages arrive, and the coordinator's AwaitReply blocks on a per-call
// channel until a reply lands or its timeout fires.
type ChannelReplySource struct {
	mu      sync.Mutex
	waiters map[string]chan string // key: meetingID+"/"+agentID
}

func NewChannelReplySource() *ChannelReplySource {
	return &ChannelReplySource{waiters: make(map[string]chan string)}
}

func waiterKey(meetingID, agentID string) string { return meetingID + "/" + agentID }

// AwaitReply blocks until Deliver is called for (meetingID, agentID) or ctx
// is done, whichever comes first.
func (c *ChannelReplySource) AwaitReply(ctx context.Context, meetingID, agentID string) (string, error) {
	key := waiterKey(meetingID, agentID)
	ch := make(chan string, 1)

	c.mu.Lock()
	c.waiters[key] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.waiters[key] == ch {
			delete(c.waiters, key)
		}
		c.mu.Unlock()
	}()

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver feeds a reply to whichever AwaitReply call is currently waiting
// on (meetingID, agentID). Returns false if nothing was waiting — the
// caller (an HTTP handler) should treat that as a late or unsolicited
// message rather than an error.
func (c *ChannelReplySource) Deliver(meetingID, agentID, reply string) bool {
	c.mu.Lock()
	ch, ok := c.waiters[waiterKey(meetingID, agentID)]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- reply:
		return true
	default:
		return false
	}
}

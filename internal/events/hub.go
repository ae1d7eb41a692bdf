package events

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/codeready-toolchain/agentbroker/internal/discussion"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages WebSocket subscribers grouped by meeting channel, grounded on
// pkg/api.WSHub's register/unregister/broadcast channel trio.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*websocket.Conn]bool // channel -> conns
	notifier *Publisher                          // optional; set via SetPublisher for cross-pod fan-out
	log      *slog.Logger
}

// NewHub creates an empty Hub, ready for use; it starts no goroutine.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*websocket.Conn]bool),
		log:     slog.With("component", "events.Hub"),
	}
}

// SetPublisher wires the durable persist-and-NOTIFY path so Publish also
// reaches other pods' Hubs via PostgreSQL NOTIFY.
func (h *Hub) SetPublisher(p *Publisher) { h.notifier = p }

// Publish implements discussion.Publisher: it broadcasts ev to every local
// subscriber of meetingID's channel and, if a Publisher is wired, persists
// and NOTIFYs so other pods' Hubs relay it to their own subscribers too.
func (h *Hub) Publish(meetingID string, ev discussion.Event) {
	channel := MeetingChannel(meetingID)
	env := envelope{
		Type: ev.Type, MeetingID: ev.MeetingID, Timestamp: ev.Timestamp,
		AgentID: ev.AgentID, SequenceNumber: ev.SequenceNumber, Data: ev.Data,
	}

	h.broadcastLocal(channel, env)

	if h.notifier != nil {
		if err := h.notifier.PersistAndNotify(channel, env); err != nil {
			h.log.Warn("failed to persist/notify event", "channel", channel, "type", ev.Type, "error", err)
		}
	}
}

// Broadcast delivers env to every local subscriber of channel — called both from Publish and from the
// NotifyListener's receive loop when a NOTIFY arrives from another pod.
func (h *Hub) Broadcast(channel string, env envelope) {
	h.broadcastLocal(channel, env)
}

func (h *Hub) broadcastLocal(channel string, env envelope) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[channel]))
	for c := range h.clients[channel] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteJSON(env); err != nil {
			h.log.Warn("dropping subscriber after write failure", "channel", channel, "error", err)
			go h.unregister(channel, c)
		}
	}
}

func (h *Hub) register(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[channel] == nil {
		h.clients[channel] = make(map[*websocket.Conn]bool)
	}
	h.clients[channel][conn] = true
}

func (h *Hub) unregister(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[channel]; ok {
		if _, present := set[conn]; present {
			delete(set, conn)
			_ = conn.Close()
		}
	}
}

// ReplyFeeder is satisfied by discussion.ChannelReplySource; the handler
// feeds inbound client replies into it without this package depending on
// the discussion package's concrete type.
type ReplyFeeder interface {
	Deliver(meetingID, agentID, reply string) bool
}

// HandleWebSocket upgrades the request and subscribes the connection to
// meetingID's channel, forwarding inbound {"agent_id","reply"} messages to
// feeder until the connection closes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, meetingID string, feeder ReplyFeeder) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	channel := MeetingChannel(meetingID)
	h.register(channel, conn)
	defer h.unregister(channel, conn)

	for {
		var msg struct {
			AgentID string `json:"agent_id"`
			Reply   string `json:"reply"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if feeder != nil && msg.AgentID != "" {
			feeder.Deliver(meetingID, msg.AgentID, msg.Reply)
		}
	}
}

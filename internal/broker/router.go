package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/chatlog"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

// MessageStatistics is the per-project rolling counter block SPEC_FULL.md
// §4.7 names, grounded on the teacher's pkg/queue/pool.go health-stats
// bookkeeping pattern (atomics-free, mutex-guarded struct, no dependency).
type MessageStatistics struct {
	TotalSent      int
	TotalDelivered int
	TotalQueued    int
	TotalFailed    int
	TotalBroadcast int
	LastActivity   time.Time
}

// SendResult is the outcome of Router.SendMessage.
type SendResult struct {
	Queued      bool
	QueueSize   int
	DeliveredAt *time.Time
	Expired     bool
}

// BroadcastResult enumerates per-recipient outcomes of Router.BroadcastMessage.
type BroadcastResult struct {
	Delivered []string
	Failed    []string
	Skipped   []string
}

// Router is C7, grounded on the teacher's pkg/queue/pool.go stats-tracking
// idiom, generalized to project-namespaced point-to-point and broadcast
// delivery per SPEC_FULL.md §4.7.
type Router struct {
	sessions   *SessionManager
	negotiator *Negotiator
	clock      clock.Clock
	log        *slog.Logger
	chatlog    *chatlog.Service

	mu    sync.Mutex
	stats map[string]*MessageStatistics // project_id -> stats
}

func NewRouter(sessions *SessionManager, negotiator *Negotiator, c clock.Clock) *Router {
	return &Router{
		sessions:   sessions,
		negotiator: negotiator,
		clock:      c,
		log:        slog.With("component", "broker.Router"),
		stats:      make(map[string]*MessageStatistics),
	}
}

// SetChatLog wires an optional chatlog.Service so SendMessage/BroadcastMessage
// can archive each delivery as a best-effort side record for internal/topics
// to scan. A Router with no chatlog set skips archiving entirely, which is
// what every existing test does.
func (r *Router) SetChatLog(svc *chatlog.Service) {
	r.chatlog = svc
}

// logCommunicationBestEffort mirrors the teacher's createFailedChatExecution
// pattern: runs on context.Background() since the caller's ctx may be near
// its deadline by the time delivery finishes, and only logs failures rather
// than returning them, so a chatlog outage never blocks or fails delivery.
func (r *Router) logCommunicationBestEffort(projectID, senderID, recipientID string, msg store.Message) {
	if r.chatlog == nil {
		return
	}
	content, err := json.Marshal(msg.Payload)
	if err != nil {
		r.log.Warn("marshal message payload for chat log", "error", err)
		return
	}
	ctx := context.Background()
	if err := r.chatlog.EnsureRoom(ctx, projectID, projectID, ""); err != nil {
		r.log.Warn("ensure chat room for communication log", "project_id", projectID, "error", err)
		return
	}
	if _, err := r.chatlog.LogCommunication(ctx, projectID, senderID, recipientID, msg.ProtocolName, msg.ProtocolVersion, "", string(content)); err != nil {
		r.log.Warn("log communication", "project_id", projectID, "error", err)
	}
}

// Stats returns a copy of the current statistics for projectID.
func (r *Router) Stats(projectID string) MessageStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stats[projectID]; ok {
		return *s
	}
	return MessageStatistics{}
}

// SendMessage implements the five-step contract in SPEC_FULL.md §4.7. The
// same-project caller passes projectID for both sender and recipient;
// CrossProjectRouter calls SendMessageAcrossProjects instead.
func (r *Router) SendMessage(ctx context.Context, senderID, recipientID, projectID string, msg store.Message) (SendResult, error) {
	return r.sendMessage(ctx, senderID, projectID, recipientID, projectID, msg, false)
}

// SendMessageAcrossProjects is the cross-project variant CrossProjectRouter
// uses once policy has already authorized the send; sender and recipient
// resolve in their own project namespaces.
func (r *Router) SendMessageAcrossProjects(ctx context.Context, senderID, senderProjectID, recipientID, recipientProjectID string, msg store.Message) (SendResult, error) {
	return r.sendMessage(ctx, senderID, senderProjectID, recipientID, recipientProjectID, msg, true)
}

func (r *Router) sendMessage(ctx context.Context, senderID, senderProjectID, recipientID, recipientProjectID string, msg store.Message, crossProjectCall bool) (SendResult, error) {
	sender, err := r.sessions.store.GetSession(ctx, senderProjectID, senderID)
	if err != nil {
		return SendResult{}, err
	}
	recipient, err := r.sessions.store.GetSession(ctx, recipientProjectID, recipientID)
	if err != nil {
		return SendResult{}, err
	}

	if sender.ProjectID != recipient.ProjectID && !crossProjectCall {
		return SendResult{}, apperr.New(apperr.Forbidden, "cross-project delivery requires CrossProjectRouter")
	}

	if !protocolCompatible(sender, recipient, msg.ProtocolName) {
		r.bumpFailed(senderProjectID)
		return SendResult{}, apperr.Newf(apperr.ProtocolMismatch, "sender and recipient do not share protocol %s", msg.ProtocolName)
	}

	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.clock.Now()
	}

	result := SendResult{}
	if recipient.Status == store.SessionDisconnected {
		size, err := r.sessions.EnqueueMessage(ctx, recipientProjectID, recipientID, msg)
		if err != nil {
			r.bumpFailed(senderProjectID)
			return SendResult{}, err
		}
		result.Queued = true
		result.QueueSize = size
		r.bumpQueued(senderProjectID)
	} else {
		size, err := r.sessions.EnqueueMessage(ctx, recipientProjectID, recipientID, msg)
		if err != nil {
			r.bumpFailed(senderProjectID)
			return SendResult{}, err
		}
		now := r.clock.Now()
		result.DeliveredAt = &now
		result.QueueSize = size
		r.bumpDelivered(senderProjectID)
	}
	r.bumpSent(senderProjectID)
	r.logCommunicationBestEffort(senderProjectID, senderID, recipientID, msg)
	return result, nil
}

// BroadcastMessage fans msg out to every other compatible session in
// projectID, continuing past individual recipient failures.
func (r *Router) BroadcastMessage(ctx context.Context, senderID, projectID string, msg store.Message, capabilityFilter []string) (BroadcastResult, error) {
	sessions, err := r.sessions.store.ListSessions(ctx, projectID, store.SessionFilter{})
	if err != nil {
		return BroadcastResult{}, err
	}

	var result BroadcastResult
	for _, s := range sessions {
		if s.SessionID == senderID {
			continue
		}
		if !protocolCompatible(store.Session{Capabilities: store.Capabilities{SupportedProtocols: map[string][]string{msg.ProtocolName: {msg.ProtocolVersion}}}}, s, msg.ProtocolName) {
			result.Skipped = append(result.Skipped, s.SessionID)
			continue
		}
		if len(capabilityFilter) > 0 && !hasAllFeatures(s, capabilityFilter) {
			result.Skipped = append(result.Skipped, s.SessionID)
			continue
		}
		if _, err := r.sessions.EnqueueMessage(ctx, projectID, s.SessionID, msg); err != nil {
			result.Failed = append(result.Failed, s.SessionID)
			r.bumpFailed(projectID)
			continue
		}
		result.Delivered = append(result.Delivered, s.SessionID)
		r.logCommunicationBestEffort(projectID, senderID, s.SessionID, msg)
	}
	r.bumpBroadcast(projectID)
	return result, nil
}

func protocolCompatible(sender, recipient store.Session, protocolName string) bool {
	if protocolName == "" {
		return true
	}
	sv, sok := sender.Capabilities.SupportedProtocols[protocolName]
	rv, rok := recipient.Capabilities.SupportedProtocols[protocolName]
	if !sok || !rok {
		return false
	}
	_, ok := highestSharedVersion(sv, rv)
	return ok
}

func hasAllFeatures(s store.Session, want []string) bool {
	have := make(map[string]bool, len(s.Capabilities.SupportedFeatures))
	for _, f := range s.Capabilities.SupportedFeatures {
		have[f] = true
	}
	for _, f := range want {
		if !have[f] {
			return false
		}
	}
	return true
}

func (r *Router) statsFor(projectID string) *MessageStatistics {
	s, ok := r.stats[projectID]
	if !ok {
		s = &MessageStatistics{}
		r.stats[projectID] = s
	}
	return s
}

func (r *Router) bumpSent(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.statsFor(projectID)
	s.TotalSent++
	s.LastActivity = r.clock.Now()
}

func (r *Router) bumpDelivered(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsFor(projectID).TotalDelivered++
}

func (r *Router) bumpQueued(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsFor(projectID).TotalQueued++
}

func (r *Router) bumpFailed(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsFor(projectID).TotalFailed++
}

func (r *Router) bumpBroadcast(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsFor(projectID).TotalBroadcast++
}

// Package broker implements the session manager (C5), capability
// negotiator (C6), router (C7), and cross-project router (C8) of
// SPEC_FULL.md — the runtime heart of the multi-project broker core.
package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

// Thresholds bundles the timing knobs SessionManager's GC passes use.
type Thresholds struct {
	QueueCapacity       int
	StaleThreshold      time.Duration
	DisconnectThreshold time.Duration
}

// DefaultThresholds matches SPEC_FULL.md's defaults: 100-message queues,
// 30s stale, 60s disconnect.
func DefaultThresholds() Thresholds {
	return Thresholds{QueueCapacity: 100, StaleThreshold: 30 * time.Second, DisconnectThreshold: 60 * time.Second}
}

// SessionManager is C5, grounded on the teacher's pkg/session/manager.go
// mutex-guarded-map idiom, generalized to delegate state to a store.Store
// (so Memory/Postgres both work) and to the heartbeat state machine
// SPEC_FULL.md §4.5 specifies.
type SessionManager struct {
	store      store.Store
	thresholds Thresholds
	clock      clock.Clock
	log        *slog.Logger
}

func NewSessionManager(s store.Store, thresholds Thresholds, c clock.Clock) *SessionManager {
	return &SessionManager{store: s, thresholds: thresholds, clock: c, log: slog.With("component", "broker.SessionManager")}
}

// CreateSession registers sessionID (minting a random one when empty, mirroring
// google/uuid's use throughout the teacher's pkg/models). A colliding
// session_id terminates the prior registration first — its queue is
// discarded, not transferred (store.SaveSession already enforces this).
func (m *SessionManager) CreateSession(ctx context.Context, projectID, sessionID string, caps store.Capabilities) (store.Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := m.clock.Now()
	s := store.Session{
		SessionID:      sessionID,
		ProjectID:      projectID,
		ConnectionTime: now,
		LastHeartbeat:  now,
		Status:         store.SessionActive,
		Capabilities:   caps,
	}
	if err := m.store.SaveSession(ctx, s); err != nil {
		return store.Session{}, err
	}
	m.log.Info("session created", "project_id", projectID, "session_id", sessionID)
	return s, nil
}

// UpdateHeartbeat bumps last_heartbeat and transitions stale -> active.
func (m *SessionManager) UpdateHeartbeat(ctx context.Context, projectID, sessionID string) error {
	s, err := m.store.GetSession(ctx, projectID, sessionID)
	if err != nil {
		return err
	}
	s.LastHeartbeat = m.clock.Now()
	if s.Status == store.SessionStale {
		s.Status = store.SessionActive
	}
	return m.store.UpdateSession(ctx, s)
}

// EnqueueMessage delivers msg to recipientID's queue, bounded by
// thresholds.QueueCapacity, warning at 90% via a structured log line.
func (m *SessionManager) EnqueueMessage(ctx context.Context, projectID, recipientID string, msg store.Message) (queueSize int, err error) {
	warn := func(projectID, sessionID string, size, capacity int) {
		m.log.Warn("queue nearing capacity", "project_id", projectID, "session_id", sessionID, "size", size, "capacity", capacity)
	}
	return m.store.Enqueue(ctx, projectID, recipientID, msg, m.thresholds.QueueCapacity, warn)
}

// CheckStaleSessions marks every active session in projectID (or, when
// empty, every project the caller has already resolved sessions for) whose
// last_heartbeat exceeds StaleThreshold as stale, returning the transitioned
// set.
func (m *SessionManager) CheckStaleSessions(ctx context.Context, projectID string) ([]store.Session, error) {
	sessions, err := m.store.ListSessions(ctx, projectID, store.SessionFilter{Status: store.SessionActive})
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	var transitioned []store.Session
	for _, s := range sessions {
		if now.Sub(s.LastHeartbeat) <= m.thresholds.StaleThreshold {
			continue
		}
		s.Status = store.SessionStale
		if err := m.store.UpdateSession(ctx, s); err != nil {
			return transitioned, err
		}
		transitioned = append(transitioned, s)
	}
	return transitioned, nil
}

// CleanupExpiredSessions disconnects every active|stale session in
// projectID whose last_heartbeat exceeds DisconnectThreshold. The row is
// kept (disconnected is not deleted) so any already-queued messages remain
// inspectable until an operator clears them.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context, projectID string) ([]store.Session, error) {
	active, err := m.store.ListSessions(ctx, projectID, store.SessionFilter{Status: store.SessionActive})
	if err != nil {
		return nil, err
	}
	stale, err := m.store.ListSessions(ctx, projectID, store.SessionFilter{Status: store.SessionStale})
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	var disconnected []store.Session
	for _, s := range append(active, stale...) {
		if now.Sub(s.LastHeartbeat) <= m.thresholds.DisconnectThreshold {
			continue
		}
		s.Status = store.SessionDisconnected
		if err := m.store.UpdateSession(ctx, s); err != nil {
			return disconnected, err
		}
		disconnected = append(disconnected, s)
		m.log.Info("session disconnected (GC)", "project_id", projectID, "session_id", s.SessionID)
	}
	return disconnected, nil
}

// DisconnectSession marks sessionID disconnected without deleting its row.
func (m *SessionManager) DisconnectSession(ctx context.Context, projectID, sessionID string) error {
	s, err := m.store.GetSession(ctx, projectID, sessionID)
	if err != nil {
		return err
	}
	s.Status = store.SessionDisconnected
	return m.store.UpdateSession(ctx, s)
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

type protoKey struct {
	projectID string
	name      string
	version   string
}

type sessKey struct {
	projectID string
	sessionID string
}

// Memory is a per-process Store, grounded on the original's InMemoryStorage
// key-tuple scheme ((project_id, name, version) for protocols,
// (project_id, session_id) for sessions/queues) and the teacher's
// mutex-guarded-map idiom from pkg/session/manager.go. State is lost on
// restart; it backs broker-core state only (protocols, sessions, queues),
// never the user/meeting/decision tables.
type Memory struct {
	mu        sync.RWMutex
	protocols map[protoKey]Protocol
	sessions  map[sessKey]Session
	queues    map[sessKey][]Message
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		protocols: make(map[protoKey]Protocol),
		sessions:  make(map[sessKey]Session),
		queues:    make(map[sessKey][]Message),
	}
}

func (m *Memory) SaveProtocol(_ context.Context, p Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := protoKey{p.ProjectID, p.Name, p.Version}
	if _, exists := m.protocols[key]; exists {
		return apperr.Newf(apperr.Duplicate, "protocol %s/%s v%s already exists in project %s", p.Name, p.Version, p.Version, p.ProjectID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.protocols[key] = p
	return nil
}

func (m *Memory) GetProtocol(_ context.Context, projectID, name, version string) (Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.protocols[protoKey{projectID, name, version}]
	if !ok {
		return Protocol{}, apperr.Newf(apperr.NotFound, "protocol %s v%s not found in project %s", name, version, projectID)
	}
	return p, nil
}

func (m *Memory) ListProtocols(_ context.Context, projectID string, filter ProtocolFilter) ([]Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Protocol
	for key, p := range m.protocols {
		if key.projectID != projectID {
			continue
		}
		if filter.Name != "" && key.name != filter.Name {
			continue
		}
		if filter.Version != "" && key.version != filter.Version {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (m *Memory) DeleteProtocol(_ context.Context, projectID, name, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := protoKey{projectID, name, version}
	if _, ok := m.protocols[key]; !ok {
		return apperr.Newf(apperr.NotFound, "protocol %s v%s not found in project %s", name, version, projectID)
	}
	delete(m.protocols, key)
	return nil
}

func (m *Memory) SaveSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessKey{s.ProjectID, s.SessionID}
	// Duplicate session_id registration terminates the existing one; its
	// queue is discarded, not transferred (per spec.md's explicit ruling —
	// see DESIGN.md Open Question #2).
	delete(m.queues, key)
	m.sessions[key] = s
	return nil
}

func (m *Memory) UpdateSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessKey{s.ProjectID, s.SessionID}
	if _, ok := m.sessions[key]; !ok {
		return apperr.Newf(apperr.NotFound, "session %s not found in project %s", s.SessionID, s.ProjectID)
	}
	m.sessions[key] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, projectID, sessionID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessKey{projectID, sessionID}]
	if !ok {
		return Session{}, apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}
	return s, nil
}

func (m *Memory) ListSessions(_ context.Context, projectID string, filter SessionFilter) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for key, s := range m.sessions {
		if key.projectID != projectID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, projectID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessKey{projectID, sessionID}
	if _, ok := m.sessions[key]; !ok {
		return apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}
	delete(m.sessions, key)
	delete(m.queues, key)
	return nil
}

func (m *Memory) Enqueue(_ context.Context, projectID, sessionID string, msg Message, capacity int, warn WarnSink) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessKey{projectID, sessionID}
	sess, ok := m.sessions[key]
	if !ok {
		return 0, apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}

	q := m.queues[key]
	if len(q) >= capacity {
		return len(q), apperr.Newf(apperr.QueueFull, "queue for session %s is at capacity %d", sessionID, capacity)
	}

	q = append(q, msg)
	m.queues[key] = q
	sess.QueueSize = len(q)
	m.sessions[key] = sess

	if warn != nil && float64(len(q)) >= QueueWarnFraction*float64(capacity) {
		warn(projectID, sessionID, len(q), capacity)
	}
	return len(q), nil
}

func (m *Memory) Dequeue(_ context.Context, projectID, sessionID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessKey{projectID, sessionID}
	if _, ok := m.sessions[key]; !ok {
		return nil, apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}

	q := m.queues[key]
	q = dropExpired(q, time.Now())

	n := limit
	if n <= 0 || n > len(q) {
		n = len(q)
	}

	result := takePriorityOrdered(q, n)
	remaining := removeMessages(q, result)
	m.queues[key] = remaining

	if sess, ok := m.sessions[key]; ok {
		sess.QueueSize = len(remaining)
		m.sessions[key] = sess
	}
	return result, nil
}

func (m *Memory) QueueSize(_ context.Context, projectID, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := sessKey{projectID, sessionID}
	if _, ok := m.sessions[key]; !ok {
		return 0, apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}
	return len(m.queues[key]), nil
}

func (m *Memory) ClearQueue(_ context.Context, projectID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessKey{projectID, sessionID}
	if _, ok := m.sessions[key]; !ok {
		return apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}
	delete(m.queues, key)
	if sess, ok := m.sessions[key]; ok {
		sess.QueueSize = 0
		m.sessions[key] = sess
	}
	return nil
}

// dropExpired removes messages whose TTL has elapsed relative to now.
func dropExpired(q []Message, now time.Time) []Message {
	out := q[:0:0]
	for _, msg := range q {
		if msg.Headers.TTL != nil {
			deadline := msg.Timestamp.Add(time.Duration(*msg.Headers.TTL) * time.Second)
			if deadline.Before(now) {
				continue
			}
		}
		out = append(out, msg)
	}
	return out
}

// takePriorityOrdered selects up to n messages honoring priority class
// (urgent > high > normal > low) and FIFO order within a class, without
// mutating q.
func takePriorityOrdered(q []Message, n int) []Message {
	idx := make([]int, len(q))
	for i := range q {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return q[idx[a]].Headers.Priority.rank() > q[idx[b]].Headers.Priority.rank()
	})
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]Message, 0, n)
	for _, i := range idx[:n] {
		out = append(out, q[i])
	}
	return out
}

// removeMessages returns q with every message in taken removed, matched by
// MessageID.
func removeMessages(q []Message, taken []Message) []Message {
	removed := make(map[string]int, len(taken))
	for _, t := range taken {
		removed[t.MessageID]++
	}
	out := q[:0:0]
	for _, msg := range q {
		if removed[msg.MessageID] > 0 {
			removed[msg.MessageID]--
			continue
		}
		out = append(out, msg)
	}
	return out
}

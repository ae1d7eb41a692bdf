package chatlog

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// Repo persists and queries durable chat messages, independent of the
// broker's in-memory per-session delivery queues.
type Repo interface {
	EnsureRoom(ctx context.Context, roomID, projectID, name string) error
	Append(ctx context.Context, msg Message) error
	Query(ctx context.Context, roomID string, f Filter) (Page, error)
}

// MemoryRepo is an in-process Repo for tests and single-pod deployments.
type MemoryRepo struct {
	mu       sync.Mutex
	rooms    map[string]bool
	messages map[string][]Message // roomID -> messages, append order
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		rooms:    make(map[string]bool),
		messages: make(map[string][]Message),
	}
}

func (r *MemoryRepo) EnsureRoom(_ context.Context, roomID, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[roomID] = true
	return nil
}

func (r *MemoryRepo) Append(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.rooms[msg.RoomID] {
		return apperr.Newf(apperr.NotFound, "chat room %q not found", msg.RoomID)
	}
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], msg)
	return nil
}

func (r *MemoryRepo) Query(_ context.Context, roomID string, f Filter) (Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Message
	for _, m := range r.messages[roomID] {
		if f.SenderID != "" && m.SenderID != f.SenderID {
			continue
		}
		if f.RecipientID != "" && m.RecipientID != f.RecipientID {
			continue
		}
		if f.Topic != "" && m.Topic != f.Topic {
			continue
		}
		if f.Since != nil && m.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && m.Timestamp.After(*f.Until) {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })

	return paginate(matched, f), nil
}

func paginate(matched []Message, f Filter) Page {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return Page{Messages: matched[start:end], Total: len(matched), Page: page, PageSize: size}
}

// PostgresRepo is the durable Repo backed by the chat_rooms/messages tables.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) EnsureRoom(ctx context.Context, roomID, projectID, name string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, project_id, name, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, roomID, projectID, nullIfEmpty(name), time.Now().UTC())
	if err != nil {
		return apperr.Wrap(apperr.Internal, "ensure chat room", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, msg Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, room_id, sender_id, recipient_id, protocol_name, protocol_version, topic, content, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.MessageID, msg.RoomID, msg.SenderID, nullIfEmpty(msg.RecipientID), nullIfEmpty(msg.ProtocolName),
		nullIfEmpty(msg.ProtocolVersion), nullIfEmpty(msg.Topic), msg.Content, ts)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "append chat message", err)
	}
	return nil
}

func (r *PostgresRepo) Query(ctx context.Context, roomID string, f Filter) (Page, error) {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}

	var conds []string
	args := []any{roomID}
	conds = append(conds, "room_id = $1")

	addCond := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", argN(len(args)), 1))
	}
	if f.SenderID != "" {
		addCond("sender_id = ?", f.SenderID)
	}
	if f.RecipientID != "" {
		addCond("recipient_id = ?", f.RecipientID)
	}
	if f.Topic != "" {
		addCond("topic = ?", f.Topic)
	}
	if f.Since != nil {
		addCond("timestamp >= ?", *f.Since)
	}
	if f.Until != nil {
		addCond("timestamp <= ?", *f.Until)
	}

	where := strings.Join(conds, " AND ")

	var total int
	countQuery := "SELECT count(*) FROM messages WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "count chat messages", err)
	}

	limitArg, offsetArg := len(args)+1, len(args)+2
	args = append(args, size, (page-1)*size)
	listQuery := "SELECT message_id, room_id, sender_id, COALESCE(recipient_id,''), COALESCE(protocol_name,''), " +
		"COALESCE(protocol_version,''), COALESCE(topic,''), content, timestamp FROM messages WHERE " + where +
		" ORDER BY timestamp ASC LIMIT " + argN(limitArg) + " OFFSET " + argN(offsetArg)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "query chat messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MessageID, &m.RoomID, &m.SenderID, &m.RecipientID, &m.ProtocolName,
			&m.ProtocolVersion, &m.Topic, &m.Content, &m.Timestamp); err != nil {
			return Page{}, apperr.Wrap(apperr.Internal, "scan chat message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "iterate chat messages", err)
	}

	return Page{Messages: out, Total: total, Page: page, PageSize: size}, nil
}

func argN(n int) string {
	return "$" + strconv.Itoa(n)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

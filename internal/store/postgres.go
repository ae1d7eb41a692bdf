package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres is the durable Store variant, grounded on the teacher's
// pkg/services/session_service.go transactional style (tx + deferred
// rollback, sentinel-error mapping) but written against hand-written SQL
// instead of the ent generated client — see DESIGN.md for why.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an already-migrated *sql.DB.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) SaveProtocol(ctx context.Context, proto Protocol) error {
	schemaJSON, err := json.Marshal(proto.MessageSchema)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal message_schema", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO protocols (project_id, name, version, message_schema, capabilities, author, description, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, proto.ProjectID, proto.Name, proto.Version, schemaJSON, textArray(proto.Capabilities),
		nullIfEmpty(proto.Metadata.Author), nullIfEmpty(proto.Metadata.Description), textArray(proto.Metadata.Tags), timeOrNow(proto.CreatedAt))
	if isUniqueViolation(err) {
		return apperr.Newf(apperr.Duplicate, "protocol %s v%s already exists in project %s", proto.Name, proto.Version, proto.ProjectID)
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert protocol", err)
	}
	return nil
}

func (p *Postgres) GetProtocol(ctx context.Context, projectID, name, version string) (Protocol, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT project_id, name, version, message_schema, capabilities, author, description, tags, created_at
		FROM protocols WHERE project_id=$1 AND name=$2 AND version=$3
	`, projectID, name, version)
	return scanProtocol(row)
}

func (p *Postgres) ListProtocols(ctx context.Context, projectID string, filter ProtocolFilter) ([]Protocol, error) {
	query := `
		SELECT project_id, name, version, message_schema, capabilities, author, description, tags, created_at
		FROM protocols WHERE project_id=$1`
	args := []any{projectID}
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += fmt.Sprintf(" AND name=$%d", len(args))
	}
	if filter.Version != "" {
		args = append(args, filter.Version)
		query += fmt.Sprintf(" AND version=$%d", len(args))
	}
	query += " ORDER BY name, version"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list protocols", err)
	}
	defer rows.Close()

	var out []Protocol
	for rows.Next() {
		proto, err := scanProtocol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, proto)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteProtocol(ctx context.Context, projectID, name, version string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM protocols WHERE project_id=$1 AND name=$2 AND version=$3`, projectID, name, version)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete protocol", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "protocol %s v%s not found in project %s", name, version, projectID)
	}
	return nil
}

func (p *Postgres) SaveSession(ctx context.Context, s Session) error {
	supported, err := json.Marshal(s.Capabilities.SupportedProtocols)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal supported_protocols", err)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	// Duplicate session_id terminates the existing one and discards its
	// queue (spec.md's explicit ruling — DESIGN.md Open Question #2).
	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_messages WHERE project_id=$1 AND session_id=$2`, s.ProjectID, s.SessionID); err != nil {
		return apperr.Wrap(apperr.Internal, "discard old queue", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO broker_sessions (project_id, session_id, connection_time, last_heartbeat, status, supported_protocols, supported_features, queue_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		ON CONFLICT (project_id, session_id) DO UPDATE SET
			connection_time=EXCLUDED.connection_time,
			last_heartbeat=EXCLUDED.last_heartbeat,
			status=EXCLUDED.status,
			supported_protocols=EXCLUDED.supported_protocols,
			supported_features=EXCLUDED.supported_features,
			queue_size=0
	`, s.ProjectID, s.SessionID, timeOrNow(s.ConnectionTime), timeOrNow(s.LastHeartbeat), string(s.Status), supported, textArray(s.Capabilities.SupportedFeatures))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert session", err)
	}
	return apperr.Wrap(apperr.Internal, "commit", tx.Commit())
}

func (p *Postgres) UpdateSession(ctx context.Context, s Session) error {
	supported, err := json.Marshal(s.Capabilities.SupportedProtocols)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal supported_protocols", err)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE broker_sessions SET last_heartbeat=$3, status=$4, supported_protocols=$5, supported_features=$6, queue_size=$7
		WHERE project_id=$1 AND session_id=$2
	`, s.ProjectID, s.SessionID, timeOrNow(s.LastHeartbeat), string(s.Status), supported, textArray(s.Capabilities.SupportedFeatures), s.QueueSize)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "session %s not found in project %s", s.SessionID, s.ProjectID)
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, projectID, sessionID string) (Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT project_id, session_id, connection_time, last_heartbeat, status, supported_protocols, supported_features, queue_size
		FROM broker_sessions WHERE project_id=$1 AND session_id=$2
	`, projectID, sessionID)
	return scanSession(row)
}

func (p *Postgres) ListSessions(ctx context.Context, projectID string, filter SessionFilter) ([]Session, error) {
	query := `
		SELECT project_id, session_id, connection_time, last_heartbeat, status, supported_protocols, supported_features, queue_size
		FROM broker_sessions WHERE project_id=$1`
	args := []any{projectID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	query += " ORDER BY session_id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list sessions", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSession(ctx context.Context, projectID, sessionID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM broker_sessions WHERE project_id=$1 AND session_id=$2`, projectID, sessionID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_messages WHERE project_id=$1 AND session_id=$2`, projectID, sessionID); err != nil {
		return apperr.Wrap(apperr.Internal, "delete queue", err)
	}
	return apperr.Wrap(apperr.Internal, "commit", tx.Commit())
}

func (p *Postgres) Enqueue(ctx context.Context, projectID, sessionID string, msg Message, capacity int, warn WarnSink) (int, error) {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "marshal payload", err)
	}
	custom, err := json.Marshal(msg.Headers.Custom)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "marshal headers", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	var sessionExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM broker_sessions WHERE project_id=$1 AND session_id=$2)`, projectID, sessionID).Scan(&sessionExists); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "check session", err)
	}
	if !sessionExists {
		return 0, apperr.Newf(apperr.NotFound, "session %s not found in project %s", sessionID, projectID)
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM queued_messages WHERE project_id=$1 AND session_id=$2`, projectID, sessionID).Scan(&current); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "count queue", err)
	}
	if current >= capacity {
		return current, apperr.Newf(apperr.QueueFull, "queue for session %s is at capacity %d", sessionID, capacity)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queued_messages (project_id, session_id, message_id, sender_id, recipient_id, protocol_name, protocol_version, payload, priority, ttl_seconds, custom_headers, enqueued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, projectID, sessionID, msg.MessageID, msg.SenderID, nullIfEmpty(msg.RecipientID), nullIfEmpty(msg.ProtocolName), nullIfEmpty(msg.ProtocolVersion),
		payload, string(msg.Headers.Priority), msg.Headers.TTL, custom, timeOrNow(msg.Timestamp))
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "insert queued message", err)
	}

	newSize := current + 1
	if _, err := tx.ExecContext(ctx, `UPDATE broker_sessions SET queue_size=$3 WHERE project_id=$1 AND session_id=$2`, projectID, sessionID, newSize); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "update queue_size", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "commit", err)
	}

	if warn != nil && float64(newSize) >= QueueWarnFraction*float64(capacity) {
		warn(projectID, sessionID, newSize, capacity)
	}
	return newSize, nil
}

func (p *Postgres) Dequeue(ctx context.Context, projectID, sessionID string, limit int) ([]Message, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM queued_messages WHERE project_id=$1 AND session_id=$2
		AND ttl_seconds IS NOT NULL AND enqueued_at + (ttl_seconds || ' seconds')::interval < now()
	`, projectID, sessionID); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "drop expired", err)
	}

	query := `
		SELECT seq, message_id, sender_id, recipient_id, protocol_name, protocol_version, payload, priority, ttl_seconds, custom_headers, enqueued_at
		FROM queued_messages WHERE project_id=$1 AND session_id=$2
		ORDER BY
			CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END,
			seq
	`
	args := []any{projectID, sessionID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "select queue", err)
	}
	var out []Message
	var seqs []int64
	for rows.Next() {
		var seq int64
		msg, err := scanQueuedMessage(rows, &seq)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, msg)
		seqs = append(seqs, seq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate queue", err)
	}

	if len(seqs) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queued_messages WHERE seq = ANY($1)`, int64Array(seqs)); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "delete dequeued", err)
		}
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM queued_messages WHERE project_id=$1 AND session_id=$2`, projectID, sessionID).Scan(&remaining); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "count remaining", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE broker_sessions SET queue_size=$3 WHERE project_id=$1 AND session_id=$2`, projectID, sessionID, remaining); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "update queue_size", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit", err)
	}
	return out, nil
}

func (p *Postgres) QueueSize(ctx context.Context, projectID, sessionID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM queued_messages WHERE project_id=$1 AND session_id=$2`, projectID, sessionID).Scan(&n)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "count queue", err)
	}
	return n, nil
}

func (p *Postgres) ClearQueue(ctx context.Context, projectID, sessionID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_messages WHERE project_id=$1 AND session_id=$2`, projectID, sessionID); err != nil {
		return apperr.Wrap(apperr.Internal, "clear queue", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE broker_sessions SET queue_size=0 WHERE project_id=$1 AND session_id=$2`, projectID, sessionID); err != nil {
		return apperr.Wrap(apperr.Internal, "reset queue_size", err)
	}
	return apperr.Wrap(apperr.Internal, "commit", tx.Commit())
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanProtocol(row scanner) (Protocol, error) {
	var p Protocol
	var schemaJSON []byte
	var author, description sql.NullString
	var createdAt time.Time
	err := row.Scan(&p.ProjectID, &p.Name, &p.Version, &schemaJSON, (*textArray)(&p.Capabilities), &author, &description, (*textArray)(&p.Metadata.Tags), &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Protocol{}, apperr.New(apperr.NotFound, "protocol not found")
	}
	if err != nil {
		return Protocol{}, apperr.Wrap(apperr.Internal, "scan protocol", err)
	}
	if err := json.Unmarshal(schemaJSON, &p.MessageSchema); err != nil {
		return Protocol{}, apperr.Wrap(apperr.Internal, "unmarshal message_schema", err)
	}
	p.Metadata.Author = author.String
	p.Metadata.Description = description.String
	p.CreatedAt = createdAt
	return p, nil
}

func scanSession(row scanner) (Session, error) {
	var s Session
	var status string
	var supportedJSON []byte
	err := row.Scan(&s.ProjectID, &s.SessionID, &s.ConnectionTime, &s.LastHeartbeat, &status, &supportedJSON, (*textArray)(&s.Capabilities.SupportedFeatures), &s.QueueSize)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.New(apperr.NotFound, "session not found")
	}
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "scan session", err)
	}
	s.Status = SessionStatus(status)
	if len(supportedJSON) > 0 {
		if err := json.Unmarshal(supportedJSON, &s.Capabilities.SupportedProtocols); err != nil {
			return Session{}, apperr.Wrap(apperr.Internal, "unmarshal supported_protocols", err)
		}
	}
	return s, nil
}

func scanQueuedMessage(row scanner, seq *int64) (Message, error) {
	var msg Message
	var recipient, protoName, protoVersion sql.NullString
	var ttl sql.NullInt64
	var payloadJSON, customJSON []byte
	var priority string
	err := row.Scan(seq, &msg.MessageID, &msg.SenderID, &recipient, &protoName, &protoVersion, &payloadJSON, &priority, &ttl, &customJSON, &msg.Timestamp)
	if err != nil {
		return Message{}, apperr.Wrap(apperr.Internal, "scan queued message", err)
	}
	msg.RecipientID = recipient.String
	msg.ProtocolName = protoName.String
	msg.ProtocolVersion = protoVersion.String
	msg.Headers.Priority = Priority(priority)
	if ttl.Valid {
		v := int(ttl.Int64)
		msg.Headers.TTL = &v
	}
	if err := json.Unmarshal(payloadJSON, &msg.Payload); err != nil {
		return Message{}, apperr.Wrap(apperr.Internal, "unmarshal payload", err)
	}
	if len(customJSON) > 0 {
		_ = json.Unmarshal(customJSON, &msg.Headers.Custom)
	}
	return msg, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// Publisher persists events to the durable events table and broadcasts
// them via `pg_notify` within the same transaction, so the NOTIFY only
// fires once the row is durably committed — grounded on
// pkg/events/publisher.go's persistAndNotify.
type Publisher struct {
	db *sql.DB
}

func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// PersistAndNotify inserts env into the events table and issues
// `pg_notify(channel, payload)` in the same transaction, so the NOTIFY
// only fires once the row is durably committed.
func (p *Publisher) PersistAndNotify(channel string, env envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := env.marshal()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "marshal event envelope", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin event tx", err)
	}
	defer tx.Rollback()

	var eventID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (event_id, meeting_id, event_type, sequence_number, agent_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
	`, uuid.New().String(), env.MeetingID, env.Type, env.SequenceNumber, nullIfEmpty(env.AgentID), payload, env.Timestamp).Scan(&eventID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "persist event", err)
	}

	notifyPayload, err := truncateIfNeeded(payload, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return apperr.Wrap(apperr.Internal, "pg_notify", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.Internal, "commit event tx", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CatchupEvent is one row returned by a catchup replay query.
type CatchupEvent struct {
	ID      int64
	Payload json.RawMessage
}

// Catchup returns events for meetingID with id > sinceID, up to limit
// rows, for a client reconnecting mid-meeting (spec.md's `state_sync`/
// `last_sequence` reconnection rule).
func (p *Publisher) Catchup(ctx context.Context, meetingID string, sinceID int64, limit int) ([]CatchupEvent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, payload FROM events WHERE meeting_id=$1 AND id > $2 ORDER BY id ASC LIMIT $3
	`, meetingID, sinceID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query catchup events", err)
	}
	defer rows.Close()

	var out []CatchupEvent
	for rows.Next() {
		var e CatchupEvent
		if err := rows.Scan(&e.ID, &e.Payload); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan catchup event", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// pgNotifyLimit is PostgreSQL's NOTIFY payload ceiling (8000 bytes); stay
// comfortably under it.
const pgNotifyLimit = 7900

func truncateIfNeeded(payload []byte, eventID int64) (string, error) {
	if len(payload) <= pgNotifyLimit {
		return string(payload), nil
	}
	truncated := map[string]any{"truncated": true, "db_event_id": eventID}
	b, err := json.Marshal(truncated)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "marshal truncated notify payload", err)
	}
	return string(b), nil
}

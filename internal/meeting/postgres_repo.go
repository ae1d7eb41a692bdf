package meeting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// PostgresRepo is the durable Repo, serializing sequence_number and
// speaking_order assignment with `SELECT ... FOR UPDATE` on the meetings
// row per spec — grounded on the teacher's
// pkg/services/session_service.go tx-scoped mutation style, substituting a
// hand-written database/sql transaction for its ent transaction.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) CreateMeeting(ctx context.Context, m Meeting, participants []Participant) (Meeting, []Participant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Meeting{}, nil, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meetings (id, project_id, title, description, agenda, status, max_discussion_rounds, current_round, max_duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.ProjectID, m.Title, m.Description, m.Agenda, m.Status, m.MaxDiscussionRounds, m.CurrentRound, m.MaxDurationSeconds, timeOrNow(m.CreatedAt))
	if isUniqueViolation(err) {
		return Meeting{}, nil, apperr.Newf(apperr.Duplicate, "meeting %q already exists", m.ID)
	}
	if err != nil {
		return Meeting{}, nil, apperr.Wrap(apperr.Internal, "insert meeting", err)
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO meeting_participants (meeting_id, agent_id, role, speaking_order, joined_at)
			VALUES ($1, $2, $3, $4, $5)
		`, p.MeetingID, p.AgentID, p.Role, p.SpeakingOrder, timeOrNow(p.JoinedAt)); err != nil {
			return Meeting{}, nil, apperr.Wrap(apperr.Internal, "insert meeting_participant", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Meeting{}, nil, apperr.Wrap(apperr.Internal, "commit tx", err)
	}
	return m, participants, nil
}

func (r *PostgresRepo) GetMeeting(ctx context.Context, id string) (Meeting, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, description, agenda, status, max_discussion_rounds, current_round, max_duration_seconds, created_at, started_at, ended_at
		FROM meetings WHERE id=$1
	`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, false, nil
	}
	if err != nil {
		return Meeting{}, false, err
	}
	return m, true, nil
}

func (r *PostgresRepo) UpdateMeetingStatus(ctx context.Context, id string, status Status, setStartedAt, setEndedAt *bool) (Meeting, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Meeting{}, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, project_id, title, description, agenda, status, max_discussion_rounds, current_round, max_duration_seconds, created_at, started_at, ended_at FROM meetings WHERE id=$1 FOR UPDATE`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, apperr.Newf(apperr.NotFound, "meeting %q not found", id)
	}
	if err != nil {
		return Meeting{}, err
	}

	m.Status = status
	if setStartedAt != nil && *setStartedAt {
		now := time.Now()
		m.StartedAt = &now
	}
	if setEndedAt != nil && *setEndedAt {
		now := time.Now()
		m.EndedAt = &now
	}

	if _, err := tx.ExecContext(ctx, `UPDATE meetings SET status=$1, started_at=$2, ended_at=$3 WHERE id=$4`,
		m.Status, m.StartedAt, m.EndedAt, id); err != nil {
		return Meeting{}, apperr.Wrap(apperr.Internal, "update meeting status", err)
	}
	if err := tx.Commit(); err != nil {
		return Meeting{}, apperr.Wrap(apperr.Internal, "commit tx", err)
	}
	return m, nil
}

func (r *PostgresRepo) AddParticipant(ctx context.Context, meetingID, agentID string) (Participant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Participant{}, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM meetings WHERE id=$1 FOR UPDATE`, meetingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Participant{}, apperr.Newf(apperr.NotFound, "meeting %q not found", meetingID)
		}
		return Participant{}, apperr.Wrap(apperr.Internal, "lock meeting row", err)
	}

	var maxOrder sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT max(speaking_order) FROM meeting_participants WHERE meeting_id=$1`, meetingID).Scan(&maxOrder); err != nil {
		return Participant{}, apperr.Wrap(apperr.Internal, "select max speaking_order", err)
	}

	p := Participant{MeetingID: meetingID, AgentID: agentID, Role: RoleParticipant, SpeakingOrder: int(maxOrder.Int64) + 1, JoinedAt: time.Now()}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO meeting_participants (meeting_id, agent_id, role, speaking_order, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.MeetingID, p.AgentID, p.Role, p.SpeakingOrder, p.JoinedAt)
	if isUniqueViolation(err) {
		return Participant{}, apperr.Newf(apperr.Duplicate, "agent %q already in meeting %q", agentID, meetingID)
	}
	if err != nil {
		return Participant{}, apperr.Wrap(apperr.Internal, "insert meeting_participant", err)
	}
	if err := tx.Commit(); err != nil {
		return Participant{}, apperr.Wrap(apperr.Internal, "commit tx", err)
	}
	return p, nil
}

func (r *PostgresRepo) ListParticipants(ctx context.Context, meetingID string) ([]Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT meeting_id, agent_id, role, speaking_order, joined_at FROM meeting_participants
		WHERE meeting_id=$1 ORDER BY speaking_order ASC
	`, meetingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query meeting_participants", err)
	}
	defer rows.Close()
	var out []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.MeetingID, &p.AgentID, &p.Role, &p.SpeakingOrder, &p.JoinedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan meeting_participant", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) RecordMessage(ctx context.Context, meetingID, agentID, content string, msgType MessageType) (Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM meetings WHERE id=$1 FOR UPDATE`, meetingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, apperr.Newf(apperr.NotFound, "meeting %q not found", meetingID)
		}
		return Message{}, apperr.Wrap(apperr.Internal, "lock meeting row", err)
	}

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT max(sequence_number) FROM meeting_messages WHERE meeting_id=$1`, meetingID).Scan(&maxSeq); err != nil {
		return Message{}, apperr.Wrap(apperr.Internal, "select max sequence_number", err)
	}

	msg := Message{MeetingID: meetingID, SequenceNumber: int(maxSeq.Int64) + 1, AgentID: agentID, Content: content, Type: msgType, Timestamp: time.Now()}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO meeting_messages (meeting_id, sequence_number, agent_id, content, message_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.MeetingID, msg.SequenceNumber, msg.AgentID, msg.Content, msg.Type, msg.Timestamp)
	if err != nil {
		return Message{}, apperr.Wrap(apperr.Internal, "insert meeting_message", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, apperr.Wrap(apperr.Internal, "commit tx", err)
	}
	return msg, nil
}

func (r *PostgresRepo) ListMessages(ctx context.Context, meetingID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT meeting_id, sequence_number, agent_id, content, message_type, timestamp FROM meeting_messages
		WHERE meeting_id=$1 ORDER BY sequence_number ASC
	`, meetingID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query meeting_messages", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MeetingID, &m.SequenceNumber, &m.AgentID, &m.Content, &m.Type, &m.Timestamp); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan meeting_message", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) RecordDecision(ctx context.Context, d Decision) (Decision, error) {
	agreementJSON, err := json.Marshal(d.ParticipantAgreement)
	if err != nil {
		return Decision{}, apperr.Wrap(apperr.Internal, "marshal participant_agreement", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO decisions (id, meeting_id, title, description, options, selected_option, rationale, participant_agreement, related_communication_ids, status, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, d.ID, d.MeetingID, d.Title, d.Description, textArray(d.Options), d.SelectedOption, d.Rationale, agreementJSON, textArray(d.RelatedCommunicationIDs), d.Status, d.DecidedAt)
	if err != nil {
		return Decision{}, apperr.Wrap(apperr.Internal, "insert decision", err)
	}
	return d, nil
}

func (r *PostgresRepo) GetDecision(ctx context.Context, meetingID string) (Decision, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, title, description, options, selected_option, rationale, participant_agreement, related_communication_ids, status, decided_at
		FROM decisions WHERE meeting_id=$1
	`, meetingID)
	var d Decision
	var options, relatedIDs textArray
	var agreementJSON []byte
	err := row.Scan(&d.ID, &d.MeetingID, &d.Title, &d.Description, &options, &d.SelectedOption, &d.Rationale, &agreementJSON, &relatedIDs, &d.Status, &d.DecidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, apperr.Wrap(apperr.Internal, "scan decision", err)
	}
	d.Options = []string(options)
	d.RelatedCommunicationIDs = []string(relatedIDs)
	if err := json.Unmarshal(agreementJSON, &d.ParticipantAgreement); err != nil {
		return Decision{}, false, apperr.Wrap(apperr.Internal, "unmarshal participant_agreement", err)
	}
	return d, true, nil
}

func (r *PostgresRepo) IncrementRound(ctx context.Context, meetingID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT current_round FROM meetings WHERE id=$1 FOR UPDATE`, meetingID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.Newf(apperr.NotFound, "meeting %q not found", meetingID)
		}
		return 0, apperr.Wrap(apperr.Internal, "select current_round", err)
	}
	current++
	if _, err := tx.ExecContext(ctx, `UPDATE meetings SET current_round=$1 WHERE id=$2`, current, meetingID); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "update current_round", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "commit tx", err)
	}
	return current, nil
}

func scanMeeting(row *sql.Row) (Meeting, error) {
	var m Meeting
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Description, &m.Agenda, &m.Status,
		&m.MaxDiscussionRounds, &m.CurrentRound, &m.MaxDurationSeconds, &m.CreatedAt, &m.StartedAt, &m.EndedAt); err != nil {
		return Meeting{}, err
	}
	return m, nil
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

package project

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo persists projects across the projects, project_api_keys, and
// cross_project_permissions tables, grounded on the teacher's
// pkg/services/session_service.go tx-per-operation style.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, p Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (project_id, name, description, tags, owner, max_sessions, max_protocols,
			max_message_queue_size, allow_cross_project, discoverable, shared_protocols, status, created_at, last_activity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, p.ProjectID, p.Metadata.Name, p.Metadata.Description, textArray(p.Metadata.Tags), nullIfEmpty(p.Metadata.Owner),
		p.Config.MaxSessions, p.Config.MaxProtocols, p.Config.MaxMessageQueueSize, p.Config.AllowCrossProject,
		p.Config.Discoverable, textArray(p.Config.SharedProtocols), string(p.Status), timeOrNow(p.CreatedAt), p.Statistics.LastActivity)
	if isUniqueViolation(err) {
		return apperr.Newf(apperr.Duplicate, "project %q already exists", p.ProjectID)
	}
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert project", err)
	}
	if err := insertAPIKeys(ctx, tx, p.ProjectID, p.APIKeys); err != nil {
		return err
	}
	if err := insertPermissions(ctx, tx, p.ProjectID, p.Permissions); err != nil {
		return err
	}
	return apperr.Wrap(apperr.Internal, "commit", tx.Commit())
}

func (r *PostgresRepo) Get(ctx context.Context, projectID string) (Project, bool, error) {
	p, err := scanProjectRow(ctx, r.db, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, false, nil
	}
	if err != nil {
		return Project{}, false, err
	}
	if err := loadAPIKeysAndPermissions(ctx, r.db, &p); err != nil {
		return Project{}, false, err
	}
	return p, true, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT project_id FROM projects ORDER BY project_id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list project ids", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, apperr.Wrap(apperr.Internal, "scan project id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate project ids", err)
	}

	out := make([]Project, 0, len(ids))
	for _, id := range ids {
		p, ok, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *PostgresRepo) Update(ctx context.Context, p Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE projects SET name=$2, description=$3, tags=$4, owner=$5, max_sessions=$6, max_protocols=$7,
			max_message_queue_size=$8, allow_cross_project=$9, discoverable=$10, shared_protocols=$11,
			status=$12, last_activity=$13
		WHERE project_id=$1
	`, p.ProjectID, p.Metadata.Name, p.Metadata.Description, textArray(p.Metadata.Tags), nullIfEmpty(p.Metadata.Owner),
		p.Config.MaxSessions, p.Config.MaxProtocols, p.Config.MaxMessageQueueSize, p.Config.AllowCrossProject,
		p.Config.Discoverable, textArray(p.Config.SharedProtocols), string(p.Status), p.Statistics.LastActivity)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "project %q not found", p.ProjectID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_api_keys WHERE project_id=$1`, p.ProjectID); err != nil {
		return apperr.Wrap(apperr.Internal, "clear api keys", err)
	}
	if err := insertAPIKeys(ctx, tx, p.ProjectID, p.APIKeys); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cross_project_permissions WHERE source_project_id=$1`, p.ProjectID); err != nil {
		return apperr.Wrap(apperr.Internal, "clear permissions", err)
	}
	if err := insertPermissions(ctx, tx, p.ProjectID, p.Permissions); err != nil {
		return err
	}
	return apperr.Wrap(apperr.Internal, "commit", tx.Commit())
}

func (r *PostgresRepo) Delete(ctx context.Context, projectID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE project_id=$1`, projectID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "project %q not found", projectID)
	}
	return nil
}

func insertAPIKeys(ctx context.Context, tx *sql.Tx, projectID string, keys []APIKey) error {
	for _, k := range keys {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_api_keys (key_id, project_id, key_hash, is_active, created_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, k.KeyID, projectID, k.KeyHash, k.IsActive, timeOrNow(k.CreatedAt), k.ExpiresAt)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "insert api key", err)
		}
	}
	return nil
}

func insertPermissions(ctx context.Context, tx *sql.Tx, projectID string, perms []CrossProjectPermission) error {
	for _, perm := range perms {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cross_project_permissions (source_project_id, target_project_id, allowed_protocols, message_rate_limit)
			VALUES ($1,$2,$3,$4)
		`, projectID, perm.TargetProjectID, textArray(perm.AllowedProtocols), perm.MessageRateLimit)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "insert permission", err)
		}
	}
	return nil
}

func scanProjectRow(ctx context.Context, db *sql.DB, projectID string) (Project, error) {
	var p Project
	var tags, shared textArray
	var owner sql.NullString
	var lastActivity sql.NullTime
	row := db.QueryRowContext(ctx, `
		SELECT project_id, name, description, tags, owner, max_sessions, max_protocols,
			max_message_queue_size, allow_cross_project, discoverable, shared_protocols, status, created_at, last_activity
		FROM projects WHERE project_id=$1
	`, projectID)
	var status string
	err := row.Scan(&p.ProjectID, &p.Metadata.Name, &p.Metadata.Description, &tags, &owner,
		&p.Config.MaxSessions, &p.Config.MaxProtocols, &p.Config.MaxMessageQueueSize, &p.Config.AllowCrossProject,
		&p.Config.Discoverable, &shared, &status, &p.CreatedAt, &lastActivity)
	if err != nil {
		return Project{}, err
	}
	p.Metadata.Tags = tags
	p.Metadata.Owner = owner.String
	p.Config.SharedProtocols = shared
	p.Status = Status(status)
	if lastActivity.Valid {
		p.Statistics.LastActivity = lastActivity.Time
	}
	return p, nil
}

func loadAPIKeysAndPermissions(ctx context.Context, db *sql.DB, p *Project) error {
	rows, err := db.QueryContext(ctx, `
		SELECT key_id, key_hash, is_active, created_at, expires_at FROM project_api_keys WHERE project_id=$1
	`, p.ProjectID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "load api keys", err)
	}
	for rows.Next() {
		var k APIKey
		var expires sql.NullTime
		if err := rows.Scan(&k.KeyID, &k.KeyHash, &k.IsActive, &k.CreatedAt, &expires); err != nil {
			rows.Close()
			return apperr.Wrap(apperr.Internal, "scan api key", err)
		}
		if expires.Valid {
			t := expires.Time
			k.ExpiresAt = &t
		}
		p.APIKeys = append(p.APIKeys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return apperr.Wrap(apperr.Internal, "iterate api keys", err)
	}

	permRows, err := db.QueryContext(ctx, `
		SELECT target_project_id, allowed_protocols, message_rate_limit FROM cross_project_permissions WHERE source_project_id=$1
	`, p.ProjectID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "load permissions", err)
	}
	for permRows.Next() {
		var perm CrossProjectPermission
		var allowed textArray
		if err := permRows.Scan(&perm.TargetProjectID, &allowed, &perm.MessageRateLimit); err != nil {
			permRows.Close()
			return apperr.Wrap(apperr.Internal, "scan permission", err)
		}
		perm.AllowedProtocols = allowed
		p.Permissions = append(p.Permissions, perm)
	}
	permRows.Close()
	return apperr.Wrap(apperr.Internal, "iterate permissions", permRows.Err())
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

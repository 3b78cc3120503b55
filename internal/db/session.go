package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/cryptoenc"
	"github.com/pazpaz/backend/internal/models"
)

// SessionRepo persists Session rows, transparently encrypting and
// decrypting the four SOAP fields through codec the same way
// ClientRepo does its PHI fields (spec.md §3 — "Encrypted fields:
// subjective, objective, assessment, plan").
type SessionRepo struct {
	db    *DB
	codec *cryptoenc.Codec
}

func NewSessionRepo(database *DB, codec *cryptoenc.Codec) *SessionRepo {
	return &SessionRepo{db: database, codec: codec}
}

func (r *SessionRepo) encryptFields(s *models.Session) (subjective, objective, assessment, plan string, err error) {
	if subjective, err = r.codec.Encrypt(s.Subjective); err != nil {
		return
	}
	if objective, err = r.codec.Encrypt(s.Objective); err != nil {
		return
	}
	if assessment, err = r.codec.Encrypt(s.Assessment); err != nil {
		return
	}
	plan, err = r.codec.Encrypt(s.Plan)
	return
}

func (r *SessionRepo) decrypt(s *models.Session) error {
	var err error
	if s.Subjective, err = r.codec.Decrypt(s.Subjective); err != nil {
		return err
	}
	if s.Objective, err = r.codec.Decrypt(s.Objective); err != nil {
		return err
	}
	if s.Assessment, err = r.codec.Decrypt(s.Assessment); err != nil {
		return err
	}
	s.Plan, err = r.codec.Decrypt(s.Plan)
	return err
}

func scanSession(row *sql.Row, s *models.Session) error {
	return row.Scan(&s.ID, &s.WorkspaceID, &s.ClientID, &s.AppointmentID,
		&s.Subjective, &s.Objective, &s.Assessment, &s.Plan, &s.Version, &s.IsDraft,
		&s.DraftLastSavedAt, &s.FinalizedAt, &s.AmendedAt, &s.AmendmentCount,
		&s.DeletedAt, &s.DeletedByUserID, &s.DeletedReason, &s.PermanentDeleteAfter,
		&s.CreatedAt, &s.UpdatedAt)
}

const sessionColumns = `id, workspace_id, client_id, appointment_id, subjective, objective,
	assessment, plan, version, is_draft, draft_last_saved_at, finalized_at, amended_at,
	amendment_count, deleted_at, deleted_by_user_id, deleted_reason, permanent_delete_after,
	created_at, updated_at`

// Get loads a session regardless of soft-delete state; callers that
// must exclude deleted rows (ordinary reads) use GetActive instead.
func (r *SessionRepo) Get(ctx context.Context, workspaceID, id uuid.UUID) (models.Session, error) {
	var s models.Session
	err := FetchOrNotFound("session", func() error {
		return scanSession(r.db.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND workspace_id = $2`,
			id, workspaceID), &s)
	})
	if err != nil {
		return s, err
	}
	return s, r.decrypt(&s)
}

func (r *SessionRepo) GetActive(ctx context.Context, workspaceID, id uuid.UUID) (models.Session, error) {
	var s models.Session
	err := FetchOrNotFound("session", func() error {
		return scanSession(r.db.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`,
			id, workspaceID), &s)
	})
	if err != nil {
		return s, err
	}
	return s, r.decrypt(&s)
}

func scanSessionRows(rows *sql.Rows, s *models.Session) error {
	return rows.Scan(&s.ID, &s.WorkspaceID, &s.ClientID, &s.AppointmentID,
		&s.Subjective, &s.Objective, &s.Assessment, &s.Plan, &s.Version, &s.IsDraft,
		&s.DraftLastSavedAt, &s.FinalizedAt, &s.AmendedAt, &s.AmendmentCount,
		&s.DeletedAt, &s.DeletedByUserID, &s.DeletedReason, &s.PermanentDeleteAfter,
		&s.CreatedAt, &s.UpdatedAt)
}

// GetActiveBatch loads every requested, non-deleted session id in one
// round trip (spec.md §4.5 step 6 — unique session ids hydrated in a
// single batch). Missing or deleted ids are silently omitted.
func (r *SessionRepo) GetActiveBatch(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Session, error) {
	out := make(map[uuid.UUID]models.Session, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE workspace_id = $1 AND id = ANY($2) AND deleted_at IS NULL`,
		workspaceID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s models.Session
		if err := scanSessionRows(rows, &s); err != nil {
			return nil, err
		}
		if err := r.decrypt(&s); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

// ListRecent returns the most recent non-deleted sessions for a
// client (or the whole workspace when clientID is nil), newest first,
// capped at limit. This is the raw feed GET /sessions?client_id=&search=
// scans in Go for a case-insensitive substring match across all four
// SOAP fields (spec.md §6 — decrypted PHI can't be searched with a SQL
// LIKE, since it's stored as opaque ciphertext).
func (r *SessionRepo) ListRecent(ctx context.Context, workspaceID uuid.UUID, clientID *uuid.UUID, limit int) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE workspace_id = $1 AND deleted_at IS NULL`
	args := []any{workspaceID}
	if clientID != nil {
		query += ` AND client_id = $2 ORDER BY created_at DESC LIMIT $3`
		args = append(args, *clientID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		var s models.Session
		if err := scanSessionRows(rows, &s); err != nil {
			return nil, err
		}
		if err := r.decrypt(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SessionRepo) Create(ctx context.Context, s models.Session) (models.Session, error) {
	return r.CreateTx(ctx, r.db.DB, s)
}

// CreateTx is Create run against an already-open transaction, so the
// session insert and its appointment-completion side effect commit or
// roll back together.
func (r *SessionRepo) CreateTx(ctx context.Context, q Querier, s models.Session) (models.Session, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	subjective, objective, assessment, plan, err := r.encryptFields(&s)
	if err != nil {
		return s, err
	}
	err = q.QueryRowContext(ctx, `
		INSERT INTO sessions (id, workspace_id, client_id, appointment_id, subjective, objective,
		                       assessment, plan, version, is_draft, draft_last_saved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,true,now())
		RETURNING created_at, updated_at, version, is_draft, draft_last_saved_at`,
		s.ID, s.WorkspaceID, s.ClientID, s.AppointmentID, subjective, objective, assessment, plan,
	).Scan(&s.CreatedAt, &s.UpdatedAt, &s.Version, &s.IsDraft, &s.DraftLastSavedAt)
	return s, err
}

// UpdateDraft saves SOAP content on a draft session, enforcing optimistic
// concurrency on expectedVersion (spec.md §4.3 invariant 3).
func (r *SessionRepo) UpdateDraft(ctx context.Context, workspaceID, id uuid.UUID, expectedVersion int, subjective, objective, assessment, plan string) (models.Session, error) {
	encSubjective, err := r.codec.Encrypt(subjective)
	if err != nil {
		return models.Session{}, err
	}
	encObjective, err := r.codec.Encrypt(objective)
	if err != nil {
		return models.Session{}, err
	}
	encAssessment, err := r.codec.Encrypt(assessment)
	if err != nil {
		return models.Session{}, err
	}
	encPlan, err := r.codec.Encrypt(plan)
	if err != nil {
		return models.Session{}, err
	}

	var s models.Session
	err = scanSession(r.db.QueryRowContext(ctx, `
		UPDATE sessions SET subjective = $4, objective = $5, assessment = $6, plan = $7,
		       version = version + 1, draft_last_saved_at = now(), updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND version = $3 AND is_draft = true AND deleted_at IS NULL
		RETURNING `+sessionColumns,
		id, workspaceID, expectedVersion, encSubjective, encObjective, encAssessment, encPlan), &s)
	if err == sql.ErrNoRows {
		return s, apperr.New(apperr.KindVersionConflict, "session was modified concurrently")
	}
	if err != nil {
		return s, err
	}
	return s, r.decrypt(&s)
}

func (r *SessionRepo) Finalize(ctx context.Context, workspaceID, id uuid.UUID, expectedVersion int) (models.Session, error) {
	var s models.Session
	err := scanSession(r.db.QueryRowContext(ctx, `
		UPDATE sessions SET is_draft = false, finalized_at = now(), version = version + 1, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND version = $3 AND is_draft = true AND deleted_at IS NULL
		RETURNING `+sessionColumns,
		id, workspaceID, expectedVersion), &s)
	if err == sql.ErrNoRows {
		return s, apperr.New(apperr.KindVersionConflict, "session was modified concurrently")
	}
	if err != nil {
		return s, err
	}
	return s, r.decrypt(&s)
}

// Amend writes new SOAP content on an already-finalized session and
// bumps amendment_count; the caller is responsible for snapshotting the
// pre-amend content into session_versions first (spec.md §4.3 op 5).
func (r *SessionRepo) Amend(ctx context.Context, tx *sql.Tx, workspaceID, id uuid.UUID, expectedVersion int, subjective, objective, assessment, plan string) (models.Session, error) {
	encSubjective, err := r.codec.Encrypt(subjective)
	if err != nil {
		return models.Session{}, err
	}
	encObjective, err := r.codec.Encrypt(objective)
	if err != nil {
		return models.Session{}, err
	}
	encAssessment, err := r.codec.Encrypt(assessment)
	if err != nil {
		return models.Session{}, err
	}
	encPlan, err := r.codec.Encrypt(plan)
	if err != nil {
		return models.Session{}, err
	}

	var s models.Session
	err = scanSession(tx.QueryRowContext(ctx, `
		UPDATE sessions SET subjective = $4, objective = $5, assessment = $6, plan = $7,
		       amended_at = now(), amendment_count = amendment_count + 1,
		       version = version + 1, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND version = $3 AND is_draft = false AND deleted_at IS NULL
		RETURNING `+sessionColumns,
		id, workspaceID, expectedVersion, encSubjective, encObjective, encAssessment, encPlan), &s)
	if err == sql.ErrNoRows {
		return s, apperr.New(apperr.KindVersionConflict, "session was modified concurrently")
	}
	if err != nil {
		return s, err
	}
	return s, r.decrypt(&s)
}

func (r *SessionRepo) SoftDelete(ctx context.Context, workspaceID, id, deletedBy uuid.UUID, reason string, purgeAfter time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET deleted_at = now(), deleted_by_user_id = $3, deleted_reason = $4,
		       permanent_delete_after = $5, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`,
		id, workspaceID, deletedBy, reason, purgeAfter)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "session")
}

func (r *SessionRepo) Restore(ctx context.Context, workspaceID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET deleted_at = NULL, deleted_by_user_id = NULL, deleted_reason = '',
		       permanent_delete_after = NULL, updated_at = now()
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NOT NULL`, id, workspaceID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "session")
}

// DueForPurge returns sessions whose purge grace period has elapsed.
func (r *SessionRepo) DueForPurge(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM sessions
		WHERE deleted_at IS NOT NULL AND permanent_delete_after IS NOT NULL AND permanent_delete_after <= $1
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SessionRepo) PermanentlyDelete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// SessionVersionRepo persists the immutable pre-amend snapshots,
// encrypted the same way as the live session row.
type SessionVersionRepo struct {
	db    *DB
	codec *cryptoenc.Codec
}

func NewSessionVersionRepo(database *DB, codec *cryptoenc.Codec) *SessionVersionRepo {
	return &SessionVersionRepo{db: database, codec: codec}
}

func (r *SessionVersionRepo) Snapshot(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID, versionNumber int, subjective, objective, assessment, plan string) error {
	encSubjective, err := r.codec.Encrypt(subjective)
	if err != nil {
		return err
	}
	encObjective, err := r.codec.Encrypt(objective)
	if err != nil {
		return err
	}
	encAssessment, err := r.codec.Encrypt(assessment)
	if err != nil {
		return err
	}
	encPlan, err := r.codec.Encrypt(plan)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_versions (id, session_id, version_number, subjective, objective, assessment, plan)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.New(), sessionID, versionNumber, encSubjective, encObjective, encAssessment, encPlan)
	return err
}

func (r *SessionVersionRepo) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, version_number, subjective, objective, assessment, plan, created_at
		FROM session_versions WHERE session_id = $1 ORDER BY version_number ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.SessionVersion
	for rows.Next() {
		var v models.SessionVersion
		if err := rows.Scan(&v.ID, &v.SessionID, &v.VersionNumber, &v.Subjective, &v.Objective,
			&v.Assessment, &v.Plan, &v.CreatedAt); err != nil {
			return nil, err
		}
		if v.Subjective, err = r.codec.Decrypt(v.Subjective); err != nil {
			return nil, err
		}
		if v.Objective, err = r.codec.Decrypt(v.Objective); err != nil {
			return nil, err
		}
		if v.Assessment, err = r.codec.Decrypt(v.Assessment); err != nil {
			return nil, err
		}
		if v.Plan, err = r.codec.Decrypt(v.Plan); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/cryptoenc"
	"github.com/pazpaz/backend/internal/models"
)

// AttachmentRepo persists the metadata row for a session attachment.
// The blob itself never passes through here — internal/attachment
// owns it, keyed by the ObjectKey this repo stores alongside it.
type AttachmentRepo struct {
	db    *DB
	codec *cryptoenc.Codec
}

func NewAttachmentRepo(database *DB, codec *cryptoenc.Codec) *AttachmentRepo {
	return &AttachmentRepo{db: database, codec: codec}
}

func (r *AttachmentRepo) Create(ctx context.Context, a models.Attachment) (models.Attachment, error) {
	fileName, err := r.codec.Encrypt(a.FileName)
	if err != nil {
		return a, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attachments (id, workspace_id, session_id, object_key, file_name,
		                          content_type, size_bytes, uploaded_by_user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.WorkspaceID, a.SessionID, a.ObjectKey, fileName,
		a.ContentType, a.SizeBytes, a.UploadedByUserID, a.CreatedAt)
	return a, err
}

func (r *AttachmentRepo) Get(ctx context.Context, workspaceID, id uuid.UUID) (models.Attachment, error) {
	var a models.Attachment
	var fileName string
	err := FetchOrNotFound("attachment", func() error {
		return r.db.QueryRowContext(ctx, `
			SELECT id, workspace_id, session_id, object_key, file_name, content_type,
			       size_bytes, uploaded_by_user_id, created_at
			FROM attachments WHERE id = $1 AND workspace_id = $2`, id, workspaceID,
		).Scan(&a.ID, &a.WorkspaceID, &a.SessionID, &a.ObjectKey, &fileName, &a.ContentType,
			&a.SizeBytes, &a.UploadedByUserID, &a.CreatedAt)
	})
	if err != nil {
		return a, err
	}
	a.FileName, err = r.codec.Decrypt(fileName)
	return a, err
}

// ListBySession returns every attachment metadata row for a session,
// newest first.
func (r *AttachmentRepo) ListBySession(ctx context.Context, workspaceID, sessionID uuid.UUID) ([]models.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace_id, session_id, object_key, file_name, content_type,
		       size_bytes, uploaded_by_user_id, created_at
		FROM attachments WHERE workspace_id = $1 AND session_id = $2
		ORDER BY created_at DESC`, workspaceID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		var a models.Attachment
		var fileName string
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.SessionID, &a.ObjectKey, &fileName,
			&a.ContentType, &a.SizeBytes, &a.UploadedByUserID, &a.CreatedAt); err != nil {
			return nil, err
		}
		if a.FileName, err = r.codec.Decrypt(fileName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AttachmentRepo) Delete(ctx context.Context, workspaceID, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	return err
}

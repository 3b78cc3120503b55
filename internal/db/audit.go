package db

import (
	"context"

	"github.com/pazpaz/backend/internal/models"
)

// AuditRepo implements audit.Store against the relational store.
type AuditRepo struct{ db *DB }

func NewAuditRepo(database *DB) *AuditRepo { return &AuditRepo{db: database} }

func (r *AuditRepo) InsertAuditEvent(ctx context.Context, event models.AuditEvent) error {
	meta, err := MarshalMetadata(event.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor_user_id, workspace_id, action, resource_type,
		                           resource_id, metadata, ip_address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.ID, event.ActorUserID, event.WorkspaceID, event.Action, event.ResourceType,
		event.ResourceID, meta, event.IPAddress, event.CreatedAt)
	return err
}

package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/models"
)

// WorkspaceRepo loads and updates Workspace rows. Workspace lookups
// are never filtered by another workspace_id (a workspace IS the
// tenant boundary); Get still routes not-found through
// FetchOrNotFound like every other entity repo.
type WorkspaceRepo struct{ db *DB }

func NewWorkspaceRepo(database *DB) *WorkspaceRepo { return &WorkspaceRepo{db: database} }

func (r *WorkspaceRepo) Get(ctx context.Context, id uuid.UUID) (models.Workspace, error) {
	var w models.Workspace
	var cfgRaw []byte
	err := FetchOrNotFound("workspace", func() error {
		return r.db.QueryRowContext(ctx, `
			SELECT id, name, status, payments_enabled, payment_provider, payment_provider_config,
			       vat_registered, vat_rate, currency, receipt_counter, created_at
			FROM workspaces WHERE id = $1`, id,
		).Scan(&w.ID, &w.Name, &w.Status, &w.PaymentsEnabled, &w.PaymentProvider, &cfgRaw,
			&w.VATRegistered, &w.VATRate, &w.Currency, &w.ReceiptCounter, &w.CreatedAt)
	})
	if err != nil {
		return w, err
	}
	w.PaymentProviderConfig, err = unmarshalStringMap(cfgRaw)
	return w, err
}

// NextReceiptNumber atomically increments and returns the workspace's
// receipt counter, guaranteeing a gapless sequence across concurrent
// issuances (spec.md §5 ordering contract 2).
func (r *WorkspaceRepo) NextReceiptNumber(ctx context.Context, tx *sql.Tx, workspaceID uuid.UUID) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `
		UPDATE workspaces SET receipt_counter = receipt_counter + 1
		WHERE id = $1 RETURNING receipt_counter`, workspaceID,
	).Scan(&next)
	return next, err
}

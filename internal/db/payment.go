package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/models"
)

type PaymentTransactionRepo struct{ db *DB }

func NewPaymentTransactionRepo(database *DB) *PaymentTransactionRepo {
	return &PaymentTransactionRepo{db: database}
}

const txColumns = `id, workspace_id, appointment_id, base_amount, vat_amount, total_amount,
	currency, payment_method, status, provider, provider_transaction_id, provider_payment_link,
	receipt_number, created_at, completed_at, failed_at, refunded_at, failure_reason, provider_metadata`

func scanTx(row *sql.Row, t *models.PaymentTransaction) error {
	var metaRaw []byte
	if err := row.Scan(&t.ID, &t.WorkspaceID, &t.AppointmentID, &t.BaseAmount, &t.VATAmount, &t.TotalAmount,
		&t.Currency, &t.PaymentMethod, &t.Status, &t.Provider, &t.ProviderTransactionID, &t.ProviderPaymentLink,
		&t.ReceiptNumber, &t.CreatedAt, &t.CompletedAt, &t.FailedAt, &t.RefundedAt, &t.FailureReason, &metaRaw); err != nil {
		return err
	}
	meta, err := UnmarshalMetadata(metaRaw)
	if err != nil {
		return err
	}
	t.ProviderMetadata = meta
	return nil
}

func (r *PaymentTransactionRepo) Get(ctx context.Context, workspaceID, id uuid.UUID) (models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	err := FetchOrNotFound("payment_transaction", func() error {
		return scanTx(r.db.QueryRowContext(ctx,
			`SELECT `+txColumns+` FROM payment_transactions WHERE id = $1 AND workspace_id = $2`,
			id, workspaceID), &t)
	})
	return t, err
}

func (r *PaymentTransactionRepo) GetByProviderID(ctx context.Context, tx *sql.Tx, provider, providerTransactionID string) (models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	err := scanTx(tx.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE provider = $1 AND provider_transaction_id = $2 FOR UPDATE`,
		provider, providerTransactionID), &t)
	if err == sql.ErrNoRows {
		return t, apperr.New(apperr.KindTransactionNotFound, "payment transaction not found")
	}
	return t, err
}

// WorkspaceAndConfigByProviderTransactionID resolves the workspace and
// provider config a webhook's provider_transaction_id belongs to (the
// config column is decoded as plain JSON; nothing in it is decrypted), so the webhook handler can verify the payload's
// signature before it knows anything else about the transaction
// (spec.md §6 — POST /payments/webhook/{provider} has no session auth
// to scope the lookup by).
func (r *PaymentTransactionRepo) WorkspaceAndConfigByProviderTransactionID(ctx context.Context, provider, providerTransactionID string) (uuid.UUID, map[string]string, error) {
	var workspaceID uuid.UUID
	var cfg map[string]string
	err := FetchOrNotFound("payment_transaction", func() error {
		var cfgRaw []byte
		scanErr := r.db.QueryRowContext(ctx, `
			SELECT t.workspace_id, w.payment_provider_config
			FROM payment_transactions t JOIN workspaces w ON w.id = t.workspace_id
			WHERE t.provider = $1 AND t.provider_transaction_id = $2`,
			provider, providerTransactionID,
		).Scan(&workspaceID, &cfgRaw)
		if scanErr != nil {
			return scanErr
		}
		var err error
		cfg, err = unmarshalStringMap(cfgRaw)
		return err
	})
	return workspaceID, cfg, err
}

func (r *PaymentTransactionRepo) Create(ctx context.Context, t models.PaymentTransaction) (models.PaymentTransaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	meta, err := MarshalMetadata(t.ProviderMetadata)
	if err != nil {
		return t, err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO payment_transactions (id, workspace_id, appointment_id, base_amount, vat_amount,
		       total_amount, currency, payment_method, status, provider, provider_transaction_id,
		       provider_payment_link, provider_metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at`,
		t.ID, t.WorkspaceID, t.AppointmentID, t.BaseAmount, t.VATAmount, t.TotalAmount, t.Currency,
		t.PaymentMethod, t.Status, t.Provider, t.ProviderTransactionID, t.ProviderPaymentLink, meta,
	).Scan(&t.CreatedAt)
	return t, err
}

// TransitionStatus applies a monotonic terminal-state transition inside
// an already-open transaction (spec.md §5 ordering contract 3); callers
// must have checked t.Status.IsTerminal() before calling.
func (r *PaymentTransactionRepo) TransitionStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status models.TransactionStatus, receiptNumber *int64, failureReason string) error {
	var completedAt, failedAt, refundedAt any
	now := time.Now()
	switch status {
	case models.TxCompleted:
		completedAt = now
	case models.TxFailed:
		failedAt = now
	case models.TxRefunded:
		refundedAt = now
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE payment_transactions SET status = $2, receipt_number = $3, failure_reason = $4,
		       completed_at = COALESCE($5, completed_at), failed_at = COALESCE($6, failed_at),
		       refunded_at = COALESCE($7, refunded_at)
		WHERE id = $1`, id, status, receiptNumber, failureReason, completedAt, failedAt, refundedAt)
	return err
}

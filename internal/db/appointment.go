package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/models"
)

type AppointmentRepo struct{ db *DB }

func NewAppointmentRepo(database *DB) *AppointmentRepo { return &AppointmentRepo{db: database} }

func (r *AppointmentRepo) Get(ctx context.Context, workspaceID, id uuid.UUID) (models.Appointment, error) {
	return r.GetTx(ctx, r.db.DB, workspaceID, id)
}

func (r *AppointmentRepo) GetTx(ctx context.Context, q Querier, workspaceID, id uuid.UUID) (models.Appointment, error) {
	var a models.Appointment
	err := FetchOrNotFound("appointment", func() error {
		return scanAppointment(q.QueryRowContext(ctx, `
			SELECT id, workspace_id, client_id, session_id, scheduled_start, scheduled_end,
			       location_type, status, payment_price, payment_status, payment_method,
			       paid_at, edit_count, created_at, updated_at
			FROM appointments WHERE id = $1 AND workspace_id = $2`, id, workspaceID), &a)
	})
	return a, err
}

func scanAppointment(row *sql.Row, a *models.Appointment) error {
	return row.Scan(&a.ID, &a.WorkspaceID, &a.ClientID, &a.SessionID, &a.ScheduledStart, &a.ScheduledEnd,
		&a.LocationType, &a.Status, &a.PaymentPrice, &a.PaymentStatus, &a.PaymentMethod,
		&a.PaidAt, &a.EditCount, &a.CreatedAt, &a.UpdatedAt)
}

// OverlappingForClient returns every appointment for the client in this
// workspace that participates in conflict checking (scheduled/attended)
// and whose window could plausibly overlap [start, end), excluding id
// itself so reschedules can check against their own prior slot safely.
func (r *AppointmentRepo) OverlappingForClient(ctx context.Context, workspaceID, clientID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]models.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace_id, client_id, session_id, scheduled_start, scheduled_end,
		       location_type, status, payment_price, payment_status, payment_method,
		       paid_at, edit_count, created_at, updated_at
		FROM appointments
		WHERE workspace_id = $1 AND client_id = $2
		  AND status IN ('scheduled', 'attended')
		  AND scheduled_start < $4 AND scheduled_end > $3
		  AND ($5::uuid IS NULL OR id != $5)`,
		workspaceID, clientID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.ClientID, &a.SessionID, &a.ScheduledStart, &a.ScheduledEnd,
			&a.LocationType, &a.Status, &a.PaymentPrice, &a.PaymentStatus, &a.PaymentMethod,
			&a.PaidAt, &a.EditCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AppointmentRepo) Create(ctx context.Context, a models.Appointment) (models.Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO appointments (id, workspace_id, client_id, session_id, scheduled_start,
		                           scheduled_end, location_type, status, payment_price,
		                           payment_status, payment_method, edit_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0)
		RETURNING created_at, updated_at`,
		a.ID, a.WorkspaceID, a.ClientID, a.SessionID, a.ScheduledStart, a.ScheduledEnd,
		a.LocationType, a.Status, a.PaymentPrice, a.PaymentStatus, a.PaymentMethod,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Reschedule updates the window and bumps edit_count, matching the
// teacher's optimistic-update-plus-counter pattern used for escrow state.
func (r *AppointmentRepo) Reschedule(ctx context.Context, workspaceID, id uuid.UUID, start, end time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments SET scheduled_start = $3, scheduled_end = $4,
		       edit_count = edit_count + 1, updated_at = now()
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID, start, end)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "appointment")
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, workspaceID, id uuid.UUID, status models.AppointmentStatus) error {
	return r.UpdateStatusTx(ctx, r.db.DB, workspaceID, id, status)
}

func (r *AppointmentRepo) UpdateStatusTx(ctx context.Context, q Querier, workspaceID, id uuid.UUID, status models.AppointmentStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE appointments SET status = $3, updated_at = now()
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID, status)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "appointment")
}

// MarkPaymentSent flips payment_status to payment_sent the moment a
// payment link is issued, ahead of any webhook settlement.
func (r *AppointmentRepo) MarkPaymentSent(ctx context.Context, workspaceID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments SET payment_status = $3, updated_at = now()
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID, models.PaymentSent)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "appointment")
}

func (r *AppointmentRepo) UpdatePayment(ctx context.Context, tx *sql.Tx, workspaceID, id uuid.UUID, status models.PaymentStatus, paidAt *time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE appointments SET payment_status = $3, paid_at = $4, updated_at = now()
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID, status, paidAt)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "appointment")
}

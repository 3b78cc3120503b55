// Package session implements the clinical-note lifecycle engine
// (spec.md §4.3): create/draft-update/finalize/amend/unfinalize/
// soft-delete/restore/permanent-delete, plus the scheduled purge job.
package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/audit"
	"github.com/pazpaz/backend/internal/db"
	"github.com/pazpaz/backend/internal/models"
	"github.com/pazpaz/backend/internal/ratelimit"
)

const purgeGracePeriod = 30 * 24 * time.Hour

type Engine struct {
	database     *db.DB
	sessions     *db.SessionRepo
	versions     *db.SessionVersionRepo
	appointments *db.AppointmentRepo
	audit        *audit.Emitter
	draftLimiter *ratelimit.Limiter
}

func NewEngine(database *db.DB, sessions *db.SessionRepo, versions *db.SessionVersionRepo, appointments *db.AppointmentRepo, auditEmitter *audit.Emitter, draftLimiter *ratelimit.Limiter) *Engine {
	return &Engine{
		database: database, sessions: sessions, versions: versions,
		appointments: appointments, audit: auditEmitter, draftLimiter: draftLimiter,
	}
}

// Create starts a new draft session. If appointmentID is given and the
// appointment is currently scheduled, it is atomically completed.
func (e *Engine) Create(ctx context.Context, userID uuid.UUID, workspaceID, clientID uuid.UUID, appointmentID *uuid.UUID, subjective, objective, assessment, plan string) (models.Session, error) {
	s := models.Session{
		WorkspaceID: workspaceID, ClientID: clientID, AppointmentID: appointmentID,
		Subjective: subjective, Objective: objective, Assessment: assessment, Plan: plan,
	}

	var created models.Session
	err := db.WithTx(ctx, e.database, func(tx *sql.Tx) error {
		var err error
		created, err = e.sessions.CreateTx(ctx, tx, s)
		if err != nil {
			return err
		}
		if appointmentID != nil {
			appt, err := e.appointments.GetTx(ctx, tx, workspaceID, *appointmentID)
			if err == nil && appt.Status == models.AppointmentScheduled {
				if err := e.appointments.UpdateStatusTx(ctx, tx, workspaceID, *appointmentID, models.AppointmentCompleted); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return models.Session{}, err
	}

	e.audit.Emit(ctx, models.AuditEvent{
		ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditCreate,
		ResourceType: "session", ResourceID: &created.ID,
	})
	return created, nil
}

// SaveDraft autosaves a partial SOAP patch, rate-limited to 60/minute
// per (user, session) (spec.md §4.3 op 2).
func (e *Engine) SaveDraft(ctx context.Context, userID, workspaceID, sessionID uuid.UUID, expectedVersion int, subjective, objective, assessment, plan string) (models.Session, error) {
	limiterKey := userID.String() + ":" + sessionID.String()
	allowed, err := e.draftLimiter.Allow(ctx, limiterKey)
	if err != nil {
		return models.Session{}, err
	}
	if !allowed {
		return models.Session{}, apperr.New(apperr.KindRateLimited, "draft autosave rate limit exceeded")
	}

	updated, err := e.sessions.UpdateDraft(ctx, workspaceID, sessionID, expectedVersion, subjective, objective, assessment, plan)
	if err != nil {
		return updated, err
	}

	e.audit.Emit(ctx, models.AuditEvent{
		ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditUpdate,
		ResourceType: "session", ResourceID: &sessionID, Metadata: map[string]any{"draft_autosave": true},
	})
	return updated, nil
}

// Finalize locks a session's content, requiring at least one non-empty
// SOAP field, and snapshots version 1.
func (e *Engine) Finalize(ctx context.Context, userID, workspaceID, sessionID uuid.UUID, expectedVersion int) (models.Session, error) {
	current, err := e.sessions.GetActive(ctx, workspaceID, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	if !current.IsDraft {
		return models.Session{}, apperr.New(apperr.KindAlreadyFinalized, "session is already finalized")
	}
	if !current.HasContent() {
		return models.Session{}, apperr.New(apperr.KindUnprocessableEntity, "cannot finalize an empty session")
	}

	var finalized models.Session
	err = db.WithTx(ctx, e.database, func(tx *sql.Tx) error {
		var err error
		finalized, err = e.sessions.Finalize(ctx, workspaceID, sessionID, expectedVersion)
		if err != nil {
			return err
		}
		return e.versions.Snapshot(ctx, tx, sessionID, 1, finalized.Subjective, finalized.Objective, finalized.Assessment, finalized.Plan)
	})
	if err != nil {
		return models.Session{}, err
	}

	e.audit.Emit(ctx, models.AuditEvent{
		ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditUpdate,
		ResourceType: "session", ResourceID: &sessionID, Metadata: map[string]any{"finalized": true},
	})
	return finalized, nil
}

// Amend updates a finalized session's content, snapshotting the
// pre-amend payload first (spec.md §4.3 op 5).
func (e *Engine) Amend(ctx context.Context, userID, workspaceID, sessionID uuid.UUID, expectedVersion int, subjective, objective, assessment, plan string) (models.Session, error) {
	current, err := e.sessions.GetActive(ctx, workspaceID, sessionID)
	if err != nil {
		return models.Session{}, err
	}
	if current.IsDraft {
		return models.Session{}, apperr.New(apperr.KindUnprocessableEntity, "session must be finalized before it can be amended")
	}

	sectionsChanged := changedSections(current, subjective, objective, assessment, plan)

	var amended models.Session
	err = db.WithTx(ctx, e.database, func(tx *sql.Tx) error {
		versionNumber := current.AmendmentCount + 2
		if err := e.versions.Snapshot(ctx, tx, sessionID, versionNumber, current.Subjective, current.Objective, current.Assessment, current.Plan); err != nil {
			return err
		}
		var err error
		amended, err = e.sessions.Amend(ctx, tx, workspaceID, sessionID, expectedVersion, subjective, objective, assessment, plan)
		return err
	})
	if err != nil {
		return models.Session{}, err
	}

	e.audit.Emit(ctx, models.AuditEvent{
		ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditUpdate,
		ResourceType: "session", ResourceID: &sessionID,
		Metadata: map[string]any{"sections_changed": sectionsChanged},
	})
	return amended, nil
}

func changedSections(current models.Session, subjective, objective, assessment, plan string) []string {
	var changed []string
	if current.Subjective != subjective {
		changed = append(changed, "subjective")
	}
	if current.Objective != objective {
		changed = append(changed, "objective")
	}
	if current.Assessment != assessment {
		changed = append(changed, "assessment")
	}
	if current.Plan != plan {
		changed = append(changed, "plan")
	}
	return changed
}

// Unfinalize reverts a finalized/amended session to draft, deleting all
// SessionVersion rows and resetting amendment tracking.
func (e *Engine) Unfinalize(ctx context.Context, userID, workspaceID, sessionID uuid.UUID) error {
	current, err := e.sessions.GetActive(ctx, workspaceID, sessionID)
	if err != nil {
		return err
	}
	if current.IsDraft {
		return apperr.New(apperr.KindAlreadyDraft, "session is already a draft")
	}

	err = db.WithTx(ctx, e.database, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_versions WHERE session_id = $1`, sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE sessions SET is_draft = true, finalized_at = NULL, amended_at = NULL,
			       amendment_count = 0, version = version + 1, updated_at = now()
			WHERE id = $1 AND workspace_id = $2`, sessionID, workspaceID)
		return err
	})
	if err != nil {
		return err
	}

	e.audit.Emit(ctx, models.AuditEvent{
		ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditUpdate,
		ResourceType: "session", ResourceID: &sessionID, Metadata: map[string]any{"unfinalized": true},
	})
	return nil
}

// SoftDelete marks a session deleted with a 30-day restore grace
// period. Cascading deletion from an appointment (viaCascade=true)
// refuses to remove an amended session (medical-legal protection).
func (e *Engine) SoftDelete(ctx context.Context, userID, workspaceID, sessionID uuid.UUID, reason string, viaCascade bool, now time.Time) error {
	if viaCascade {
		current, err := e.sessions.GetActive(ctx, workspaceID, sessionID)
		if err != nil {
			return err
		}
		if current.AmendmentCount > 0 {
			return apperr.New(apperr.KindForbidden, "cascading delete refuses to remove an amended session")
		}
	}

	purgeAfter := now.Add(purgeGracePeriod)
	if err := e.sessions.SoftDelete(ctx, workspaceID, sessionID, userID, reason, purgeAfter); err != nil {
		return err
	}

	e.audit.Emit(ctx, models.AuditEvent{
		ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditDelete,
		ResourceType: "session", ResourceID: &sessionID, Metadata: map[string]any{"reason": reason},
	})
	return nil
}

// Restore reverses a soft-delete, only while the grace period holds.
func (e *Engine) Restore(ctx context.Context, userID, workspaceID, sessionID uuid.UUID, now time.Time) error {
	s, err := e.sessions.Get(ctx, workspaceID, sessionID)
	if err != nil {
		return err
	}
	if s.DeletedAt == nil {
		return apperr.New(apperr.KindUnprocessableEntity, "session is not deleted")
	}
	if s.PermanentDeleteAfter != nil && !now.Before(*s.PermanentDeleteAfter) {
		return apperr.New(apperr.KindGone, "restore grace period has elapsed")
	}

	if err := e.sessions.Restore(ctx, workspaceID, sessionID); err != nil {
		return err
	}
	e.audit.Emit(ctx, models.AuditEvent{
		ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditUpdate,
		ResourceType: "session", ResourceID: &sessionID, Metadata: map[string]any{"restored": true},
	})
	return nil
}

// PurgeExpired permanently deletes every session past its purge grace
// period, run periodically by the owning process (spec.md §9 — no
// external scheduler is named, so this is exposed as a plain function
// cmd/api wires to a time.Ticker).
func (e *Engine) PurgeExpired(ctx context.Context, now time.Time, batchSize int) (int, error) {
	ids, err := e.sessions.DueForPurge(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := e.sessions.PermanentlyDelete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

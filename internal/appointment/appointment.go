// Package appointment implements scheduling-conflict detection and
// appointment creation/rescheduling (spec.md §3, §6).
package appointment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/db"
	"github.com/pazpaz/backend/internal/models"
)

type Service struct {
	appointments *db.AppointmentRepo
	clients      *db.ClientRepo
}

func NewService(appointments *db.AppointmentRepo, clients *db.ClientRepo) *Service {
	return &Service{appointments: appointments, clients: clients}
}

// ConflictMatch is one overlapping appointment surfaced to the caller,
// redacted to initials rather than a full client name (spec.md §6).
type ConflictMatch struct {
	ID             uuid.UUID
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	ClientInitials string
	LocationType   models.LocationType
	Status         models.AppointmentStatus
}

// ClientInitials formats first-initial-of-first-name-and-last-name with
// trailing dots, falling back to "?" for an empty name (spec.md §6).
func ClientInitials(firstName, lastName string) string {
	var b strings.Builder
	wrote := false
	if r := firstRune(firstName); r != 0 {
		b.WriteRune(r)
		b.WriteByte('.')
		wrote = true
	}
	if r := firstRune(lastName); r != 0 {
		b.WriteRune(r)
		b.WriteByte('.')
		wrote = true
	}
	if !wrote {
		return "?"
	}
	return b.String()
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// CheckConflicts reports whether [start, end) overlaps any existing
// scheduled/attended appointment for clientID, excluding excludeID.
func (s *Service) CheckConflicts(ctx context.Context, workspaceID, clientID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, []ConflictMatch, error) {
	if !end.After(start) {
		return false, nil, apperr.New(apperr.KindUnprocessableEntity, "scheduled_end must be after scheduled_start")
	}

	overlapping, err := s.appointments.OverlappingForClient(ctx, workspaceID, clientID, start, end, excludeID)
	if err != nil {
		return false, nil, err
	}
	if len(overlapping) == 0 {
		return false, nil, nil
	}

	client, err := s.clients.Get(ctx, workspaceID, clientID)
	if err != nil {
		return false, nil, err
	}
	initials := ClientInitials(client.FirstName, client.LastName)

	matches := make([]ConflictMatch, 0, len(overlapping))
	for _, a := range overlapping {
		matches = append(matches, ConflictMatch{
			ID: a.ID, ScheduledStart: a.ScheduledStart, ScheduledEnd: a.ScheduledEnd,
			ClientInitials: initials, LocationType: a.LocationType, Status: a.Status,
		})
	}
	return true, matches, nil
}

// Create inserts a new appointment, rejecting it with Conflict unless
// allowConflict is set (spec.md §6 — POST /appointments semantics).
func (s *Service) Create(ctx context.Context, a models.Appointment, allowConflict bool) (models.Appointment, []ConflictMatch, error) {
	if !a.ScheduledEnd.After(a.ScheduledStart) {
		return models.Appointment{}, nil, apperr.New(apperr.KindUnprocessableEntity, "scheduled_end must be after scheduled_start")
	}

	hasConflict, matches, err := s.CheckConflicts(ctx, a.WorkspaceID, a.ClientID, a.ScheduledStart, a.ScheduledEnd, nil)
	if err != nil {
		return models.Appointment{}, nil, err
	}
	if hasConflict && !allowConflict {
		return models.Appointment{}, matches, apperr.New(apperr.KindConflict, "appointment conflicts with an existing booking")
	}

	created, err := s.appointments.Create(ctx, a)
	return created, nil, err
}

// Reschedule moves an appointment to a new window, same conflict rule
// as Create, excluding the appointment's own prior slot.
func (s *Service) Reschedule(ctx context.Context, workspaceID, id, clientID uuid.UUID, start, end time.Time, allowConflict bool) ([]ConflictMatch, error) {
	if !end.After(start) {
		return nil, apperr.New(apperr.KindUnprocessableEntity, "scheduled_end must be after scheduled_start")
	}
	hasConflict, matches, err := s.CheckConflicts(ctx, workspaceID, clientID, start, end, &id)
	if err != nil {
		return nil, err
	}
	if hasConflict && !allowConflict {
		return matches, apperr.New(apperr.KindConflict, "appointment conflicts with an existing booking")
	}
	return nil, s.appointments.Reschedule(ctx, workspaceID, id, start, end)
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/appointment"
	"github.com/pazpaz/backend/internal/models"
)

type createAppointmentRequest struct {
	ClientID       uuid.UUID           `json:"client_id"`
	ScheduledStart time.Time           `json:"scheduled_start"`
	ScheduledEnd   time.Time           `json:"scheduled_end"`
	LocationType   models.LocationType `json:"location_type"`
	PaymentPrice   float64             `json:"payment_price"`
}

type conflictMatchView struct {
	ID             uuid.UUID                  `json:"id"`
	ScheduledStart time.Time                  `json:"scheduled_start"`
	ScheduledEnd   time.Time                  `json:"scheduled_end"`
	ClientInitials string                     `json:"client_initials"`
	LocationType   models.LocationType        `json:"location_type"`
	Status         models.AppointmentStatus   `json:"status"`
}

// createAppointment implements POST /appointments (spec.md §6):
// rejects conflicts with 409 unless ?allow_conflict=true.
func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "malformed request body"})
		return
	}
	allowConflict := r.URL.Query().Get("allow_conflict") == "true"
	workspaceID := workspaceIDFrom(r.Context())

	appt := models.Appointment{
		WorkspaceID: workspaceID, ClientID: req.ClientID,
		ScheduledStart: req.ScheduledStart, ScheduledEnd: req.ScheduledEnd,
		LocationType: req.LocationType, PaymentPrice: req.PaymentPrice,
		Status: models.AppointmentScheduled, PaymentStatus: models.PaymentUnpaid,
	}

	created, conflicts, err := h.deps.Appointments.Create(r.Context(), appt, allowConflict)
	if err != nil {
		if len(conflicts) > 0 {
			writeJSON(w, http.StatusConflict, map[string]any{
				"conflicting_appointments": renderConflicts(conflicts),
			})
			return
		}
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// appointmentConflicts implements GET /appointments/conflicts.
func (h *handlers) appointmentConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := time.Parse(time.RFC3339, q.Get("scheduled_start"))
	end, err2 := time.Parse(time.RFC3339, q.Get("scheduled_end"))
	if err1 != nil || err2 != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "scheduled_start and scheduled_end must be RFC3339 timestamps"})
		return
	}
	clientID, err := uuid.Parse(q.Get("client_id"))
	if err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "client_id is required"})
		return
	}
	var excludeID *uuid.UUID
	if raw := q.Get("exclude_appointment_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			excludeID = &id
		}
	}

	hasConflict, conflicts, err := h.deps.Appointments.CheckConflicts(r.Context(), workspaceIDFrom(r.Context()), clientID, start, end, excludeID)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_conflict":             hasConflict,
		"conflicting_appointments": renderConflicts(conflicts),
	})
}

func renderConflicts(matches []appointment.ConflictMatch) []conflictMatchView {
	out := make([]conflictMatchView, 0, len(matches))
	for _, m := range matches {
		out = append(out, conflictMatchView{
			ID: m.ID, ScheduledStart: m.ScheduledStart, ScheduledEnd: m.ScheduledEnd,
			ClientInitials: m.ClientInitials, LocationType: m.LocationType, Status: m.Status,
		})
	}
	return out
}

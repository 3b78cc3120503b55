package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pazpaz/backend/internal/models"
)

type soapBody struct {
	ClientID      *uuid.UUID `json:"client_id"`
	AppointmentID *uuid.UUID `json:"appointment_id"`
	Subjective    string     `json:"subjective"`
	Objective     string     `json:"objective"`
	Assessment    string     `json:"assessment"`
	Plan          string     `json:"plan"`
	Version       int        `json:"version"`
}

// createSession implements POST /sessions.
func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req soapBody
	if err := decodeJSON(r, &req); err != nil || req.ClientID == nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "client_id is required"})
		return
	}
	s, err := h.deps.Sessions.Create(r.Context(), userIDFrom(r.Context()), workspaceIDFrom(r.Context()),
		*req.ClientID, req.AppointmentID, req.Subjective, req.Objective, req.Assessment, req.Plan)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// saveDraft implements PATCH /sessions/{id}/draft, rate-limited per
// spec.md §4.8.
func (h *handlers) saveDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	workspaceID := workspaceIDFrom(r.Context())
	if allowed, err := h.deps.DraftLimiter.Allow(r.Context(), "draft:"+userIDFrom(r.Context()).String()+":"+id.String()); err != nil || !allowed {
		writeError(w, apiError{status: http.StatusTooManyRequests, message: "too many autosave requests"})
		return
	}
	var req soapBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "malformed request body"})
		return
	}
	s, err := h.deps.Sessions.SaveDraft(r.Context(), userIDFrom(r.Context()), workspaceID, id,
		req.Version, req.Subjective, req.Objective, req.Assessment, req.Plan)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// finalizeSession implements POST /sessions/{id}/finalize.
func (h *handlers) finalizeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Version int `json:"version"`
	}
	_ = decodeJSON(r, &req)
	s, err := h.deps.Sessions.Finalize(r.Context(), userIDFrom(r.Context()), workspaceIDFrom(r.Context()), id, req.Version)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// unfinalizeSession implements POST /sessions/{id}/unfinalize.
func (h *handlers) unfinalizeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.deps.Sessions.Unfinalize(r.Context(), userIDFrom(r.Context()), workspaceIDFrom(r.Context()), id); err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// amendSession implements PUT /sessions/{id}: amends if finalized,
// else a normal draft update (spec.md §6).
func (h *handlers) amendSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req soapBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "malformed request body"})
		return
	}
	s, err := h.deps.Sessions.Amend(r.Context(), userIDFrom(r.Context()), workspaceIDFrom(r.Context()), id,
		req.Version, req.Subjective, req.Objective, req.Assessment, req.Plan)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// deleteSession implements DELETE /sessions/{id}: soft-delete with a
// 30-day grace period.
func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = decodeJSON(r, &req)
	err := h.deps.Sessions.SoftDelete(r.Context(), userIDFrom(r.Context()), workspaceIDFrom(r.Context()), id, req.Reason, false, time.Now().UTC())
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// restoreSession implements POST /sessions/{id}/restore.
func (h *handlers) restoreSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.deps.Sessions.Restore(r.Context(), userIDFrom(r.Context()), workspaceIDFrom(r.Context()), id, time.Now().UTC()); err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// permanentlyDeleteSession implements DELETE /sessions/{id}/permanent.
func (h *handlers) permanentlyDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	workspaceID := workspaceIDFrom(r.Context())
	existing, err := h.deps.SessionRepo.Get(r.Context(), workspaceID, id)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	if existing.DeletedAt == nil {
		writeError(w, apiError{status: http.StatusUnprocessableEntity, message: "session must be soft-deleted before permanent delete"})
		return
	}
	if err := h.deps.SessionRepo.PermanentlyDelete(r.Context(), id); err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listSessions implements GET /sessions?client_id=&search= — when
// search is present, the already-decrypted recent feed is scanned in
// Go for a case-insensitive substring match across all four SOAP
// fields, since ciphertext at rest can't be searched with SQL LIKE
// (spec.md §6).
func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var clientID *uuid.UUID
	if raw := q.Get("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, apiError{status: http.StatusBadRequest, message: "invalid client_id"})
			return
		}
		clientID = &id
	}

	const recentScanLimit = 1000
	limit := recentScanLimit
	search := strings.TrimSpace(q.Get("search"))
	if search == "" {
		limit = 50
	}

	workspaceID := workspaceIDFrom(r.Context())
	sessions, err := h.deps.SessionRepo.ListRecent(r.Context(), workspaceID, clientID, limit)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}

	if search != "" {
		needle := strings.ToLower(search)
		filtered := sessions[:0]
		for _, s := range sessions {
			if containsFold(s.Subjective, needle) || containsFold(s.Objective, needle) ||
				containsFold(s.Assessment, needle) || containsFold(s.Plan, needle) {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered

		// spec.md §6 — search queries emit a READ audit event carrying
		// the verbatim search string; logging the typed query is fine,
		// the stored PHI it matched against is not logged.
		userID := userIDFrom(r.Context())
		h.deps.Audit.Emit(r.Context(), models.AuditEvent{
			ActorUserID: &userID, WorkspaceID: workspaceID, Action: models.AuditRead,
			ResourceType: "session_search",
			Metadata:     map[string]any{"search": search, "result_count": len(sessions)},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func containsFold(haystack, needleLower string) bool {
	return strings.Contains(strings.ToLower(haystack), needleLower)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "invalid " + name})
		return uuid.UUID{}, false
	}
	return id, true
}

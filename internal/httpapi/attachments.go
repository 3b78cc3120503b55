package httpapi

import (
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/attachment"
	"github.com/pazpaz/backend/internal/models"
)

const maxAttachmentBytes = 25 << 20 // 25MiB, matching the reference module's upload-size ceiling for tenant evidence blobs

// uploadAttachment implements POST /sessions/{id}/attachments: stores
// the multipart file in the blob sink under a freshly-minted object
// key, then persists only the metadata row (spec.md — "attachment
// payloads live in an external object store").
func (h *handlers) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	workspaceID := workspaceIDFrom(r.Context())

	if allowed, err := h.deps.AttachmentLimiter.Allow(r.Context(), "attachment:"+workspaceID.String()); err != nil || !allowed {
		writeError(w, apiError{status: http.StatusTooManyRequests, message: "too many attachment uploads"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes)
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "malformed multipart upload"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "file is required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(header.Filename)
	}

	objectKey := attachment.ObjectKey(workspaceID, sessionID, header.Filename)
	if _, err := h.deps.Attachments.Upload(r.Context(), objectKey, contentType, file); err != nil {
		writeError(w, mapErr(err))
		return
	}

	a, err := h.deps.AttachmentRepo.Create(r.Context(), models.Attachment{
		ID: uuid.New(), WorkspaceID: workspaceID, SessionID: sessionID,
		ObjectKey: objectKey, FileName: header.Filename, ContentType: contentType,
		SizeBytes: header.Size, UploadedByUserID: userIDFrom(r.Context()), CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// listAttachments implements GET /sessions/{id}/attachments.
func (h *handlers) listAttachments(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	attachments, err := h.deps.AttachmentRepo.ListBySession(r.Context(), workspaceIDFrom(r.Context()), sessionID)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": attachments})
}

// downloadAttachment implements GET /sessions/{id}/attachments/{attachmentId}.
func (h *handlers) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	attachmentID, ok := pathUUID(w, r, "attachmentId")
	if !ok {
		return
	}
	workspaceID := workspaceIDFrom(r.Context())
	a, err := h.deps.AttachmentRepo.Get(r.Context(), workspaceID, attachmentID)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	raw, err := h.deps.Attachments.Download(r.Context(), a.ObjectKey)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.FileName+`"`)
	_, _ = w.Write(raw)
}

// deleteAttachment implements DELETE /sessions/{id}/attachments/{attachmentId}:
// removes the blob first, then its metadata row, so a failed blob
// delete never leaves a metadata row pointing at nothing reachable.
func (h *handlers) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	attachmentID, ok := pathUUID(w, r, "attachmentId")
	if !ok {
		return
	}
	workspaceID := workspaceIDFrom(r.Context())
	a, err := h.deps.AttachmentRepo.Get(r.Context(), workspaceID, attachmentID)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	if err := h.deps.Attachments.Delete(r.Context(), a.ObjectKey); err != nil {
		writeError(w, mapErr(err))
		return
	}
	if err := h.deps.AttachmentRepo.Delete(r.Context(), workspaceID, attachmentID); err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

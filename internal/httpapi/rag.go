package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/rag"
)

// ragQuery exposes internal/rag's retrieval-and-synthesis pipeline
// (spec.md §4.5) as a workspace-scoped endpoint. Not part of spec.md
// §6's representative HTTP subset table, but the pipeline has no other
// caller in this module, so it needs a route to ever run outside a
// unit test.
func (h *handlers) ragQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueryText     string     `json:"query_text"`
		ClientID      *uuid.UUID `json:"client_id"`
		MaxResults    int        `json:"max_results"`
		MinSimilarity float64    `json:"min_similarity"`
	}
	if err := decodeJSON(r, &req); err != nil || req.QueryText == "" {
		writeError(w, apiError{status: http.StatusBadRequest, message: "query_text is required"})
		return
	}
	if req.MaxResults == 0 {
		req.MaxResults = 5
	}

	userID := userIDFrom(r.Context())
	resp, err := h.deps.RAG.Query(r.Context(), rag.Request{
		WorkspaceID: workspaceIDFrom(r.Context()), QueryText: req.QueryText,
		UserID: &userID, ClientID: req.ClientID,
		MaxResults: req.MaxResults, MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/pazpaz/backend/internal/apperr"
)

// apiError is the shape every handler's failure path converges to
// before writeError renders it, so mapErr's Kind→status table is the
// single place spec.md §7's mapping lives.
type apiError struct {
	status  int
	message string
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, e apiError) {
	writeJSON(w, e.status, map[string]string{"detail": e.message})
}

// mapErr implements spec.md §7's Kind→HTTP-status table. Any error that
// isn't an *apperr.Error (a bug, not a business-rule failure) maps to
// 500 with no detail leaked to the caller.
func mapErr(err error) apiError {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound, apperr.KindTransactionNotFound:
		status = http.StatusNotFound
	case apperr.KindUnauthenticated, apperr.KindInvalidCredentials:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnprocessableEntity, apperr.KindInvalidAmount, apperr.KindInvalidDimension,
		apperr.KindAlreadyFinalized, apperr.KindAlreadyDraft, apperr.KindVersionConflict:
		status = http.StatusUnprocessableEntity
	case apperr.KindRateLimited:
		status = http.StatusTooManyRequests
	case apperr.KindGone:
		status = http.StatusGone
	case apperr.KindPaymentProviderError, apperr.KindProviderNotConfigured:
		status = http.StatusBadRequest
	case apperr.KindEncryptionFailed, apperr.KindDecryptionFailed, apperr.KindRetrievalFailed, apperr.KindCircuitOpen:
		status = http.StatusInternalServerError
	}

	message := "internal error"
	if kind != "" {
		message = err.Error()
		if e, ok := err.(*apperr.Error); ok {
			message = e.Message
		}
	}
	return apiError{status: status, message: message}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

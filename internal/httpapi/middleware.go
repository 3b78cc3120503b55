package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pazpaz/backend/internal/logging"
)

type contextKey int

const (
	ctxUserID contextKey = iota
	ctxWorkspaceID
)

// loggingMiddleware logs one structured line per request, following
// the event-plus-fields shape internal/logging uses everywhere else
// rather than the stdlib log package directly.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Info("http_request", logging.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// corsMiddleware mirrors the teacher's permissive-by-default,
// credentials-aware CORS handling: browsers send the session and CSRF
// cookies cross-origin during local development, so Access-Control-
// Allow-Credentials must be set alongside an explicit (not wildcard)
// origin echo.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrfPublicPaths never require the double-submit CSRF check because
// they have no session yet (magic-link issuance). The webhook endpoint,
// which spec.md §6 names as having no CSRF at all, is exempted
// separately by isWebhookPath.
var csrfPublicPaths = map[string]bool{
	"/api/v1/auth/magic-link": true,
}

// csrfMiddleware implements spec.md §6's "checked before authentication
// so unauthenticated mutations are rejected 403, not 401" ordering: it
// runs outside authMiddleware and never consults the session token.
// GET/HEAD/OPTIONS and the webhook path (matched by prefix, since the
// provider name is a path variable) are exempt.
func csrfMiddleware(deps Dependencies) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutatingMethod(r.Method) || csrfPublicPaths[r.URL.Path] || isWebhookPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(deps.CSRFCookie)
			header := r.Header.Get("X-CSRF-Token")
			if err != nil || cookie.Value == "" || header == "" ||
				subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
				writeError(w, apiError{status: http.StatusForbidden, message: "missing or invalid CSRF token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func isWebhookPath(path string) bool {
	return len(path) >= len("/api/v1/payments/webhook/") &&
		path[:len("/api/v1/payments/webhook/")] == "/api/v1/payments/webhook/"
}

// authMiddleware resolves the signed session cookie into a
// (user_id, workspace_id) pair and stores both in the request context.
// Every failure collapses to Unauthenticated (spec.md §7).
func authMiddleware(deps Dependencies) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(deps.SessionCookie)
			if err != nil || cookie.Value == "" {
				writeError(w, apiError{status: http.StatusUnauthorized, message: "authentication required"})
				return
			}
			userID, workspaceID, err := deps.Resolver.Resolve(r.Context(), cookie.Value)
			if err != nil {
				writeError(w, mapErr(err))
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			ctx = context.WithValue(ctx, ctxWorkspaceID, workspaceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

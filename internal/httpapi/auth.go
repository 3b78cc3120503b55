package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/pazpaz/backend/internal/audit"
	"github.com/pazpaz/backend/internal/logging"
)

// requestMagicLink implements POST /auth/magic-link: rate-limited
// 3/hour/IP, fail-closed, and never reveals whether the email belongs
// to an account (spec.md §4.8/§6) — the response is identical either
// way, and delivery (the actual email send) is an external
// collaborator this module hands the token to, not something it owns.
func (h *handlers) requestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		writeError(w, apiError{status: http.StatusBadRequest, message: "email is required"})
		return
	}

	ip := audit.ExtractClientInfo(r)
	if allowed, err := h.deps.MagicLinkLimiter.Allow(r.Context(), "magiclink:"+ip); err != nil || !allowed {
		// Per spec.md §4.8, rate-limit denial is indistinguishable from
		// a normal issuance response — it never tells the caller which
		// branch fired.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if _, err := h.deps.MagicLinks.Issue(r.Context(), req.Email); err != nil {
		logging.Warn("magic_link_issue_failed", logging.Fields{"error": err})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	// The issued token is never part of this response — delivery (email)
	// is a separate collaborator this handler doesn't own yet, and the
	// HTTP contract here stays the same once one exists.
	logging.Info("magic_link_issued", logging.Fields{"email": req.Email})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifyMagicLink implements the magic-link verification step implied
// by spec.md §6's auth flow: redeem the token, mint a signed session
// cookie, and set the paired CSRF cookie the double-submit check reads
// back on every subsequent mutating request.
func (h *handlers) verifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, apiError{status: http.StatusBadRequest, message: "token is required"})
		return
	}

	sessionToken, err := h.deps.MagicLinks.Verify(r.Context(), req.Token)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}

	csrfToken, err := randomHex(32)
	if err != nil {
		writeError(w, apiError{status: http.StatusInternalServerError, message: "internal error"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name: h.deps.SessionCookie, Value: sessionToken, Path: "/",
		HttpOnly: true, Secure: h.deps.CookieSecure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: h.deps.CSRFCookie, Value: csrfToken, Path: "/",
		HttpOnly: false, Secure: h.deps.CookieSecure, SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

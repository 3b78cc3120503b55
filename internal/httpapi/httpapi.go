// Package httpapi wires spec.md §6's HTTP surface onto a gorilla/mux
// router, following the teacher repo's router-plus-middleware-chain
// shape (versioned subrouter, router.Use(...) global middleware,
// per-handler JSON in/out) without any of its tenant-plugin registry
// machinery — PazPaz has one tenant model (workspace), not a
// marketplace of them.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pazpaz/backend/internal/appointment"
	"github.com/pazpaz/backend/internal/attachment"
	"github.com/pazpaz/backend/internal/audit"
	"github.com/pazpaz/backend/internal/db"
	"github.com/pazpaz/backend/internal/identity"
	"github.com/pazpaz/backend/internal/metrics"
	"github.com/pazpaz/backend/internal/paymentservice"
	"github.com/pazpaz/backend/internal/rag"
	"github.com/pazpaz/backend/internal/ratelimit"
	"github.com/pazpaz/backend/internal/session"
)

// Dependencies collects every collaborator a handler needs. Built once
// at startup in cmd/api and never mutated afterward.
type Dependencies struct {
	Resolver          *identity.Resolver
	MagicLinks        *identity.MagicLinkIssuer
	Signer            *identity.SessionSigner
	Appointments      *appointment.Service
	AppointmentRepo   *db.AppointmentRepo
	Sessions          *session.Engine
	SessionRepo       *db.SessionRepo
	Payments          *paymentservice.Service
	PaymentTxRepo     *db.PaymentTransactionRepo
	RAG               *rag.Agent
	Attachments       *attachment.Store
	AttachmentRepo    *db.AttachmentRepo
	MagicLinkLimiter  *ratelimit.Limiter
	DraftLimiter      *ratelimit.Limiter
	AttachmentLimiter *ratelimit.Limiter
	Metrics           *metrics.Metrics
	Audit             *audit.Emitter
	SessionCookie     string
	CSRFCookie        string
	CookieSecure      bool
}

const (
	defaultSessionCookie = "pazpaz_session"
	defaultCSRFCookie    = "pazpaz_csrf"
)

// NewRouter builds the full PazPaz API router: a versioned /api/v1
// subrouter carrying every route from spec.md §6's table, wrapped in
// the teacher's logging-then-CORS middleware chain.
func NewRouter(deps Dependencies) *mux.Router {
	if deps.SessionCookie == "" {
		deps.SessionCookie = defaultSessionCookie
	}
	if deps.CSRFCookie == "" {
		deps.CSRFCookie = defaultCSRFCookie
	}

	root := mux.NewRouter()
	root.Use(loggingMiddleware)
	root.Use(corsMiddleware)

	root.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)

	api := root.PathPrefix("/api/v1").Subrouter()
	api.Use(csrfMiddleware(deps))

	h := &handlers{deps: deps}

	api.HandleFunc("/auth/magic-link", h.requestMagicLink).Methods(http.MethodPost)
	api.HandleFunc("/auth/magic-link/verify", h.verifyMagicLink).Methods(http.MethodPost)
	api.HandleFunc("/payments/webhook/{provider}", h.paymentWebhook).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(authMiddleware(deps))

	authed.HandleFunc("/appointments", h.createAppointment).Methods(http.MethodPost)
	authed.HandleFunc("/appointments/conflicts", h.appointmentConflicts).Methods(http.MethodGet)

	authed.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	authed.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	authed.HandleFunc("/sessions/{id}/draft", h.saveDraft).Methods(http.MethodPatch)
	authed.HandleFunc("/sessions/{id}/finalize", h.finalizeSession).Methods(http.MethodPost)
	authed.HandleFunc("/sessions/{id}/unfinalize", h.unfinalizeSession).Methods(http.MethodPost)
	authed.HandleFunc("/sessions/{id}", h.amendSession).Methods(http.MethodPut)
	authed.HandleFunc("/sessions/{id}", h.deleteSession).Methods(http.MethodDelete)
	authed.HandleFunc("/sessions/{id}/restore", h.restoreSession).Methods(http.MethodPost)
	authed.HandleFunc("/sessions/{id}/permanent", h.permanentlyDeleteSession).Methods(http.MethodDelete)

	authed.HandleFunc("/payments/create-request", h.createPaymentRequest).Methods(http.MethodPost)

	authed.HandleFunc("/rag/query", h.ragQuery).Methods(http.MethodPost)

	authed.HandleFunc("/sessions/{id}/attachments", h.uploadAttachment).Methods(http.MethodPost)
	authed.HandleFunc("/sessions/{id}/attachments", h.listAttachments).Methods(http.MethodGet)
	authed.HandleFunc("/sessions/{id}/attachments/{attachmentId}", h.downloadAttachment).Methods(http.MethodGet)
	authed.HandleFunc("/sessions/{id}/attachments/{attachmentId}", h.deleteAttachment).Methods(http.MethodDelete)

	return root
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type handlers struct {
	deps Dependencies
}

// Package audit is the append-only audit-event emitter (spec.md §3,
// §4.1). It follows the store-interface-plus-extractor shape of the
// teacher's SessionAuditor in internal/security/session_audit.go, minus
// the geo-IP enrichment, which has no PazPaz analog and is out of the
// spec's scope.
package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/logging"
	"github.com/pazpaz/backend/internal/models"
)

// Store persists audit events. Implemented by internal/db's audit
// repository; kept as an interface so unit tests can supply a fake,
// the same way the teacher's AuditStore interface decouples
// SessionAuditor from a concrete database.
type Store interface {
	InsertAuditEvent(ctx context.Context, event models.AuditEvent) error
}

// Emitter writes audit events best-effort: a failure logs and never
// rolls back the primary operation that triggered it (spec.md §4.1 —
// audit writes are not transactionally coupled to business writes).
type Emitter struct {
	store Store
}

func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store}
}

// Emit records one audit event. Errors are logged, never returned,
// because the caller's primary business action must not be rolled
// back by an audit-write failure.
func (e *Emitter) Emit(ctx context.Context, event models.AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := e.store.InsertAuditEvent(ctx, event); err != nil {
		logging.Error("audit_write_failed", logging.Fields{
			"workspace_id":  event.WorkspaceID,
			"action":        event.Action,
			"resource_type": event.ResourceType,
			"error":         err,
		})
	}
}

// ExtractClientInfo resolves the caller's IP address from a request,
// preferring X-Forwarded-For, then X-Real-IP, then RemoteAddr with the
// port stripped.
func ExtractClientInfo(r *http.Request) (ip string) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	ip = r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}

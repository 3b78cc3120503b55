// Package paymentservice is the provider-agnostic payment orchestration
// core (spec.md §4.6): payment-request issuance, VAT split, webhook
// settlement with idempotent replay handling, and appointment/
// transaction status propagation.
package paymentservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/audit"
	"github.com/pazpaz/backend/internal/db"
	"github.com/pazpaz/backend/internal/fastkv"
	"github.com/pazpaz/backend/internal/logging"
	"github.com/pazpaz/backend/internal/metrics"
	"github.com/pazpaz/backend/internal/models"
	"github.com/pazpaz/backend/internal/payments"
)

const idempotencyTTL = 24 * time.Hour

// Service orchestrates payment-link issuance and webhook settlement.
// It is intentionally provider-agnostic: the concrete payments.Provider
// is resolved per workspace from Workspace.PaymentProvider.
type Service struct {
	database        *db.DB
	workspaceRepo   *db.WorkspaceRepo
	appointmentRepo *db.AppointmentRepo
	txRepo          *db.PaymentTransactionRepo
	kv              *fastkv.Client
	audit           *audit.Emitter
	metrics         *metrics.Metrics
	resolveProvider func(name string, cfg payments.Config) (payments.Provider, error)
}

func NewService(database *db.DB, workspaceRepo *db.WorkspaceRepo, appointmentRepo *db.AppointmentRepo, txRepo *db.PaymentTransactionRepo, kv *fastkv.Client, auditEmitter *audit.Emitter, m *metrics.Metrics) *Service {
	return &Service{
		database: database, workspaceRepo: workspaceRepo, appointmentRepo: appointmentRepo,
		txRepo: txRepo, kv: kv, audit: auditEmitter, metrics: m,
		resolveProvider: payments.NewProvider,
	}
}

// CreatePaymentRequest issues a payment link for an appointment: splits
// VAT, creates a pending PaymentTransaction, calls the provider, and
// marks the appointment payment_sent (spec.md §4.6 op 2).
func (s *Service) CreatePaymentRequest(ctx context.Context, workspaceID, appointmentID uuid.UUID, customerEmail, customerName string) (models.PaymentTransaction, error) {
	ws, err := s.workspaceRepo.Get(ctx, workspaceID)
	if err != nil {
		return models.PaymentTransaction{}, err
	}
	if !ws.PaymentsEnabled {
		return models.PaymentTransaction{}, apperr.New(apperr.KindProviderNotConfigured, "payments not enabled for this workspace")
	}

	appt, err := s.appointmentRepo.Get(ctx, workspaceID, appointmentID)
	if err != nil {
		return models.PaymentTransaction{}, err
	}

	split, err := CalculateVAT(appt.PaymentPrice, ws.VATRegistered, ws.VATRate)
	if err != nil {
		return models.PaymentTransaction{}, err
	}

	provider, err := s.resolveProvider(ws.PaymentProvider, ws.PaymentProviderConfig)
	if err != nil {
		return models.PaymentTransaction{}, err
	}

	link, err := provider.CreatePaymentLink(ctx, payments.LinkRequest{
		AmountTotal:   split.Total,
		Currency:      ws.Currency,
		Description:   fmt.Sprintf("appointment %s", appointmentID),
		CustomerEmail: customerEmail,
		CustomerName:  customerName,
	})
	if err != nil {
		return models.PaymentTransaction{}, err
	}

	txn, err := s.txRepo.Create(ctx, models.PaymentTransaction{
		WorkspaceID:           workspaceID,
		AppointmentID:         &appointmentID,
		BaseAmount:            split.Base,
		VATAmount:             split.VAT,
		TotalAmount:           split.Total,
		Currency:              ws.Currency,
		Status:                models.TxPending,
		Provider:              provider.Name(),
		ProviderTransactionID: link.ProviderTransactionID,
		ProviderPaymentLink:   link.PaymentLinkURL,
	})
	if err != nil {
		return txn, err
	}

	if err := s.appointmentRepo.MarkPaymentSent(ctx, workspaceID, appointmentID); err != nil {
		logging.Warn("payment_request_appointment_status_update_failed", logging.Fields{"error": err})
	}

	s.audit.Emit(ctx, models.AuditEvent{
		WorkspaceID: workspaceID, Action: models.AuditCreate,
		ResourceType: "payment_transaction", ResourceID: &txn.ID,
		Metadata: map[string]any{"provider": provider.Name(), "total_amount": split.Total},
	})

	return txn, nil
}

// HandleWebhook verifies, idempotency-checks, and settles an inbound
// payment webhook. It returns a non-nil error for a malformed payload,
// an unresolvable transaction id, a failed signature check, or a parse
// or settlement failure; a replayed webhook returns nil. The HTTP layer
// logs a returned error and still answers 200 (spec.md §4.6 op 4).
func (s *Service) HandleWebhook(ctx context.Context, providerName string, rawBody []byte, headers map[string]string, workspaceLookup func(providerTransactionID string) (uuid.UUID, payments.Config, error)) error {
	var payload map[string]any
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return apperr.Wrap(apperr.KindWebhookVerification, "malformed webhook payload", err)
	}

	// The provider-transaction id must be readable before we know which
	// workspace's config to verify against, mirroring the original's
	// verify-then-parse order applied per-provider via a shared id field.
	probeID, _ := payload["page_request_uid"].(string)
	if probeID == "" {
		return apperr.New(apperr.KindWebhookVerification, "webhook missing provider transaction id")
	}

	workspaceID, cfg, err := workspaceLookup(probeID)
	if err != nil {
		return err
	}

	provider, err := s.resolveProvider(providerName, cfg)
	if err != nil {
		return err
	}

	valid, err := provider.VerifyWebhook(ctx, rawBody, headers)
	if err != nil {
		return err
	}
	if !valid {
		return apperr.New(apperr.KindWebhookVerification, "webhook signature verification failed")
	}

	idemKey := "webhook:" + probeID
	reserved, err := s.kv.SetNX(ctx, idemKey, []byte("1"), idempotencyTTL)
	if err != nil {
		logging.Warn("webhook_idempotency_check_failed", logging.Fields{"error": err})
	} else if !reserved {
		s.metrics.WebhookIdempotent.WithLabelValues(providerName).Inc()
		return nil
	}

	parsed, err := provider.ParseWebhookPayment(ctx, payload)
	if err != nil {
		s.metrics.WebhookProcessed.WithLabelValues(providerName, "parse_error").Inc()
		return err
	}

	if err := s.settle(ctx, workspaceID, providerName, parsed); err != nil {
		s.metrics.WebhookProcessed.WithLabelValues(providerName, "error").Inc()
		return err
	}

	s.metrics.WebhookProcessed.WithLabelValues(providerName, "ok").Inc()
	return nil
}

// settle applies a parsed webhook payment to the PaymentTransaction and
// its appointment inside one transaction, honoring the monotonic
// terminal-state rule: once a transaction is terminal, further webhooks
// are a no-op rather than an error (spec.md §5 ordering contract 3).
func (s *Service) settle(ctx context.Context, workspaceID uuid.UUID, providerName string, parsed payments.WebhookPayment) error {
	return db.WithTx(ctx, s.database, func(tx *sql.Tx) error {
		txn, err := s.txRepo.GetByProviderID(ctx, tx, providerName, parsed.ProviderTransactionID)
		if err != nil {
			return err
		}
		if txn.Status.IsTerminal() {
			return nil
		}

		newStatus := models.TransactionStatus(parsed.Status)
		var receiptNumber *int64
		if newStatus == models.TxCompleted {
			next, err := s.workspaceRepo.NextReceiptNumber(ctx, tx, workspaceID)
			if err != nil {
				return err
			}
			receiptNumber = &next
		}

		if err := s.txRepo.TransitionStatus(ctx, tx, txn.ID, newStatus, receiptNumber, parsed.FailureReason); err != nil {
			return err
		}
		s.metrics.PaymentTransitions.WithLabelValues(string(newStatus)).Inc()

		if txn.AppointmentID != nil {
			var apptPaymentStatus models.PaymentStatus
			var paidAt *time.Time
			switch newStatus {
			case models.TxCompleted:
				apptPaymentStatus = models.PaymentPaid
				now := time.Now().UTC()
				paidAt = &now
			case models.TxFailed:
				apptPaymentStatus = models.PaymentFailed
			case models.TxRefunded:
				apptPaymentStatus = models.PaymentRefunded
			default:
				apptPaymentStatus = models.PaymentPending
			}
			if err := s.appointmentRepo.UpdatePayment(ctx, tx, workspaceID, *txn.AppointmentID, apptPaymentStatus, paidAt); err != nil {
				return err
			}
		}

		s.audit.Emit(ctx, models.AuditEvent{
			WorkspaceID: workspaceID, Action: models.AuditUpdate,
			ResourceType: "payment_transaction", ResourceID: &txn.ID,
			Metadata: map[string]any{"new_status": string(newStatus)},
		})
		return nil
	})
}

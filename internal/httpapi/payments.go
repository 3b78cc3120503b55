package httpapi

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pazpaz/backend/internal/logging"
	"github.com/pazpaz/backend/internal/payments"
)

// createPaymentRequest implements POST /payments/create-request
// (spec.md §4.6/§6).
func (h *handlers) createPaymentRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppointmentID uuid.UUID `json:"appointment_id"`
		CustomerEmail string    `json:"customer_email"`
		CustomerName  string    `json:"customer_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apiError{status: http.StatusBadRequest, message: "malformed request body"})
		return
	}
	txn, err := h.deps.Payments.CreatePaymentRequest(r.Context(), workspaceIDFrom(r.Context()),
		req.AppointmentID, req.CustomerEmail, req.CustomerName)
	if err != nil {
		writeError(w, mapErr(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id": txn.ID, "status": txn.Status, "payment_link": txn.ProviderPaymentLink,
		"base_amount": txn.BaseAmount, "vat_amount": txn.VATAmount, "total_amount": txn.TotalAmount,
	})
}

// paymentWebhook implements POST /payments/webhook/{provider}. Per
// spec.md §4.7/§6 it is never authenticated, carries no CSRF check,
// and ALWAYS answers 200 — failures are logged, not surfaced, so a
// hostile or buggy sender can't learn anything from the response.
func (h *handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logging.Warn("webhook_body_read_failed", logging.Fields{"provider": provider, "error": err})
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	err = h.deps.Payments.HandleWebhook(r.Context(), provider, body, headers,
		func(providerTransactionID string) (uuid.UUID, payments.Config, error) {
			workspaceID, cfg, err := h.deps.PaymentTxRepo.WorkspaceAndConfigByProviderTransactionID(r.Context(), provider, providerTransactionID)
			return workspaceID, payments.Config(cfg), err
		})
	if err != nil {
		logging.Warn("webhook_processing_failed", logging.Fields{"provider": provider, "error": err})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package payments defines the payment-provider abstraction (spec.md
// §4.6) and the PayPlus implementation. A provider creates hosted
// payment links and turns inbound webhook payloads into a normalized
// settlement result; internal/paymentservice owns everything
// provider-agnostic (VAT split, idempotency, the transaction ledger).
package payments

import (
	"context"
	"time"

	"github.com/pazpaz/backend/internal/apperr"
)

// LinkRequest is what a caller asks a provider to turn into a hosted
// payment page.
type LinkRequest struct {
	AmountTotal   float64
	Currency      string
	Description   string
	CustomerEmail string
	CustomerName  string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]any
}

type LinkResponse struct {
	PaymentLinkURL        string
	ProviderTransactionID string
	ExpiresAt             *time.Time
}

// WebhookPayment is the normalized result of an inbound webhook,
// independent of which provider sent it.
type WebhookPayment struct {
	ProviderTransactionID string
	Status                string // "completed" | "failed" | "refunded" | "pending"
	Amount                float64
	Currency              string
	CompletedAt           *time.Time
	FailureReason         string
	Metadata              map[string]any
}

// Provider is implemented once per payment gateway. verify_webhook
// takes the raw body (for signature verification) and header map
// rather than the parsed payload, matching the original's bytes-first
// verification order: verify before parse.
type Provider interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (LinkResponse, error)
	VerifyWebhook(ctx context.Context, payload []byte, headers map[string]string) (bool, error)
	ParseWebhookPayment(ctx context.Context, payload map[string]any) (WebhookPayment, error)
	Name() string
}

// Config is the per-workspace provider configuration pulled out of
// Workspace.PaymentProviderConfig as stored (plain JSON, not encrypted).
type Config map[string]string

// NewProvider resolves a provider implementation by name. Kept as a
// plain switch rather than an init-time global registry: a
// single-process Go binary doesn't need the plugin-registration
// indirection the original's register_provider() import-time side
// effect provides in Python.
func NewProvider(name string, cfg Config) (Provider, error) {
	switch name {
	case "payplus":
		return NewPayPlusProvider(cfg)
	default:
		return nil, apperr.New(apperr.KindProviderNotConfigured, "unknown payment provider: "+name)
	}
}

package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *PayPlusProvider {
	t.Helper()
	p, err := NewPayPlusProvider(Config{
		"api_key":          "pk_test",
		"payment_page_uid": "page_test",
		"webhook_secret":   "whsec_test",
	})
	require.NoError(t, err)
	return p
}

func TestNewPayPlusProviderRequiresAllKeys(t *testing.T) {
	_, err := NewPayPlusProvider(Config{"api_key": "x"})
	require.Error(t, err)
}

func TestVerifyWebhookValidSignature(t *testing.T) {
	p := newTestProvider(t)
	body := []byte(`{"page_request_uid":"pp_abc123","status":"completed","amount":150.0}`)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	ok, err := p.VerifyWebhook(context.Background(), body, map[string]string{"X-PayPlus-Signature": sig})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyWebhookInvalidSignature(t *testing.T) {
	p := newTestProvider(t)
	body := []byte(`{"page_request_uid":"pp_abc123"}`)
	ok, err := p.VerifyWebhook(context.Background(), body, map[string]string{"X-PayPlus-Signature": "sha256=deadbeef"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyWebhookMissingHeader(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.VerifyWebhook(context.Background(), []byte("{}"), map[string]string{})
	require.Error(t, err)
}

func TestParseWebhookPaymentCompleted(t *testing.T) {
	p := newTestProvider(t)
	payload := map[string]any{
		"page_request_uid": "pp_abc123",
		"status":           "completed",
		"amount":           150.0,
		"currency_code":    "ILS",
	}
	out, err := p.ParseWebhookPayment(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "pp_abc123", out.ProviderTransactionID)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, 150.0, out.Amount)
	assert.Equal(t, "ILS", out.Currency)
}

func TestParseWebhookPaymentUnknownStatusDefaultsToFailed(t *testing.T) {
	p := newTestProvider(t)
	payload := map[string]any{
		"page_request_uid": "pp_abc123",
		"status":           "something_new",
		"amount":           10.0,
	}
	out, err := p.ParseWebhookPayment(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "failed", out.Status)
}

func TestParseWebhookPaymentMissingTransactionID(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.ParseWebhookPayment(context.Background(), map[string]any{"status": "completed", "amount": 1.0})
	require.Error(t, err)
}

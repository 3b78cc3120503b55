package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pazpaz/backend/internal/apperr"
	"github.com/pazpaz/backend/internal/logging"
)

// PayPlus field names below are carried over from the original
// implementation's own "ASSUMED, verify in sandbox" notes — they were
// never confirmed against a live PayPlus account and are kept as-is
// rather than presented as verified.
const (
	payPlusBaseURL       = "https://restapi.payplus.co.il/api/v1.0"
	payPlusGenerateLink  = "/PaymentPages/generateLink"
	payPlusSignatureHdr  = "X-PayPlus-Signature"
	payPlusSigPrefix     = "sha256="
)

var payPlusStatusMap = map[string]string{
	"completed": "completed",
	"failed":    "failed",
	"refunded":  "refunded",
	"pending":   "pending",
}

type PayPlusProvider struct {
	apiKey         string
	paymentPageUID string
	webhookSecret  string
	baseURL        string
	client         *http.Client
}

func NewPayPlusProvider(cfg Config) (*PayPlusProvider, error) {
	apiKey := cfg["api_key"]
	pageUID := cfg["payment_page_uid"]
	secret := cfg["webhook_secret"]
	if apiKey == "" {
		return nil, apperr.New(apperr.KindInvalidCredentials, "payplus provider requires api_key")
	}
	if pageUID == "" {
		return nil, apperr.New(apperr.KindInvalidCredentials, "payplus provider requires payment_page_uid")
	}
	if secret == "" {
		return nil, apperr.New(apperr.KindInvalidCredentials, "payplus provider requires webhook_secret")
	}
	baseURL := cfg["base_url"]
	if baseURL == "" {
		baseURL = payPlusBaseURL
	}
	return &PayPlusProvider{
		apiKey:         apiKey,
		paymentPageUID: pageUID,
		webhookSecret:  secret,
		baseURL:        baseURL,
		client:         &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *PayPlusProvider) Name() string { return "payplus" }

func (p *PayPlusProvider) CreatePaymentLink(ctx context.Context, req LinkRequest) (LinkResponse, error) {
	payload := map[string]any{
		"payment_page_uid": p.paymentPageUID,
		"amount":           req.AmountTotal,
		"currency_code":    req.Currency,
		"description":      req.Description,
		"email_address":    req.CustomerEmail,
	}
	if req.CustomerName != "" {
		payload["customer_name"] = req.CustomerName
	}
	if req.SuccessURL != "" {
		payload["success_url"] = req.SuccessURL
	}
	if req.CancelURL != "" {
		payload["failure_url"] = req.CancelURL
	}
	if len(req.Metadata) > 0 {
		payload["custom_fields"] = req.Metadata
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return LinkResponse{}, apperr.Wrap(apperr.KindPaymentProviderError, "failed to encode payplus request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+payPlusGenerateLink, bytes.NewReader(body))
	if err != nil {
		return LinkResponse{}, apperr.Wrap(apperr.KindPaymentProviderError, "failed to build payplus request", err)
	}
	httpReq.Header.Set("api-key", p.apiKey)
	httpReq.Header.Set("secret-key", p.webhookSecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return LinkResponse{}, apperr.Wrap(apperr.KindPaymentProviderError, "payplus api request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		logging.Error("payplus_authentication_failed", logging.Fields{"status_code": resp.StatusCode})
		return LinkResponse{}, apperr.New(apperr.KindInvalidCredentials, "payplus api authentication failed")
	}
	if resp.StatusCode >= 400 {
		logging.Error("payplus_api_error", logging.Fields{"status_code": resp.StatusCode, "body": truncate(string(respBody), 500)})
		return LinkResponse{}, apperr.New(apperr.KindPaymentProviderError, fmt.Sprintf("payplus api error (status %d)", resp.StatusCode))
	}

	var parsed struct {
		Success bool `json:"success"`
		Error   struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
		Data struct {
			PaymentPageLink string `json:"payment_page_link"`
			PageRequestUID  string `json:"page_request_uid"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return LinkResponse{}, apperr.Wrap(apperr.KindPaymentProviderError, "failed to decode payplus response", err)
	}
	if !parsed.Success && parsed.Error.Message != "" {
		return LinkResponse{}, apperr.New(apperr.KindPaymentProviderError, "payplus api returned error: "+parsed.Error.Message)
	}
	if parsed.Data.PaymentPageLink == "" {
		return LinkResponse{}, apperr.New(apperr.KindPaymentProviderError, "payplus response missing payment link url")
	}
	if parsed.Data.PageRequestUID == "" {
		return LinkResponse{}, apperr.New(apperr.KindPaymentProviderError, "payplus response missing transaction id")
	}

	return LinkResponse{
		PaymentLinkURL:        parsed.Data.PaymentPageLink,
		ProviderTransactionID: parsed.Data.PageRequestUID,
	}, nil
}

// VerifyWebhook checks the HMAC-SHA256 signature PayPlus is assumed to
// send in X-PayPlus-Signature as "sha256=<hex>", constant-time compared
// against the HMAC of the raw body.
func (p *PayPlusProvider) VerifyWebhook(ctx context.Context, payload []byte, headers map[string]string) (bool, error) {
	sigHeader := headerLookup(headers, payPlusSignatureHdr)
	if sigHeader == "" {
		return false, apperr.New(apperr.KindWebhookVerification, "payplus webhook signature header missing")
	}
	if !strings.HasPrefix(sigHeader, payPlusSigPrefix) {
		return false, apperr.New(apperr.KindWebhookVerification, "payplus webhook signature format invalid")
	}
	provided := strings.TrimPrefix(sigHeader, payPlusSigPrefix)

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := hmac.Equal([]byte(provided), []byte(expected))
	if !valid {
		logging.Warn("payplus_webhook_signature_invalid", logging.Fields{})
	}
	return valid, nil
}

func (p *PayPlusProvider) ParseWebhookPayment(ctx context.Context, payload map[string]any) (WebhookPayment, error) {
	var out WebhookPayment

	txID, _ := payload["page_request_uid"].(string)
	if txID == "" {
		return out, apperr.New(apperr.KindPaymentProviderError, "payplus webhook missing page_request_uid")
	}
	out.ProviderTransactionID = txID

	rawStatus, _ := payload["status"].(string)
	if rawStatus == "" {
		return out, apperr.New(apperr.KindPaymentProviderError, "payplus webhook missing status")
	}
	status, ok := payPlusStatusMap[strings.ToLower(rawStatus)]
	if !ok {
		logging.Warn("payplus_unknown_status", logging.Fields{"status": rawStatus})
		status = "failed"
	}
	out.Status = status

	amount, ok := numberField(payload["amount"])
	if !ok {
		return out, apperr.New(apperr.KindPaymentProviderError, "payplus webhook missing amount")
	}
	out.Amount = amount

	out.Currency = "ILS"
	if c, ok := payload["currency_code"].(string); ok && c != "" {
		out.Currency = c
	}

	if s, ok := payload["completed_at"].(string); ok && s != "" {
		normalized := strings.Replace(s, "Z", "+00:00", 1)
		if t, err := time.Parse(time.RFC3339, normalized); err == nil {
			out.CompletedAt = &t
		} else {
			logging.Warn("payplus_invalid_timestamp", logging.Fields{"completed_at": s})
		}
	}

	if reason, ok := payload["error_message"].(string); ok {
		out.FailureReason = reason
	}
	if meta, ok := payload["custom_fields"].(map[string]any); ok {
		out.Metadata = meta
	}

	return out, nil
}

func headerLookup(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func numberField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

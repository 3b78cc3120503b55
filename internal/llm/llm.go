// Package llm is a plain net/http client for the chat-completion
// provider spec.md §4.5 step 10 and §6 name as an external HTTP
// contract (Cohere's Chat v2 API, grounded on the Cohere usage in
// original_source/.../ai/agent.py). It owns the retry-with-backoff
// policy around a single chat call; the named circuit breaker around
// the whole call (including retries) is applied by internal/rag, the
// same layering the reference repo uses for escrow's retry-then-breaker
// stack around its settlement calls.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/pazpaz/backend/internal/apperr"
)

const defaultBaseURL = "https://api.cohere.com/v2/chat"

// RetryPolicy mirrors spec.md §4.5 step 10: up to 2 retries on
// rate-limit, timeout, and 5xx errors, exponential backoff with
// jitter (base 1s, cap 16s, factor 2).
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
	Factor     float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Base: time.Second, Cap: 16 * time.Second, Factor: 2}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.Base) * pow(p.Factor, attempt)
	if d > float64(p.Cap) {
		d = float64(p.Cap)
	}
	jitter := d * (0.5 + rand.Float64()*0.5)
	return time.Duration(jitter)
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
}

func New(apiKey, model string) *Client {
	if model == "" {
		model = "command-r"
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryPolicy(),
	}
}

// Usage reports provider-side token accounting, when the provider
// returns it (spec.md §6 LLM provider contract).
type Usage struct {
	InputTokens  int
	OutputTokens int
}

type Response struct {
	Text  string
	Usage Usage
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponseBody struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Usage struct {
		BilledUnits struct {
			InputTokens  float64 `json:"input_tokens"`
			OutputTokens float64 `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"usage"`
}

// Chat runs one system+user chat completion, retrying transient
// failures per RetryPolicy. The caller (internal/rag) wraps the whole
// call, retries included, in the named circuit breaker.
func (c *Client) Chat(ctx context.Context, system, user string, temperature float64, maxTokens int) (Response, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, apperr.Wrap(apperr.KindRetrievalFailed, "llm call cancelled", ctx.Err())
			case <-time.After(c.retry.backoff(attempt - 1)):
			}
		}

		resp, retryable, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

// attempt makes one HTTP call. The bool return reports whether the
// failure is one the retry policy should act on (rate-limit, timeout,
// 5xx); permanent failures (4xx other than 429, decode errors) are not
// retried.
func (c *Client) attempt(ctx context.Context, req chatRequest) (Response, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, false, apperr.Wrap(apperr.KindRetrievalFailed, "llm request encode failed", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, false, apperr.Wrap(apperr.KindRetrievalFailed, "llm request build failed", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, true, apperr.Wrap(apperr.KindRetrievalFailed, "llm provider unreachable or timed out", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, true, apperr.Wrap(apperr.KindRetrievalFailed, "llm response read failed", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Response{}, true, apperr.New(apperr.KindRetrievalFailed, "llm provider rate limited")
	case resp.StatusCode >= 500:
		return Response{}, true, apperr.New(apperr.KindRetrievalFailed,
			fmt.Sprintf("llm provider returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return Response{}, false, apperr.New(apperr.KindRetrievalFailed,
			fmt.Sprintf("llm provider returned %d: %s", resp.StatusCode, truncate(raw, 200)))
	}

	var parsed chatResponseBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, false, apperr.Wrap(apperr.KindRetrievalFailed, "llm response decode failed", err)
	}

	var text string
	for _, part := range parsed.Message.Content {
		if part.Type == "text" {
			text += part.Text
		}
	}

	return Response{
		Text: text,
		Usage: Usage{
			InputTokens:  int(parsed.Usage.BilledUnits.InputTokens),
			OutputTokens: int(parsed.Usage.BilledUnits.OutputTokens),
		},
	}, false, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

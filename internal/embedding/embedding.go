// Package embedding is a plain net/http client for the embedding
// provider spec.md §6 names as an external HTTP contract rather than an
// SDK the reference pack ships a client for (Cohere's Embed v2 API,
// grounded on the Cohere usage in original_source/.../ai/agent.py).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pazpaz/backend/internal/apperr"
)

const defaultBaseURL = "https://api.cohere.com/v2/embed"

// InputType selects Cohere's asymmetric embedding mode: queries and
// documents are embedded differently so similarity search is accurate
// (spec.md §4.5 step 5, §6).
type InputType string

const (
	InputSearchQuery    InputType = "search_query"
	InputSearchDocument InputType = "search_document"
)

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func New(apiKey, model string) *Client {
	if model == "" {
		model = "embed-multilingual-v3.0"
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type embedRequest struct {
	Model          string    `json:"model"`
	Texts          []string  `json:"texts"`
	InputType      InputType `json:"input_type"`
	EmbeddingTypes []string  `json:"embedding_types"`
}

type embedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	Message string `json:"message"`
}

// Embed returns the 1536-dimension embedding vector for a single piece
// of text. Failures are always wrapped as RetrievalFailed so the
// caller (internal/rag) never has to branch on transport-vs-API errors
// (spec.md §6 embedding provider contract).
func (c *Client) Embed(ctx context.Context, text string, inputType InputType) ([]float32, error) {
	vectors, err := c.embedBatch(ctx, []string{text}, inputType)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperr.New(apperr.KindRetrievalFailed, "embedding provider returned no vectors")
	}
	return vectors[0], nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model:          c.model,
		Texts:          texts,
		InputType:      inputType,
		EmbeddingTypes: []string{"float"},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "embedding request encode failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "embedding request build failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "embedding provider unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "embedding response read failed", err)
	}

	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.KindRetrievalFailed,
			fmt.Sprintf("embedding provider returned %d: %s", resp.StatusCode, truncate(raw, 200)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalFailed, "embedding response decode failed", err)
	}
	return parsed.Embeddings.Float, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

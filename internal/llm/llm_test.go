package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryClient(baseURL string) *Client {
	c := New("test-key", "")
	c.baseURL = baseURL
	c.retry = RetryPolicy{MaxRetries: 2, Base: time.Millisecond, Cap: 4 * time.Millisecond, Factor: 2}
	return c
}

func TestChatSucceedsFirstTry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":[{"type":"text","text":"hello"}]},"usage":{"billed_units":{"input_tokens":5,"output_tokens":3}}}`))
	}))
	defer server.Close()

	resp, err := fastRetryClient(server.URL).Chat(context.Background(), "sys", "usr", 0.3, 500)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 5, resp.Usage.InputTokens)
}

func TestChatRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"message":{"content":[{"type":"text","text":"recovered"}]}}`))
	}))
	defer server.Close()

	resp, err := fastRetryClient(server.URL).Chat(context.Background(), "sys", "usr", 0.3, 500)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestChatDoesNotRetryPermanentFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := fastRetryClient(server.URL).Chat(context.Background(), "sys", "usr", 0.3, 500)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatExhaustsRetriesOnSustained5xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := fastRetryClient(server.URL).Chat(context.Background(), "sys", "usr", 0.3, 500)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

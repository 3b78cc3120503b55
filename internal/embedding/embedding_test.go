package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pazpaz/backend/internal/apperr"
)

func TestEmbedReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"embeddings":{"float":[[0.1,0.2,0.3]]}}`))
	}))
	defer server.Close()

	client := New("test-key", "")
	client.baseURL = server.URL

	vec, err := client.Embed(context.Background(), "lower back pain", InputSearchQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedWrapsProviderErrorAsRetrievalFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"internal error"}`))
	}))
	defer server.Close()

	client := New("test-key", "")
	client.baseURL = server.URL

	_, err := client.Embed(context.Background(), "query", InputSearchQuery)
	require.Error(t, err)
	assert.Equal(t, apperr.KindRetrievalFailed, apperr.KindOf(err))
}

package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/internal/search"
)

func fastRetry() search.RetryPolicy {
	return search.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Retryable: search.IsTransient}
}

func TestHTTPClient_SearchParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "apple earnings", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"results":[
			{"title":"Apple beats estimates","url":"https://news.example.com/a","snippet":"Revenue of $94.9 billion","published_at":"2026-02-01T12:00:00Z"},
			{"title":"Undated analysis","url":"https://news.example.com/b","snippet":"Margins under pressure"}
		]}`))
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "test-key", fastRetry())
	results, err := c.Search(context.Background(), "apple earnings", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Apple beats estimates", results[0].Title)
	assert.Equal(t, "Revenue of $94.9 billion", results[0].Snippet)
	assert.Equal(t, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), results[0].PublishedAt)
	assert.True(t, results[1].PublishedAt.IsZero(), "missing published_at stays zero")
}

func TestHTTPClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"t","url":"u","snippet":"s"}]}`))
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "", fastRetry())
	results, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPClient_NonTransientStatusFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL, "", fastRetry())
	_, err := c.Search(context.Background(), "q", 1)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNoopClient(t *testing.T) {
	results, err := NoopClient{}.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

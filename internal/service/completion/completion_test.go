package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_ReturnsFirstChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, RoleSystem, req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Revenue grew 12% year over year."}}]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", server.URL, "gpt-4o-mini")
	got, err := p.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a stock research assistant."},
		{Role: RoleUser, Content: "How did revenue develop?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 12% year over year.", got)
}

func TestOpenAIProvider_SurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", server.URL, "gpt-4o-mini")
	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_error")
}

func TestOpenAIProvider_RejectsEmptyMessages(t *testing.T) {
	p := NewOpenAIProvider("k", "http://localhost:1", "gpt-4o-mini")
	_, err := p.Complete(context.Background(), nil)
	assert.Error(t, err)
}

func TestOpenAIProvider_NoChoicesIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("k", server.URL, "gpt-4o-mini")
	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	assert.Error(t, err)
}

func TestStaticProvider(t *testing.T) {
	fixed := StaticProvider{Reply: "canned answer"}
	got, err := fixed.Complete(context.Background(), []Message{{Role: RoleUser, Content: "ignored"}})
	require.NoError(t, err)
	assert.Equal(t, "canned answer", got)

	echo := StaticProvider{}
	got, err = echo.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "last user turn"},
	})
	require.NoError(t, err)
	assert.Equal(t, "last user turn", got)

	_, err = echo.Complete(context.Background(), []Message{{Role: RoleSystem, Content: "sys"}})
	assert.Error(t, err)
}

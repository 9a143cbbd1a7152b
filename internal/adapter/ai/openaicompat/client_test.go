package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func msgs() domain.ChatRequest {
	return domain.ChatRequest{Messages: []domain.Message{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "hi"},
	}}
}

func TestClient_Completion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "local-model", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/v1", Model: "local-model", HTTPClient: srv.Client()})
	assert.Equal(t, domain.ProviderSpecialized, c.ID())
	s, err := c.Chat(context.Background(), msgs())
	require.NoError(t, err)
	text, err := stream.ReadAll(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	u, ok := s.(stream.UsageReporter).Usage()
	require.True(t, ok)
	assert.Equal(t, 7, u.TotalTokens)
}

func TestClient_APIErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL, Model: "m", HTTPClient: srv.Client()}).Chat(context.Background(), msgs())
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Contains(t, pe.Body, "context length exceeded")
}

func TestClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL, Model: "m", HTTPClient: srv.Client()}).Chat(context.Background(), msgs())
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Options{BaseURL: url, Model: "m"}).Chat(context.Background(), msgs())
	assert.ErrorIs(t, err, domain.ErrTransport)
}

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/ai/stream"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func chatReq(content string) domain.ChatRequest {
	return domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: content}}}
}

func TestClient_StreamsSSE(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hello", ", ", "world"} {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/", ChatPath: "api/chat", APIKey: "k", HTTPClient: srv.Client()})
	assert.Equal(t, domain.ProviderCloud, c.ID())
	s, err := c.Chat(context.Background(), chatReq("hi"))
	require.NoError(t, err)
	text, err := stream.ReadAll(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)
}

func TestClient_PlainJSONAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"plain"}}]}`))
	}))
	defer srv.Close()

	s, err := New(Options{BaseURL: srv.URL, ChatPath: "/api/chat", HTTPClient: srv.Client()}).Chat(context.Background(), chatReq("hi"))
	require.NoError(t, err)
	text, err := stream.ReadAll(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "plain", text)
}

func TestClient_Non2xxIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Options{BaseURL: srv.URL, ChatPath: "/api/chat", HTTPClient: srv.Client()}).Chat(context.Background(), chatReq("hi"))
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
	assert.Contains(t, pe.Body, "upstream overloaded")
}

func TestClient_UnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Options{BaseURL: url, ChatPath: "/api/chat"}).Chat(context.Background(), chatReq("hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestClient_CancelledContextIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{BaseURL: srv.URL, ChatPath: "/api/chat", HTTPClient: srv.Client()}).Chat(ctx, chatReq("hi"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsCallFailure(err))
}

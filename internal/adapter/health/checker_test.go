package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func svcFor(url, path string) domain.AIServiceStatus {
	return domain.NewServiceStatus(domain.ServiceConfig{ID: "svc", Name: "Svc", URL: url, HealthPath: path})
}

func TestCheckService_OnlineWithVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"0.5.7"}`))
	}))
	defer srv.Close()

	st := NewChecker(time.Second, srv.Client()).CheckService(context.Background(), svcFor(srv.URL+"/", "/api/version"))
	assert.Equal(t, domain.ServiceOnline, st.Status)
	assert.Equal(t, "0.5.7", st.Version)
	assert.Empty(t, st.Error)
	assert.GreaterOrEqual(t, st.Latency, time.Duration(0))
	require.NotNil(t, st.LastChecked)
}

func TestCheckService_SniffsUndeclaredJSONCommit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"status":"ok","commit":"abc123"}`))
	}))
	defer srv.Close()

	st := NewChecker(time.Second, srv.Client()).CheckService(context.Background(), svcFor(srv.URL, "health"))
	assert.Equal(t, domain.ServiceOnline, st.Status)
	assert.Equal(t, "abc123", st.Version)
}

func TestCheckService_PlainBodyHasNoVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	}))
	defer srv.Close()

	st := NewChecker(time.Second, srv.Client()).CheckService(context.Background(), svcFor(srv.URL, ""))
	assert.Equal(t, domain.ServiceOnline, st.Status)
	assert.Empty(t, st.Version)
}

func TestCheckService_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	prev := svcFor(srv.URL, "/health")
	prev.Version = "stale"
	st := NewChecker(time.Second, srv.Client()).CheckService(context.Background(), prev)
	assert.Equal(t, domain.ServiceError, st.Status)
	assert.Equal(t, "HTTP 500", st.Error)
	assert.Empty(t, st.Version)
}

func TestCheckService_TimeoutIsOffline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	st := NewChecker(50*time.Millisecond, srv.Client()).CheckService(context.Background(), svcFor(srv.URL, "/health"))
	assert.Equal(t, domain.ServiceOffline, st.Status)
	assert.Equal(t, "timeout", st.Error)
}

func TestCheckService_SlowBodyIsTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"version":`))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	st := NewChecker(50*time.Millisecond, srv.Client()).CheckService(context.Background(), svcFor(srv.URL, "/health"))
	assert.Equal(t, domain.ServiceOffline, st.Status)
	assert.Equal(t, "timeout", st.Error)
	assert.Empty(t, st.Version)
	require.NotNil(t, st.LastChecked)
}

func TestCheckService_StampsLastCheckedOnEveryOutcome(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewChecker(time.Second, srv.Client())
	c.now = func() time.Time { return fixed }

	for _, svc := range []domain.AIServiceStatus{
		svcFor(srv.URL, "/health"),
		svcFor("http://bad host", "/x"),
	} {
		st := c.CheckService(context.Background(), svc)
		require.NotNil(t, st.LastChecked, svc.URL)
		assert.True(t, fixed.Equal(*st.LastChecked), svc.URL)
	}
}

func TestCheckService_ConnectionRefusedIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st := NewChecker(time.Second, nil).CheckService(context.Background(), svcFor(url, "/health"))
	assert.Equal(t, domain.ServiceOffline, st.Status)
	assert.NotEmpty(t, st.Error)
	assert.NotEqual(t, "timeout", st.Error)
}

func TestCheckService_InvalidURL(t *testing.T) {
	st := NewChecker(time.Second, nil).CheckService(context.Background(), svcFor("http://bad host", "/x"))
	assert.NotEqual(t, domain.ServiceOnline, st.Status)
	assert.NotEmpty(t, st.Error)
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://a:1/health", healthURL("http://a:1/", "/health"))
	assert.Equal(t, "http://a:1/v1/models", healthURL("http://a:1/v1", "models"))
	assert.Equal(t, "http://a:1", healthURL("http://a:1", ""))
}

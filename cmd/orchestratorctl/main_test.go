package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/usecase"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("APP_ENV", "test")
	t.Setenv("STUB_PROVIDERS", "true")
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("STORE_FILE_PATH", filepath.Join(dir, "state.json"))
	t.Setenv("HEALTH_CHECK_TIMEOUT", "1s")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCatalog(t *testing.T, dir string, up, down string) string {
	t.Helper()
	doc := fmt.Sprintf(`services:
  - id: up
    name: Up Service
    url: %s
    health_path: /health
  - id: down
    name: Down Service
    url: %s
    health_path: /health
`, up, down)
	p := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o600))
	return p
}

func TestDiagnose_PrintsReport(t *testing.T) {
	dir := setupEnv(t)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"0.4.1"}`))
	}))
	defer backend.Close()
	catalog := writeCatalog(t, dir, backend.URL, "http://127.0.0.1:1")

	out, err := run(t, "diagnose", "--catalog", catalog)
	require.NoError(t, err)
	counts, err := usecase.ParseReportCounts(out)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Online)
	assert.Equal(t, 1, counts.Offline)
	assert.Contains(t, out, "0.4.1")

	_, err = run(t, "diagnose", "--catalog", catalog, "--fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 offline")
}

func TestDiagnose_HTMLToFile(t *testing.T) {
	dir := setupEnv(t)
	catalog := writeCatalog(t, dir, "http://127.0.0.1:1", "http://127.0.0.1:2")
	target := filepath.Join(dir, "report.html")

	out, err := run(t, "diagnose", "--catalog", catalog, "--html", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "report written to")
	body, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<table>")
}

func TestChat_StubProvider(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "chat", "--mode", "cloud", "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "[cloud] hello there", strings.TrimSpace(out))

	out, err = run(t, "chat", "--json", "--mode", "local", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, `"model": "local"`)
}

func TestChat_RejectsUnknownMode(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "chat", "--mode", "gpt", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestTasks_EmptyLedger(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "no tasks", strings.TrimSpace(out))

	out, err = run(t, "tasks", "--clear-completed")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 finished tasks")
}

func TestStoreFlagValidated(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "tasks", "--store", "etcd")
	require.Error(t, err)
}

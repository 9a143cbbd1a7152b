package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/config"
	"github.com/fairyhunter13/ai-orchestrator/internal/domain"
)

func newRuntime(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	rt, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.Close(ctx)
	})
	return rt
}

func TestBuild_DefaultCatalog(t *testing.T) {
	rt := newRuntime(t, testConfig(t))
	assert.NotEmpty(t, rt.Catalog.Services)
	assert.ElementsMatch(t, config.DefaultRefusalPhrases, rt.Catalog.RefusalPhrases)
	assert.ElementsMatch(t,
		[]domain.ProviderID{domain.ProviderCloud, domain.ProviderLocal, domain.ProviderPersonal, domain.ProviderSpecialized},
		rt.Orchestrator.Providers())
}

func TestBuild_RestoresStateAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreDriver = "file"
	cfg.StoreFilePath = filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	first, err := Build(ctx, cfg)
	require.NoError(t, err)
	task, err := first.Tasks.AddTask(ctx, "image", "render", nil)
	require.NoError(t, err)
	_, err = first.Tasks.StartTask(ctx, task.ID)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := newRuntime(t, cfg)
	got, err := second.Tasks.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskProcessing, got.Status)
}

func TestBuild_BadCatalogPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=app.build")
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	rt, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, rt.Close(context.Background()))
	require.NoError(t, rt.Close(context.Background()))
}

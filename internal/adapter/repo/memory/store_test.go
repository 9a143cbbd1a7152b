package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/repo/memory"
)

func TestStore_LoadSave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.NewStore()

	doc, err := s.Load(ctx, "tasks")
	require.NoError(t, err)
	assert.Nil(t, doc)

	in := []byte(`{"schemaVersion":1,"items":[]}`)
	require.NoError(t, s.Save(ctx, "tasks", in))
	in[0] = 'X'

	doc, err = s.Load(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, `{"schemaVersion":1,"items":[]}`, string(doc))
	require.NoError(t, s.Ping(ctx))
}

func TestStore_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := memory.NewStore()
	require.ErrorIs(t, s.Save(ctx, "k", nil), context.Canceled)
	_, err := s.Load(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
}

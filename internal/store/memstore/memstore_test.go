package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/market-research/internal/jobs"
)

func TestStore_PutGetIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()
	j := &jobs.Job{ID: "a", Status: jobs.StatusPending, Progress: &jobs.Progress{Stage: "init"}}
	require.NoError(t, s.Put(ctx, j))

	// caller mutations must not leak into the store
	j.Progress.Stage = "mutated"
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "init", got.Progress.Stage)

	got.Status = jobs.StatusFailed
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, again.Status)
}

func TestStore_UpdateMissing(t *testing.T) {
	err := New().Update(context.Background(), &jobs.Job{ID: "nope"})
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, &jobs.Job{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[2].ID)

	ok, err := s.Delete(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestStore_EvictBefore(t *testing.T) {
	ctx := context.Background()
	s := New()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	require.NoError(t, s.Put(ctx, &jobs.Job{ID: "old", Status: jobs.StatusCompleted, CompletedAt: &old}))
	require.NoError(t, s.Put(ctx, &jobs.Job{ID: "new", Status: jobs.StatusFailed, CompletedAt: &recent}))
	require.NoError(t, s.Put(ctx, &jobs.Job{ID: "run", Status: jobs.StatusRunning}))

	n, err := s.EvictBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, _ := s.List(ctx)
	assert.Len(t, list, 2)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/clipvote/internal/counter"
)

func TestSyncEmptyInputIsNoop(t *testing.T) {
	env := setupPipeline(t)

	res, err := env.syncer.Sync(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, res.Synced)
	require.Empty(t, res.Errors)
}

func TestSyncUnknownClipsAreSkipped(t *testing.T) {
	env := setupPipeline(t)

	res, err := env.syncer.Sync(context.Background(), []string{"clip-without-votes"})
	require.NoError(t, err)
	require.Zero(t, res.Synced)
	require.Empty(t, res.Errors)
}

func TestSyncIsIdempotent(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()
	env.seedClip(t, "clip-1")

	require.NoError(t, env.counters.RecordVote(ctx, "clip-1", 3, counter.Cast))
	require.NoError(t, env.counters.RecordVote(ctx, "clip-1", 2, counter.Cast))

	for i := 0; i < 2; i++ {
		res, err := env.syncer.Sync(ctx, []string{"clip-1"})
		require.NoError(t, err)
		require.Equal(t, 1, res.Synced)
		require.Empty(t, res.Errors)

		clip, err := env.clips.GetByID(ctx, "clip-1")
		require.NoError(t, err)
		require.EqualValues(t, 2, clip.VoteCount)
		require.EqualValues(t, 5, clip.WeightedScore)
	}
}

func TestSyncReflectsRevokes(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()
	env.seedClip(t, "clip-1")

	require.NoError(t, env.counters.RecordVote(ctx, "clip-1", 3, counter.Cast))
	require.NoError(t, env.counters.RecordVote(ctx, "clip-1", 1, counter.Cast))
	require.NoError(t, env.counters.RecordVote(ctx, "clip-1", 3, counter.Revoke))

	res, err := env.syncer.Sync(ctx, []string{"clip-1"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Synced)

	clip, err := env.clips.GetByID(ctx, "clip-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, clip.VoteCount)
	require.EqualValues(t, 1, clip.WeightedScore)
}

func TestSyncActiveDrainsDirtySet(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()
	env.seedClip(t, "clip-1")
	env.seedClip(t, "clip-2")

	require.NoError(t, env.counters.RecordVote(ctx, "clip-1", 2, counter.Cast))
	require.NoError(t, env.counters.RecordVote(ctx, "clip-2", 7, counter.Cast))

	res, err := env.syncer.SyncActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Synced)
	require.Empty(t, res.Errors)

	// 标记清空后再跑一轮是空操作
	res, err = env.syncer.SyncActive(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Synced)

	clip, err := env.clips.GetByID(ctx, "clip-2")
	require.NoError(t, err)
	require.EqualValues(t, 1, clip.VoteCount)
	require.EqualValues(t, 7, clip.WeightedScore)
}

func TestSyncJobHonorsLock(t *testing.T) {
	env := setupPipeline(t)
	ctx := context.Background()
	env.seedClip(t, "clip-1")
	require.NoError(t, env.counters.RecordVote(ctx, "clip-1", 2, counter.Cast))

	job := NewCounterSyncJob(env.syncer, env.locks, time.Minute)

	acquired, lockID, err := env.locks.Acquire(ctx, "sync:counters", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	res, err := job.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, RunSkippedLock, res.Status)
	require.Zero(t, res.Synced)

	released, err := env.locks.Release(ctx, "sync:counters", lockID)
	require.NoError(t, err)
	require.True(t, released)

	res, err = job.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, RunCompleted, res.Status)
	require.Equal(t, 1, res.Synced)

	clip, err := env.clips.GetByID(ctx, "clip-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, clip.VoteCount)
	require.EqualValues(t, 2, clip.WeightedScore)
}

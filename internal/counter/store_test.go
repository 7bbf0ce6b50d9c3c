package counter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestRecordVoteCastAndRevoke(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVote(ctx, "clip-1", 3, Cast))
	require.NoError(t, s.RecordVote(ctx, "clip-1", 5, Cast))

	counts, err := s.GetCounts(ctx, []string{"clip-1"})
	require.NoError(t, err)
	require.Equal(t, Snapshot{EntityID: "clip-1", RawCount: 2, WeightedScore: 8}, counts["clip-1"])

	require.NoError(t, s.RecordVote(ctx, "clip-1", 5, Revoke))

	counts, err = s.GetCounts(ctx, []string{"clip-1"})
	require.NoError(t, err)
	require.Equal(t, Snapshot{EntityID: "clip-1", RawCount: 1, WeightedScore: 3}, counts["clip-1"])
}

func TestGetCountsOmitsUnknownClips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVote(ctx, "clip-1", 1, Cast))

	counts, err := s.GetCounts(ctx, []string{"clip-1", "clip-ghost"})
	require.NoError(t, err)
	require.Contains(t, counts, "clip-1")
	require.NotContains(t, counts, "clip-ghost")
}

func TestGetCountsDistinguishesNetZeroFromAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVote(ctx, "clip-1", 4, Cast))
	require.NoError(t, s.RecordVote(ctx, "clip-1", 4, Revoke))

	counts, err := s.GetCounts(ctx, []string{"clip-1"})
	require.NoError(t, err)
	require.Equal(t, Snapshot{EntityID: "clip-1"}, counts["clip-1"])
}

func TestGetCountsEmptyInput(t *testing.T) {
	s := newTestStore(t)
	counts, err := s.GetCounts(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestActiveSetLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, s.RecordVote(ctx, "clip-1", 1, Cast))
	require.NoError(t, s.RecordVote(ctx, "clip-2", 2, Cast))
	require.NoError(t, s.RecordVote(ctx, "clip-1", 1, Cast))

	ids, err = s.ListActive(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"clip-1", "clip-2"}, ids)

	require.NoError(t, s.ClearActive(ctx, []string{"clip-1"}))
	ids, err = s.ListActive(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"clip-2"}, ids)

	// A vote landing after the sync read re-dirties the clip.
	require.NoError(t, s.RecordVote(ctx, "clip-1", 1, Cast))
	ids, err = s.ListActive(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"clip-1", "clip-2"}, ids)

	require.NoError(t, s.ClearActive(ctx, nil))
}

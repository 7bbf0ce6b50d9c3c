package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, VoteQueue), rdb
}

func castEvent(clipID, actor string) Event {
	return NewEvent(ActionVoteCast, clipID, actor, Payload{Weight: 1})
}

func TestPushPopOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var pushed []Event
	for i := 0; i < 5; i++ {
		ev := castEvent("clip-1", string(rune('a'+i)))
		require.NoError(t, q.Push(ctx, ev))
		pushed = append(pushed, ev)
	}

	first, err := q.PopBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for i, ev := range first {
		require.Equal(t, pushed[i].EventID, ev.EventID)
	}

	rest, err := q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, pushed[3].EventID, rest[0].EventID)
	require.Equal(t, pushed[4].EventID, rest[1].EventID)

	empty, err := q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestPopMovesToProcessing(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, castEvent("clip-1", "u1")))
	require.NoError(t, q.Push(ctx, castEvent("clip-1", "u2")))

	batch, err := q.PopBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.EqualValues(t, 0, rdb.LLen(ctx, q.pendingKey()).Val())
	require.EqualValues(t, 2, rdb.LLen(ctx, q.processingKey()).Val())
}

func TestConcurrentPushDoesNotShiftClaim(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	older := castEvent("clip-1", "older")
	newer := castEvent("clip-1", "newer")
	require.NoError(t, q.Push(ctx, older))
	require.NoError(t, q.Push(ctx, newer))

	batch, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, older.EventID, batch[0].EventID)

	// A push racing the claim lands at the head and drains after.
	latest := castEvent("clip-1", "latest")
	require.NoError(t, q.Push(ctx, latest))

	batch, err = q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, newer.EventID, batch[0].EventID)
	require.Equal(t, latest.EventID, batch[1].EventID)
}

func TestAcknowledge(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, castEvent("clip-1", "u1")))
	batch, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	require.NoError(t, q.Acknowledge(ctx, batch[0]))
	require.EqualValues(t, 0, rdb.LLen(ctx, q.processingKey()).Val())

	// Acking again is harmless.
	require.NoError(t, q.Acknowledge(ctx, batch[0]))
}

func TestAcknowledgeBatch(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Push(ctx, castEvent("clip-1", string(rune('a'+i)))))
	}
	batch, err := q.PopBatch(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, q.AcknowledgeBatch(ctx, batch))
	require.EqualValues(t, 0, rdb.LLen(ctx, q.processingKey()).Val())
}

func TestRequeueOrphansPreservesOrder(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	var pushed []Event
	for i := 0; i < 3; i++ {
		ev := castEvent("clip-1", string(rune('a'+i)))
		require.NoError(t, q.Push(ctx, ev))
		pushed = append(pushed, ev)
	}

	// Claim and then "crash" without acknowledging.
	claimed, err := q.PopBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 3)

	n, err := q.RequeueOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.EqualValues(t, 0, rdb.LLen(ctx, q.processingKey()).Val())

	// The recovered events drain again, oldest first.
	again, err := q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 3)
	for i, ev := range again {
		require.Equal(t, pushed[i].EventID, ev.EventID)
	}
}

func TestRequeueOrphansEmpty(t *testing.T) {
	q, _ := newTestQueue(t)
	n, err := q.RequeueOrphans(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOrphansDrainBeforeNewerPending(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	orphan := castEvent("clip-1", "orphan")
	require.NoError(t, q.Push(ctx, orphan))
	_, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)

	fresh := castEvent("clip-1", "fresh")
	require.NoError(t, q.Push(ctx, fresh))

	_, err = q.RequeueOrphans(ctx)
	require.NoError(t, err)

	batch, err := q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, orphan.EventID, batch[0].EventID)
	require.Equal(t, fresh.EventID, batch[1].EventID)
}

func TestMoveToDeadLetter(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	ev := castEvent("clip-1", "u1")
	require.NoError(t, q.Push(ctx, ev))
	batch, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)

	popped := batch[0]
	popped.MarkFailed(time.Now().UTC())
	require.NoError(t, q.MoveToDeadLetter(ctx, popped, errors.New("clip missing"), 5))

	require.EqualValues(t, 0, rdb.LLen(ctx, q.processingKey()).Val())

	entries, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ev.EventID, entries[0].Event.EventID)
	require.Equal(t, "clip missing", entries[0].Error)
	require.Equal(t, 5, entries[0].Attempts)
	require.False(t, entries[0].FirstFailedAt.IsZero())
}

func TestPoisonEntryGoesToDeadLetters(t *testing.T) {
	q, rdb := newTestQueue(t)
	ctx := context.Background()

	good := castEvent("clip-1", "u1")
	require.NoError(t, q.Push(ctx, good))
	require.NoError(t, rdb.LPush(ctx, q.pendingKey(), "{not json").Err())

	batch, err := q.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, good.EventID, batch[0].EventID)

	// The undecodable entry must not stay claimed forever.
	require.NoError(t, q.Acknowledge(ctx, batch[0]))
	require.EqualValues(t, 0, rdb.LLen(ctx, q.processingKey()).Val())

	entries, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "{not json", entries[0].Raw)
}

func TestHealth(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	h, err := q.Health(ctx)
	require.NoError(t, err)
	require.Zero(t, h.Pending)
	require.Zero(t, h.Processing)
	require.Zero(t, h.DeadLettered)
	require.Nil(t, h.LastProcessedAt)

	require.NoError(t, q.Push(ctx, castEvent("clip-1", "u1")))
	require.NoError(t, q.Push(ctx, castEvent("clip-1", "u2")))
	_, err = q.PopBatch(ctx, 1)
	require.NoError(t, err)

	mark := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, q.SetLastProcessed(ctx, mark))

	h, err = q.Health(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, h.Pending)
	require.EqualValues(t, 1, h.Processing)
	require.NotNil(t, h.LastProcessedAt)
	require.True(t, h.LastProcessedAt.Equal(mark))
}

func TestRetryMetaRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	ev := castEvent("clip-1", "u1")
	require.Zero(t, ev.RetryCount())

	ev.SetRetryCount(2)
	ev.MarkFailed(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, q.Push(ctx, ev))

	batch, err := q.PopBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, 2, batch[0].RetryCount())
	first, ok := batch[0].FirstFailedAt()
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), first)
}

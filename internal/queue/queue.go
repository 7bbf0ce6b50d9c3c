package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/pkg/logger"
)

// Queue is a durable FIFO over a pair of Redis lists. Producers LPUSH onto
// the pending list (newest at head); the single drainer consumes from the
// tail, moving claimed entries to the processing list so a crash leaves
// them recoverable instead of lost. A third list holds dead letters.
//
// Only one drainer may run per queue at a time (enforced by the job lock);
// producers need no coordination at all.
type Queue struct {
	rdb  *redis.Client
	name string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

// Name returns the queue instance name ("votes", "comments").
func (q *Queue) Name() string { return q.name }

func (q *Queue) pendingKey() string    { return fmt.Sprintf("queue:%s:pending", q.name) }
func (q *Queue) processingKey() string { return fmt.Sprintf("queue:%s:processing", q.name) }
func (q *Queue) deadKey() string       { return fmt.Sprintf("queue:%s:dead", q.name) }
func (q *Queue) lastKey() string       { return fmt.Sprintf("queue:%s:last_processed", q.name) }

// Push appends the event to the head of the pending list.
func (q *Queue) Push(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue %s: marshal event: %w", q.name, err)
	}
	if err := q.rdb.LPush(ctx, q.pendingKey(), string(data)).Err(); err != nil {
		return fmt.Errorf("queue %s: push: %w", q.name, err)
	}
	return nil
}

// PopBatch moves up to max of the oldest pending entries to the processing
// list and returns them oldest-first. The read is followed by a single
// MULTI/EXEC that trims exactly the slice read and appends the same slice
// to processing, so a crash can never leave an event in neither list.
// The worst case is "stuck in processing", which RequeueOrphans handles.
//
// Concurrent LPUSHes only grow the head and cannot shift the tail window
// between the read and the trim.
func (q *Queue) PopBatch(ctx context.Context, max int) ([]Event, error) {
	if max <= 0 {
		return nil, nil
	}
	// Tail of the list = oldest entries, returned newest-of-window first.
	vals, err := q.rdb.LRange(ctx, q.pendingKey(), int64(-max), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue %s: range: %w", q.name, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	pipe := q.rdb.TxPipeline()
	pipe.LTrim(ctx, q.pendingKey(), 0, int64(-(len(vals) + 1)))
	pipe.RPush(ctx, q.processingKey(), interfaceSlice(vals)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue %s: claim batch: %w", q.name, err)
	}

	events := make([]Event, 0, len(vals))
	// Reverse so the oldest entry comes out first.
	for i := len(vals) - 1; i >= 0; i-- {
		var ev Event
		if err := json.Unmarshal([]byte(vals[i]), &ev); err != nil {
			// Poison entry: route it straight to the dead list so it cannot
			// wedge every subsequent run.
			if dlErr := q.deadLetterRaw(ctx, vals[i], err); dlErr != nil {
				return events, dlErr
			}
			logger.Warn("queue: dropped undecodable entry to dead letters",
				zap.String("queue", q.name), zap.Error(err))
			continue
		}
		ev.raw = vals[i]
		events = append(events, ev)
	}
	return events, nil
}

// Acknowledge removes one matching occurrence of the event from the
// processing list. At most one instance is removed even if duplicates
// exist, so a double-ack cannot silently drop a legitimate duplicate.
func (q *Queue) Acknowledge(ctx context.Context, ev Event) error {
	payload, err := q.serialized(ev)
	if err != nil {
		return err
	}
	if err := q.rdb.LRem(ctx, q.processingKey(), 1, payload).Err(); err != nil {
		return fmt.Errorf("queue %s: ack: %w", q.name, err)
	}
	return nil
}

// AcknowledgeBatch acknowledges all given events in one round trip.
func (q *Queue) AcknowledgeBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	pipe := q.rdb.TxPipeline()
	for _, ev := range events {
		payload, err := q.serialized(ev)
		if err != nil {
			return err
		}
		pipe.LRem(ctx, q.processingKey(), 1, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue %s: ack batch: %w", q.name, err)
	}
	return nil
}

// MoveToDeadLetter removes the event from processing and appends a terminal
// dead-letter entry. Two steps; retrying the whole move is idempotent at
// the caller (LREM of a gone entry is a no-op).
func (q *Queue) MoveToDeadLetter(ctx context.Context, ev Event, cause error, attempts int) error {
	payload, err := q.serialized(ev)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	first := now
	if t, ok := ev.FirstFailedAt(); ok {
		first = t
	}
	entry := DeadLetterEntry{
		Event:         ev,
		Error:         cause.Error(),
		Attempts:      attempts,
		FirstFailedAt: first,
		LastFailedAt:  now,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue %s: marshal dead letter: %w", q.name, err)
	}
	if err := q.rdb.LRem(ctx, q.processingKey(), 1, payload).Err(); err != nil {
		return fmt.Errorf("queue %s: dead letter unclaim: %w", q.name, err)
	}
	if err := q.rdb.RPush(ctx, q.deadKey(), string(data)).Err(); err != nil {
		return fmt.Errorf("queue %s: dead letter append: %w", q.name, err)
	}
	return nil
}

// RequeueOrphans moves everything left in the processing list back onto the
// pending list and clears it. Coarse on purpose: items can only be sitting
// there because a previous drainer crashed mid-run, and the job lock keeps
// a live drainer from racing this recovery.
func (q *Queue) RequeueOrphans(ctx context.Context) (int, error) {
	vals, err := q.rdb.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("queue %s: orphan scan: %w", q.name, err)
	}
	if len(vals) == 0 {
		return 0, nil
	}
	pipe := q.rdb.TxPipeline()
	// RPUSH of the snapshot keeps head-newest orientation: the recovered
	// entries land at the tail, oldest outermost, and drain first.
	pipe.RPush(ctx, q.pendingKey(), interfaceSlice(vals)...)
	pipe.Del(ctx, q.processingKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queue %s: orphan requeue: %w", q.name, err)
	}
	return len(vals), nil
}

// Health reports list depths and the time of the last successful pass.
type Health struct {
	Pending         int64      `json:"pending_count"`
	Processing      int64      `json:"processing_count"`
	DeadLettered    int64      `json:"dead_letter_count"`
	LastProcessedAt *time.Time `json:"last_processed_at"`
}

func (q *Queue) Health(ctx context.Context) (*Health, error) {
	pipe := q.rdb.TxPipeline()
	pending := pipe.LLen(ctx, q.pendingKey())
	processing := pipe.LLen(ctx, q.processingKey())
	dead := pipe.LLen(ctx, q.deadKey())
	last := pipe.Get(ctx, q.lastKey())
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("queue %s: health: %w", q.name, err)
	}

	h := &Health{
		Pending:      pending.Val(),
		Processing:   processing.Val(),
		DeadLettered: dead.Val(),
	}
	if s, err := last.Result(); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			h.LastProcessedAt = &t
		}
	}
	return h, nil
}

// SetLastProcessed records the completion time of a successful pass.
func (q *Queue) SetLastProcessed(ctx context.Context, t time.Time) error {
	return q.rdb.Set(ctx, q.lastKey(), t.UTC().Format(time.RFC3339Nano), 0).Err()
}

// DeadLetters returns up to limit of the most recent dead-letter entries,
// newest first. Read-only: replay is a manual operator action.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	vals, err := q.rdb.LRange(ctx, q.deadKey(), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue %s: dead letters: %w", q.name, err)
	}
	entries := make([]DeadLetterEntry, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		var entry DeadLetterEntry
		if err := json.Unmarshal([]byte(vals[i]), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (q *Queue) serialized(ev Event) (string, error) {
	if ev.raw != "" {
		return ev.raw, nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("queue %s: marshal event: %w", q.name, err)
	}
	return string(data), nil
}

func (q *Queue) deadLetterRaw(ctx context.Context, raw string, cause error) error {
	entry := DeadLetterEntry{
		Error:         fmt.Sprintf("unmarshal: %v", cause),
		Attempts:      0,
		FirstFailedAt: time.Now().UTC(),
		LastFailedAt:  time.Now().UTC(),
		Raw:           raw,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, raw)
	pipe.RPush(ctx, q.deadKey(), string(data))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue %s: poison dead letter: %w", q.name, err)
	}
	return nil
}

func interfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

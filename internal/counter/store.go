package counter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Direction tells the store which way a ballot moves the tallies.
type Direction int64

const (
	Cast   Direction = 1
	Revoke Direction = -1
)

// Snapshot is one clip's live tally as read from Redis.
type Snapshot struct {
	EntityID      string `json:"entity_id"`
	RawCount      int64  `json:"raw_count"`
	WeightedScore int64  `json:"weighted_score"`
}

// Store keeps per-clip vote tallies in Redis hashes so vote bursts and
// tally reads never touch the relational store. Each clip owns a hash
// tally:{clipID} with two fields: raw (ballot count) and score (weighted
// sum). Clips whose hash changed since the last canonical sync sit in the
// tally:active set.
//
// The hashes are a derived projection. They can be rebuilt from the votes
// table at any time, so no TTLs and no eviction handling here.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

const activeKey = "tally:active"

func tallyKey(clipID string) string { return fmt.Sprintf("tally:%s", clipID) }

// RecordVote applies one ballot to a clip's tally. A Cast adds one raw
// count and weight points of score, a Revoke subtracts the same. The
// increments and the dirty mark run in a single transaction so the sync
// set can never miss a changed clip.
func (s *Store) RecordVote(ctx context.Context, clipID string, weight int64, dir Direction) error {
	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, tallyKey(clipID), "raw", int64(dir))
	pipe.HIncrBy(ctx, tallyKey(clipID), "score", int64(dir)*weight)
	pipe.SAdd(ctx, activeKey, clipID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("counter: record vote for %s: %w", clipID, err)
	}
	return nil
}

// GetCounts reads the live tallies for the given clips in one round trip.
// Clips with no tally hash are omitted from the result rather than
// reported as zero, so callers can tell "never voted on" from "net zero".
func (s *Store) GetCounts(ctx context.Context, clipIDs []string) (map[string]Snapshot, error) {
	if len(clipIDs) == 0 {
		return map[string]Snapshot{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(clipIDs))
	for i, id := range clipIDs {
		cmds[i] = pipe.HGetAll(ctx, tallyKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("counter: read tallies: %w", err)
	}

	out := make(map[string]Snapshot, len(clipIDs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out[clipIDs[i]] = Snapshot{
			EntityID:      clipIDs[i],
			RawCount:      parseField(fields, "raw"),
			WeightedScore: parseField(fields, "score"),
		}
	}
	return out, nil
}

// ListActive returns the clips whose tallies changed since they were last
// synced into the canonical table.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, activeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("counter: list active: %w", err)
	}
	return ids, nil
}

// ClearActive removes only the given clips from the dirty set. Clips that
// changed again while a sync was running keep their mark and get picked up
// by the next pass.
func (s *Store) ClearActive(ctx context.Context, clipIDs []string) error {
	if len(clipIDs) == 0 {
		return nil
	}
	if err := s.rdb.SRem(ctx, activeKey, interfaceSlice(clipIDs)...).Err(); err != nil {
		return fmt.Errorf("counter: clear active: %w", err)
	}
	return nil
}

func parseField(fields map[string]string, name string) int64 {
	v, ok := fields[name]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func interfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

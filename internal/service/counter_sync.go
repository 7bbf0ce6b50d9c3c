package service

import (
	"context"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/internal/counter"
	"github.com/d60-Lab/clipvote/internal/model"
	"github.com/d60-Lab/clipvote/internal/repository"
	"github.com/d60-Lab/clipvote/pkg/logger"
)

// SyncResult 一次同步的结果。Errors 按 clip 粒度记录，单个失败不影响其余。
type SyncResult struct {
	Synced int         `json:"synced"`
	Errors []SyncError `json:"errors"`
}

type SyncError struct {
	EntityID string `json:"entity_id"`
	Error    string `json:"error"`
}

// CounterSynchronizer 把计数快照覆盖写进 clips 表的聚合列。
// 覆盖写而非增量：同步任务重跑、两次运行重叠都安全，最后读到的快照胜出。
// Redis 中的计数始终是权威的实时值，clips 表只是滞后的落地副本。
type CounterSynchronizer struct {
	counters *counter.Store
	clips    repository.ClipRepository
}

func NewCounterSynchronizer(counters *counter.Store, clips repository.ClipRepository) *CounterSynchronizer {
	return &CounterSynchronizer{counters: counters, clips: clips}
}

// Sync 同步给定 clip 的计数。空输入或查不到任何快照时不触碰数据库。
func (s *CounterSynchronizer) Sync(ctx context.Context, clipIDs []string) (*SyncResult, error) {
	result := &SyncResult{Errors: []SyncError{}}
	if len(clipIDs) == 0 {
		return result, nil
	}

	snaps, err := s.counters.GetCounts(ctx, clipIDs)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return result, nil
	}

	rows := make([]*model.Clip, 0, len(snaps))
	for _, id := range clipIDs {
		snap, ok := snaps[id]
		if !ok {
			continue
		}
		rows = append(rows, &model.Clip{
			ID:            snap.EntityID,
			VoteCount:     snap.RawCount,
			WeightedScore: snap.WeightedScore,
		})
	}

	err = s.clips.UpsertCounts(ctx, rows)
	if err == nil {
		result.Synced = len(rows)
		metrics.GetOrCreateCounter(`clipvote_counter_sync_total{outcome="ok"}`).Add(len(rows))
		return result, nil
	}
	logger.Warn("counter sync: batch upsert failed, retrying per clip",
		zap.Int("batch_size", len(rows)), zap.Error(err))

	// 批量失败退化为逐条，坏行单独记错
	for _, row := range rows {
		if err := s.clips.UpsertCounts(ctx, []*model.Clip{row}); err != nil {
			result.Errors = append(result.Errors, SyncError{EntityID: row.ID, Error: err.Error()})
			metrics.GetOrCreateCounter(`clipvote_counter_sync_total{outcome="error"}`).Inc()
		} else {
			result.Synced++
			metrics.GetOrCreateCounter(`clipvote_counter_sync_total{outcome="ok"}`).Inc()
		}
	}
	return result, nil
}

// SyncActive 同步活跃集中的全部 clip，随后只清掉本轮成功同步的标记。
// 同步期间又有新票进来的 clip 会重新落进活跃集，下一轮自然补上。
func (s *CounterSynchronizer) SyncActive(ctx context.Context) (*SyncResult, error) {
	ids, err := s.counters.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &SyncResult{Errors: []SyncError{}}, nil
	}

	result, err := s.Sync(ctx, ids)
	if err != nil {
		return nil, err
	}

	failed := make(map[string]bool, len(result.Errors))
	for _, e := range result.Errors {
		failed[e.EntityID] = true
	}
	cleared := make([]string, 0, len(ids))
	for _, id := range ids {
		if !failed[id] {
			cleared = append(cleared, id)
		}
	}
	if err := s.counters.ClearActive(ctx, cleared); err != nil {
		return nil, err
	}
	return result, nil
}

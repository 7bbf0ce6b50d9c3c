package service

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/internal/lock"
	"github.com/d60-Lab/clipvote/pkg/logger"
)

// SyncJobResult 独立计数同步任务的一轮结果。
type SyncJobResult struct {
	Status     RunStatus   `json:"status"`
	Synced     int         `json:"synced"`
	Errors     []SyncError `json:"errors"`
	DurationMS int64       `json:"duration_ms"`
}

// CounterSyncJob 给 CounterSynchronizer 套上自己的锁，作为独立 cron 入口。
// 投票处理器每轮也会顺带同步，这里的任务保证即使排水停摆，
// 活跃 clip 的计数仍会按时落地。
type CounterSyncJob struct {
	syncer  *CounterSynchronizer
	locks   lock.Manager
	lockTTL time.Duration
}

const syncJobName = "sync:counters"

func NewCounterSyncJob(syncer *CounterSynchronizer, locks lock.Manager, lockTTL time.Duration) *CounterSyncJob {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &CounterSyncJob{syncer: syncer, locks: locks, lockTTL: lockTTL}
}

func (j *CounterSyncJob) Run(ctx context.Context) (*SyncJobResult, error) {
	start := time.Now()

	acquired, lockID, err := j.locks.Acquire(ctx, syncJobName, j.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		j.runCounter(RunSkippedLock).Inc()
		return &SyncJobResult{Status: RunSkippedLock, Errors: []SyncError{}}, nil
	}
	defer func() {
		if _, err := j.locks.Release(context.WithoutCancel(ctx), syncJobName, lockID); err != nil {
			logger.Warn("counter sync job: release lock failed", zap.Error(err))
		}
	}()

	res, err := j.syncer.SyncActive(ctx)
	if err != nil {
		return nil, err
	}

	j.runCounter(RunCompleted).Inc()
	return &SyncJobResult{
		Status:     RunCompleted,
		Synced:     res.Synced,
		Errors:     res.Errors,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}

func (j *CounterSyncJob) runCounter(status RunStatus) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(
		`clipvote_sync_runs_total{status=%q}`, status))
}

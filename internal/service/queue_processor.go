package service

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/internal/lock"
	"github.com/d60-Lab/clipvote/internal/queue"
	"github.com/d60-Lab/clipvote/pkg/logger"
)

type RunStatus string

const (
	// RunCompleted 本轮正常跑完（包括空队列）
	RunCompleted RunStatus = "completed"
	// RunSkippedLock 锁被别的实例持有，本轮直接放弃，不算错误
	RunSkippedLock RunStatus = "skipped_lock"
	// RunDisabled 异步管道被开关关掉
	RunDisabled RunStatus = "disabled"
)

// RunResult 单轮处理的统计。
type RunResult struct {
	Status       RunStatus `json:"status"`
	Recovered    int       `json:"recovered"`
	Drained      int       `json:"drained"`
	Applied      int       `json:"applied"`
	Retried      int       `json:"retried"`
	DeadLettered int       `json:"dead_lettered"`
	Synced       int       `json:"synced"`
	DurationMS   int64     `json:"duration_ms"`
}

// QueueProcessor 周期任务：拿锁、捞回孤儿、批量出队、落库、确认/重试/死信。
// 调度器（cron）可以重叠触发，锁保证同一队列同时只有一轮在排水；
// 拿不到锁立即返回，不自旋等待。
type QueueProcessor struct {
	queue      *queue.Queue
	applier    EventApplier
	locks      lock.Manager
	syncer     *CounterSynchronizer
	enabled    bool
	batchSize  int
	maxRetries int
	lockTTL    time.Duration
}

func NewQueueProcessor(q *queue.Queue, applier EventApplier, locks lock.Manager, enabled bool, batchSize, maxRetries int, lockTTL time.Duration) *QueueProcessor {
	if batchSize <= 0 {
		batchSize = 200
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if lockTTL <= 0 {
		// TTL 兜底要显著长于最坏单轮耗时，否则活着的运行会被误抢
		lockTTL = 5 * time.Minute
	}
	return &QueueProcessor{
		queue:      q,
		applier:    applier,
		locks:      locks,
		enabled:    enabled,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		lockTTL:    lockTTL,
	}
}

// WithSynchronizer 让本处理器在每轮排水后顺带跑一次计数同步。
func (p *QueueProcessor) WithSynchronizer(s *CounterSynchronizer) *QueueProcessor {
	p.syncer = s
	return p
}

// Run 执行一轮。返回错误仅代表基础设施故障（Redis / 数据库不可达），
// 此时不确认任何事件，在途副本等下一轮孤儿回收；单事件失败走重试/死信，
// 不会变成整轮错误。
func (p *QueueProcessor) Run(ctx context.Context) (*RunResult, error) {
	if !p.enabled {
		return &RunResult{Status: RunDisabled}, nil
	}

	start := time.Now()
	jobName := "drain:" + p.queue.Name()

	acquired, lockID, err := p.locks.Acquire(ctx, jobName, p.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		logger.Info("queue processor: lock held elsewhere, skipping run",
			zap.String("job", jobName))
		p.runCounter(RunSkippedLock).Inc()
		return &RunResult{Status: RunSkippedLock}, nil
	}
	defer func() {
		// 锁必须在任何退出路径上归还，TTL 只是崩溃后的兜底
		if _, err := p.locks.Release(context.WithoutCancel(ctx), jobName, lockID); err != nil {
			logger.Warn("queue processor: release lock failed",
				zap.String("job", jobName), zap.Error(err))
		}
	}()

	result := &RunResult{Status: RunCompleted}

	recovered, err := p.queue.RequeueOrphans(ctx)
	if err != nil {
		return nil, err
	}
	result.Recovered = recovered
	if recovered > 0 {
		logger.Warn("queue processor: requeued orphaned in-flight events",
			zap.String("queue", p.queue.Name()), zap.Int("count", recovered))
	}

	events, err := p.queue.PopBatch(ctx, p.batchSize)
	if err != nil {
		return nil, err
	}
	result.Drained = len(events)

	if len(events) > 0 {
		applied := p.applier.Apply(ctx, events)

		for _, f := range applied.Failed {
			retried, err := p.retryOrBury(ctx, f)
			if err != nil {
				return nil, err
			}
			if retried {
				result.Retried++
			} else {
				result.DeadLettered++
			}
		}

		if err := p.queue.AcknowledgeBatch(ctx, applied.Succeeded); err != nil {
			return nil, err
		}
		result.Applied = len(applied.Succeeded)
	}

	if err := p.queue.SetLastProcessed(ctx, time.Now().UTC()); err != nil {
		return nil, err
	}

	if p.syncer != nil {
		syncRes, err := p.syncer.SyncActive(ctx)
		if err != nil {
			return nil, err
		}
		result.Synced = syncRes.Synced
		if len(syncRes.Errors) > 0 {
			logger.Warn("queue processor: counter sync finished with per-clip errors",
				zap.String("queue", p.queue.Name()), zap.Int("errors", len(syncRes.Errors)))
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	p.runCounter(RunCompleted).Inc()
	p.eventCounter("applied").Add(result.Applied)
	p.eventCounter("retried").Add(result.Retried)
	p.eventCounter("dead_lettered").Add(result.DeadLettered)

	logger.Info("queue processor: run completed",
		zap.String("queue", p.queue.Name()),
		zap.Int("drained", result.Drained),
		zap.Int("applied", result.Applied),
		zap.Int("retried", result.Retried),
		zap.Int("dead_lettered", result.DeadLettered),
		zap.Int64("duration_ms", result.DurationMS))
	return result, nil
}

// retryOrBury 处理一个应用失败的事件：未到重试上限就带着加一后的
// retry_count 重新入队（排到队尾，稍后再试）；到上限就进死信。
// 先入队再确认旧副本，中间崩溃顶多产生一份重复，由落库幂等吸收。
func (p *QueueProcessor) retryOrBury(ctx context.Context, f FailedEvent) (bool, error) {
	attempts := f.Event.RetryCount() + 1
	if attempts >= p.maxRetries {
		if err := p.queue.MoveToDeadLetter(ctx, f.Event, f.Err, attempts); err != nil {
			return false, err
		}
		logger.Error("queue processor: event exhausted retries, dead-lettered",
			zap.String("queue", p.queue.Name()),
			zap.String("event_id", f.Event.EventID),
			zap.String("action", string(f.Event.Action)),
			zap.Int("attempts", attempts),
			zap.Error(f.Err))
		return false, nil
	}

	retry := f.Event
	retry.SetRetryCount(attempts)
	retry.MarkFailed(time.Now().UTC())
	if err := p.queue.Push(ctx, retry); err != nil {
		return false, err
	}
	if err := p.queue.Acknowledge(ctx, f.Event); err != nil {
		return false, err
	}
	return true, nil
}

func (p *QueueProcessor) runCounter(status RunStatus) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(
		`clipvote_processor_runs_total{queue=%q,status=%q}`, p.queue.Name(), status))
}

func (p *QueueProcessor) eventCounter(outcome string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(
		`clipvote_processor_events_total{queue=%q,outcome=%q}`, p.queue.Name(), outcome))
}

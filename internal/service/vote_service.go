package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/internal/counter"
	"github.com/d60-Lab/clipvote/internal/model"
	"github.com/d60-Lab/clipvote/internal/queue"
	"github.com/d60-Lab/clipvote/internal/repository"
	"github.com/d60-Lab/clipvote/pkg/logger"
)

var (
	ErrClipNotFound = errors.New("clip not found")
)

// VoteService 投票入口。写路径只碰 Redis：票仓去重、计数自增、事件入队，
// 关系库由 worker 异步落地。入队失败时退化为同步直写，保证事件不丢。
type VoteService interface {
	// Cast 投一票。同一 actor 对同一 clip 的重复投票返回 accepted=false，
	// 按成功处理（不累计、不入队）。
	Cast(ctx context.Context, clipID, actorKey string, weight int64) (accepted bool, err error)
	// Revoke 撤票。没有可撤的票时返回 revoked=false。
	Revoke(ctx context.Context, clipID, actorKey string) (revoked bool, err error)
	// Tally 批量读实时计数，没有任何投票记录的 clip 不出现在结果里。
	Tally(ctx context.Context, clipIDs []string) (map[string]counter.Snapshot, error)
	// HasVoted 查询 actor 是否已对 clip 投过票。
	HasVoted(ctx context.Context, clipID, actorKey string) (bool, error)
}

type voteService struct {
	rdb      *redis.Client
	counters *counter.Store
	votes    repository.VoteRepository
	clips    repository.ClipRepository
	q        *queue.Queue
	async    bool
}

func NewVoteService(rdb *redis.Client, counters *counter.Store, votes repository.VoteRepository, clips repository.ClipRepository, q *queue.Queue, async bool) VoteService {
	return &voteService{rdb: rdb, counters: counters, votes: votes, clips: clips, q: q, async: async}
}

// voters:{clipID} 哈希记录每个 actor 的票重，既做重复投票去重，
// 也在撤票时找回当初的权重。
func votersKey(clipID string) string { return fmt.Sprintf("voters:%s", clipID) }

func (s *voteService) Cast(ctx context.Context, clipID, actorKey string, weight int64) (bool, error) {
	exists, err := s.clips.Exists(ctx, clipID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrClipNotFound
	}

	fresh, err := s.rdb.HSetNX(ctx, votersKey(clipID), actorKey, weight).Result()
	if err != nil {
		return false, err
	}
	if !fresh {
		// 已投过：幂等吸收，计数一票不多
		return false, nil
	}

	if err := s.counters.RecordVote(ctx, clipID, weight, counter.Cast); err != nil {
		return false, err
	}

	ev := queue.NewEvent(queue.ActionVoteCast, clipID, actorKey, queue.Payload{Weight: weight})
	s.dispatch(ctx, ev)
	metrics.GetOrCreateCounter(`clipvote_votes_total{action="cast"}`).Inc()
	return true, nil
}

func (s *voteService) Revoke(ctx context.Context, clipID, actorKey string) (bool, error) {
	raw, err := s.rdb.HGet(ctx, votersKey(clipID), actorKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	weight, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		weight = 1
	}

	// HDel 返回 1 的那个并发撤票者才真正执行扣减
	removed, err := s.rdb.HDel(ctx, votersKey(clipID), actorKey).Result()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}

	if err := s.counters.RecordVote(ctx, clipID, weight, counter.Revoke); err != nil {
		return false, err
	}

	ev := queue.NewEvent(queue.ActionVoteRevoke, clipID, actorKey, queue.Payload{Weight: weight})
	s.dispatch(ctx, ev)
	metrics.GetOrCreateCounter(`clipvote_votes_total{action="revoke"}`).Inc()
	return true, nil
}

func (s *voteService) Tally(ctx context.Context, clipIDs []string) (map[string]counter.Snapshot, error) {
	return s.counters.GetCounts(ctx, clipIDs)
}

func (s *voteService) HasVoted(ctx context.Context, clipID, actorKey string) (bool, error) {
	return s.rdb.HExists(ctx, votersKey(clipID), actorKey).Result()
}

// dispatch 优先入队走异步管道；开关关闭或入队失败时同步直写兜底，
// 两条路径落的都是同一套幂等写，重复无害。
func (s *voteService) dispatch(ctx context.Context, ev queue.Event) {
	if s.async {
		err := s.q.Push(ctx, ev)
		if err == nil {
			return
		}
		logger.Warn("vote service: enqueue failed, applying synchronously",
			zap.String("event_id", ev.EventID), zap.Error(err))
		metrics.GetOrCreateCounter(`clipvote_enqueue_fallback_total{queue="votes"}`).Inc()
	}
	s.applyDirect(ctx, ev)
}

func (s *voteService) applyDirect(ctx context.Context, ev queue.Event) {
	var err error
	switch ev.Action {
	case queue.ActionVoteCast:
		err = s.votes.Create(ctx, &model.Vote{
			ID:       ev.EventID,
			ClipID:   ev.EntityID,
			ActorKey: ev.ActorKey,
			Weight:   ev.Payload.Weight,
		})
	case queue.ActionVoteRevoke:
		err = s.votes.Delete(ctx, ev.EntityID, ev.ActorKey)
	}
	if err != nil {
		// Redis 侧计数已生效，落库失败只能记日志等同步任务兜底
		logger.Error("vote service: synchronous apply failed",
			zap.String("event_id", ev.EventID), zap.String("action", string(ev.Action)), zap.Error(err))
	}
}

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/internal/model"
	"github.com/d60-Lab/clipvote/internal/queue"
	"github.com/d60-Lab/clipvote/internal/repository"
	"github.com/d60-Lab/clipvote/pkg/logger"
)

// VoteApplier 把投票事件写入 votes 表。cast 走批量插入（唯一键吸收重复），
// 整批失败时退化为逐条插入，单个坏事件不拖累整批；revoke 逐条删除。
type VoteApplier struct {
	votes repository.VoteRepository
}

func NewVoteApplier(votes repository.VoteRepository) *VoteApplier {
	return &VoteApplier{votes: votes}
}

func (a *VoteApplier) Apply(ctx context.Context, events []queue.Event) *ApplyResult {
	result := &ApplyResult{}

	casts := make([]queue.Event, 0, len(events))
	for _, ev := range events {
		switch ev.Action {
		case queue.ActionVoteCast:
			casts = append(casts, ev)
		case queue.ActionVoteRevoke:
			if err := a.votes.Delete(ctx, ev.EntityID, ev.ActorKey); err != nil {
				result.fail(ev, err)
			} else {
				result.ok(ev)
			}
		default:
			// 队列混入未知动作：无法应用也无法重试出结果，直接判失败进死信
			result.fail(ev, fmt.Errorf("unsupported vote action %q", ev.Action))
		}
	}

	a.applyCasts(ctx, casts, result)
	return result
}

func (a *VoteApplier) applyCasts(ctx context.Context, casts []queue.Event, result *ApplyResult) {
	if len(casts) == 0 {
		return
	}

	rows := make([]*model.Vote, len(casts))
	for i, ev := range casts {
		rows[i] = voteRow(ev)
	}

	err := a.votes.CreateBatch(ctx, rows)
	if err == nil {
		for _, ev := range casts {
			result.ok(ev)
		}
		return
	}
	logger.Warn("vote applier: batch insert failed, retrying per event",
		zap.Int("batch_size", len(casts)), zap.Error(err))

	for _, ev := range casts {
		if err := a.votes.Create(ctx, voteRow(ev)); err != nil {
			result.fail(ev, err)
		} else {
			result.ok(ev)
		}
	}
}

func voteRow(ev queue.Event) *model.Vote {
	return &model.Vote{
		ID:       ev.EventID,
		ClipID:   ev.EntityID,
		ActorKey: ev.ActorKey,
		Weight:   ev.Payload.Weight,
	}
}

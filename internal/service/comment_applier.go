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

// CommentApplier 把评论事件写入关系库。create 批量插入（主键吸收重复投递），
// like / unlike / delete 逐条应用；"已点赞" "已删除" 一律按成功处理。
type CommentApplier struct {
	comments repository.CommentRepository
}

func NewCommentApplier(comments repository.CommentRepository) *CommentApplier {
	return &CommentApplier{comments: comments}
}

func (a *CommentApplier) Apply(ctx context.Context, events []queue.Event) *ApplyResult {
	result := &ApplyResult{}

	creates := make([]queue.Event, 0, len(events))
	for _, ev := range events {
		switch ev.Action {
		case queue.ActionCommentCreate:
			creates = append(creates, ev)
		case queue.ActionCommentLike:
			// 点赞行 ID 复用事件 ID，重复投递天然幂等
			if err := a.comments.Like(ctx, ev.EntityID, ev.ActorKey, ev.EventID); err != nil {
				result.fail(ev, err)
			} else {
				result.ok(ev)
			}
		case queue.ActionCommentUnlike:
			if err := a.comments.Unlike(ctx, ev.EntityID, ev.ActorKey); err != nil {
				result.fail(ev, err)
			} else {
				result.ok(ev)
			}
		case queue.ActionCommentDelete:
			if err := a.comments.Delete(ctx, ev.EntityID); err != nil {
				result.fail(ev, err)
			} else {
				result.ok(ev)
			}
		default:
			result.fail(ev, fmt.Errorf("unsupported comment action %q", ev.Action))
		}
	}

	a.applyCreates(ctx, creates, result)
	return result
}

func (a *CommentApplier) applyCreates(ctx context.Context, creates []queue.Event, result *ApplyResult) {
	if len(creates) == 0 {
		return
	}

	rows := make([]*model.Comment, len(creates))
	for i, ev := range creates {
		rows[i] = commentRow(ev)
	}

	err := a.comments.CreateBatch(ctx, rows)
	if err == nil {
		for _, ev := range creates {
			result.ok(ev)
		}
		return
	}
	logger.Warn("comment applier: batch insert failed, retrying per event",
		zap.Int("batch_size", len(creates)), zap.Error(err))

	for _, ev := range creates {
		if err := a.comments.Create(ctx, commentRow(ev)); err != nil {
			result.fail(ev, err)
		} else {
			result.ok(ev)
		}
	}
}

func commentRow(ev queue.Event) *model.Comment {
	var parent *string
	if ev.Payload.ParentID != "" {
		p := ev.Payload.ParentID
		parent = &p
	}
	return &model.Comment{
		ID:       ev.EntityID,
		ClipID:   ev.Payload.ClipID,
		ActorKey: ev.ActorKey,
		ParentID: parent,
		Body:     ev.Payload.Body,
	}
}

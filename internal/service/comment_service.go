package service

import (
	"context"
	"errors"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/clipvote/internal/model"
	"github.com/d60-Lab/clipvote/internal/queue"
	"github.com/d60-Lab/clipvote/internal/repository"
	"github.com/d60-Lab/clipvote/pkg/logger"
)

var (
	ErrCommentNotFound  = errors.New("comment not found")
	ErrNotCommentAuthor = errors.New("not the comment author")
)

// CommentService 评论入口。评论 ID 在入队前生成并立即返回给调用方，
// 行本身由 worker 异步落库，因此新评论是最终可见而非立即可见。
// 对在途评论的点赞没问题：同一队列先 create 后 like，顺序有保证。
type CommentService interface {
	Create(ctx context.Context, clipID, actorKey, parentID, body string) (commentID string, err error)
	Like(ctx context.Context, commentID, actorKey string) error
	Unlike(ctx context.Context, commentID, actorKey string) error
	// Delete 只允许作者删除，据关系库校验归属；还没落库的评论删不了。
	Delete(ctx context.Context, commentID, actorKey string) error
	Get(ctx context.Context, id string) (*model.Comment, error)
	ListByClip(ctx context.Context, clipID string, page, pageSize int) ([]*model.Comment, error)
}

type commentService struct {
	comments repository.CommentRepository
	clips    repository.ClipRepository
	q        *queue.Queue
	async    bool
}

func NewCommentService(comments repository.CommentRepository, clips repository.ClipRepository, q *queue.Queue, async bool) CommentService {
	return &commentService{comments: comments, clips: clips, q: q, async: async}
}

func (s *commentService) Create(ctx context.Context, clipID, actorKey, parentID, body string) (string, error) {
	exists, err := s.clips.Exists(ctx, clipID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrClipNotFound
	}

	// 父评论不查库：它可能还在队列里没落地，查了反而误伤刚发的楼中楼
	commentID := uuid.New().String()
	ev := queue.NewEvent(queue.ActionCommentCreate, commentID, actorKey, queue.Payload{
		ClipID:   clipID,
		ParentID: parentID,
		Body:     body,
	})
	s.dispatch(ctx, ev)
	metrics.GetOrCreateCounter(`clipvote_comments_total{action="create"}`).Inc()
	return commentID, nil
}

func (s *commentService) Like(ctx context.Context, commentID, actorKey string) error {
	ev := queue.NewEvent(queue.ActionCommentLike, commentID, actorKey, queue.Payload{})
	s.dispatch(ctx, ev)
	metrics.GetOrCreateCounter(`clipvote_comments_total{action="like"}`).Inc()
	return nil
}

func (s *commentService) Unlike(ctx context.Context, commentID, actorKey string) error {
	ev := queue.NewEvent(queue.ActionCommentUnlike, commentID, actorKey, queue.Payload{})
	s.dispatch(ctx, ev)
	metrics.GetOrCreateCounter(`clipvote_comments_total{action="unlike"}`).Inc()
	return nil
}

func (s *commentService) Delete(ctx context.Context, commentID, actorKey string) error {
	existing, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		return err
	}
	if existing.ActorKey != actorKey {
		return ErrNotCommentAuthor
	}

	ev := queue.NewEvent(queue.ActionCommentDelete, commentID, actorKey, queue.Payload{})
	s.dispatch(ctx, ev)
	metrics.GetOrCreateCounter(`clipvote_comments_total{action="delete"}`).Inc()
	return nil
}

func (s *commentService) Get(ctx context.Context, id string) (*model.Comment, error) {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommentNotFound
		}
		return nil, err
	}
	return comment, nil
}

func (s *commentService) ListByClip(ctx context.Context, clipID string, page, pageSize int) ([]*model.Comment, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.comments.ListByClip(ctx, clipID, offset, pageSize)
}

func (s *commentService) dispatch(ctx context.Context, ev queue.Event) {
	if s.async {
		err := s.q.Push(ctx, ev)
		if err == nil {
			return
		}
		logger.Warn("comment service: enqueue failed, applying synchronously",
			zap.String("event_id", ev.EventID), zap.Error(err))
		metrics.GetOrCreateCounter(`clipvote_enqueue_fallback_total{queue="comments"}`).Inc()
	}
	s.applyDirect(ctx, ev)
}

func (s *commentService) applyDirect(ctx context.Context, ev queue.Event) {
	applier := NewCommentApplier(s.comments)
	res := applier.Apply(ctx, []queue.Event{ev})
	for _, f := range res.Failed {
		logger.Error("comment service: synchronous apply failed",
			zap.String("event_id", f.Event.EventID), zap.String("action", string(f.Event.Action)), zap.Error(f.Err))
	}
}

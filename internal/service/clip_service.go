package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/clipvote/internal/counter"
	"github.com/d60-Lab/clipvote/internal/model"
	"github.com/d60-Lab/clipvote/internal/repository"
)

// ClipService 短视频的创建与查询。查询时把 Redis 里的实时计数一并带出，
// clips 表里的聚合列只是上次同步的落地值，二者短暂不一致是预期行为。
type ClipService interface {
	Create(ctx context.Context, authorID, title string) (*model.Clip, error)
	// Get 返回 clip 与实时计数；从未有过投票的 clip 计数为 nil。
	Get(ctx context.Context, id string) (*model.Clip, *counter.Snapshot, error)
	List(ctx context.Context, page, pageSize int) ([]*model.Clip, error)
}

type clipService struct {
	clips    repository.ClipRepository
	counters *counter.Store
}

func NewClipService(clips repository.ClipRepository, counters *counter.Store) ClipService {
	return &clipService{clips: clips, counters: counters}
}

func (s *clipService) Create(ctx context.Context, authorID, title string) (*model.Clip, error) {
	clip := &model.Clip{
		ID:       uuid.New().String(),
		AuthorID: authorID,
		Title:    title,
	}
	if err := s.clips.Create(ctx, clip); err != nil {
		return nil, err
	}
	return clip, nil
}

func (s *clipService) Get(ctx context.Context, id string) (*model.Clip, *counter.Snapshot, error) {
	clip, err := s.clips.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrClipNotFound
		}
		return nil, nil, err
	}

	counts, err := s.counters.GetCounts(ctx, []string{id})
	if err != nil {
		return nil, nil, err
	}
	if snap, ok := counts[id]; ok {
		return clip, &snap, nil
	}
	return clip, nil, nil
}

func (s *clipService) List(ctx context.Context, page, pageSize int) ([]*model.Clip, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.clips.List(ctx, offset, pageSize)
}

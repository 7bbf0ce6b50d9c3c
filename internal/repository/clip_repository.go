package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/clipvote/internal/model"
)

type ClipRepository interface {
	Create(ctx context.Context, clip *model.Clip) error
	GetByID(ctx context.Context, id string) (*model.Clip, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, offset, limit int) ([]*model.Clip, error)
	UpsertCounts(ctx context.Context, rows []*model.Clip) error
}

type clipRepository struct {
	db *gorm.DB
}

func NewClipRepository(db *gorm.DB) ClipRepository { return &clipRepository{db: db} }

func (r *clipRepository) Create(ctx context.Context, clip *model.Clip) error {
	return r.db.WithContext(ctx).Create(clip).Error
}

func (r *clipRepository) GetByID(ctx context.Context, id string) (*model.Clip, error) {
	var clip model.Clip
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&clip).Error; err != nil {
		return nil, err
	}
	return &clip, nil
}

func (r *clipRepository) Exists(ctx context.Context, id string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Clip{}).
		Where("id = ?", id).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *clipRepository) List(ctx context.Context, offset, limit int) ([]*model.Clip, error) {
	var res []*model.Clip
	err := r.db.WithContext(ctx).
		Order("weighted_score DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

// UpsertCounts 批量覆盖写聚合列。覆盖写（而非增量）保证同步任务重跑安全，
// 最后一次快照直接胜出。
func (r *clipRepository) UpsertCounts(ctx context.Context, rows []*model.Clip) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vote_count", "weighted_score", "updated_at"}),
	}).Create(&rows).Error
}

package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/clipvote/internal/model"
)

type VoteRepository interface {
	Create(ctx context.Context, vote *model.Vote) error
	CreateBatch(ctx context.Context, votes []*model.Vote) error
	Delete(ctx context.Context, clipID, actorKey string) error
	GetByActor(ctx context.Context, clipID, actorKey string) (*model.Vote, error)
	CountForClip(ctx context.Context, clipID string) (int64, error)
}

type voteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) VoteRepository { return &voteRepository{db: db} }

func (r *voteRepository) Create(ctx context.Context, vote *model.Vote) error {
	// 幂等：同一事件重复投递、同一用户重复投票都不报错
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(vote).Error
}

func (r *voteRepository) CreateBatch(ctx context.Context, votes []*model.Vote) error {
	if len(votes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&votes).Error
}

func (r *voteRepository) Delete(ctx context.Context, clipID, actorKey string) error {
	// 撤票：行不存在视为已完成
	return r.db.WithContext(ctx).
		Where("clip_id = ? AND actor_key = ?", clipID, actorKey).
		Delete(&model.Vote{}).Error
}

func (r *voteRepository) GetByActor(ctx context.Context, clipID, actorKey string) (*model.Vote, error) {
	var vote model.Vote
	err := r.db.WithContext(ctx).
		Where("clip_id = ? AND actor_key = ?", clipID, actorKey).
		First(&vote).Error
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (r *voteRepository) CountForClip(ctx context.Context, clipID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Vote{}).
		Where("clip_id = ?", clipID).
		Count(&cnt).Error
	return cnt, err
}

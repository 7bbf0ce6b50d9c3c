package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/clipvote/internal/model"
)

type CommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) error
	CreateBatch(ctx context.Context, comments []*model.Comment) error
	Like(ctx context.Context, commentID, actorKey, likeID string) error
	Unlike(ctx context.Context, commentID, actorKey string) error
	Delete(ctx context.Context, commentID string) error
	GetByID(ctx context.Context, id string) (*model.Comment, error)
	ListByClip(ctx context.Context, clipID string, offset, limit int) ([]*model.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository { return &commentRepository{db: db} }

func (r *commentRepository) Create(ctx context.Context, comment *model.Comment) error {
	// 评论 ID 由入队侧生成，重复投递按主键冲突忽略
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(comment).Error
}

func (r *commentRepository) CreateBatch(ctx context.Context, comments []*model.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&comments).Error
}

func (r *commentRepository) Like(ctx context.Context, commentID, actorKey, likeID string) error {
	// 点赞行插入成功才加计数，重复点赞不重复计数；
	// 评论已被删除时点赞按成功处理（不留孤儿行）
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&model.Comment{}).Where("id = ?", commentID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return nil
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.CommentLike{
			ID:        likeID,
			CommentID: commentID,
			ActorKey:  actorKey,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&model.Comment{}).
			Where("id = ?", commentID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
}

func (r *commentRepository) Unlike(ctx context.Context, commentID, actorKey string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("comment_id = ? AND actor_key = ?", commentID, actorKey).
			Delete(&model.CommentLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&model.Comment{}).
			Where("id = ? AND like_count > 0", commentID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
}

func (r *commentRepository) Delete(ctx context.Context, commentID string) error {
	// 连同点赞一起删，重复删除为空操作
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("comment_id = ?", commentID).Delete(&model.CommentLike{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", commentID).Delete(&model.Comment{}).Error
	})
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	var comment model.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) ListByClip(ctx context.Context, clipID string, offset, limit int) ([]*model.Comment, error) {
	var res []*model.Comment
	err := r.db.WithContext(ctx).
		Where("clip_id = ?", clipID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

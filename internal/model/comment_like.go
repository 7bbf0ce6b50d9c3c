package model

import "time"

// CommentLike 评论点赞（重复点赞靠唯一键吸收，视为成功）
type CommentLike struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	CommentID string `gorm:"type:varchar(36);index:idx_clike_comment;uniqueIndex:ux_clike_comment_actor;not null"`
	ActorKey  string `gorm:"type:varchar(128);uniqueIndex:ux_clike_comment_actor;not null"`
	// ux_clike_comment_actor = (comment_id, actor_key)
	CreatedAt time.Time
}

func (CommentLike) TableName() string { return "comment_likes" }

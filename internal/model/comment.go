package model

import "time"

// Comment 评论。ID 由入口生成（uuid），worker 重复投递时按主键幂等去重。
type Comment struct {
	ID        string  `gorm:"primaryKey;type:varchar(36)"`
	ClipID    string  `gorm:"type:varchar(36);index:idx_comment_clip;not null"`
	ActorKey  string  `gorm:"type:varchar(128);not null"`
	ParentID  *string `gorm:"type:varchar(36);index:idx_comment_parent"`
	Body      string  `gorm:"type:text"`
	LikeCount int64   `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Comment) TableName() string { return "comments" }

package model

import "time"

// Vote 单票记录（actor 对 clip 的加权票）
type Vote struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	ClipID   string `gorm:"type:varchar(36);index:idx_vote_clip;uniqueIndex:ux_vote_clip_actor;not null"`
	ActorKey string `gorm:"type:varchar(128);uniqueIndex:ux_vote_clip_actor;not null"`
	Weight   int64  `gorm:"not null;default:1"`
	// 复合唯一键，同一 actor 对同一 clip 只留一票
	// ux_vote_clip_actor = (clip_id, actor_key)
	CreatedAt time.Time
}

func (Vote) TableName() string { return "votes" }

package model

import "time"

// Clip 短视频主体。vote_count / weighted_score 为聚合列，
// 只由 Counter Synchronizer 以覆盖写方式落地（见 service.CounterSynchronizer）。
type Clip struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	AuthorID      string `gorm:"type:varchar(36);index:idx_clip_author"`
	Title         string `gorm:"type:varchar(255)"`
	VoteCount     int64  `gorm:"not null;default:0"`
	WeightedScore int64  `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Clip) TableName() string { return "clips" }

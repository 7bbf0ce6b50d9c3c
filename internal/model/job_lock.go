package model

import "time"

// JobLock 分布式锁行。job_name 上的主键约束就是互斥的根据：
// 获取锁 = 插入行，冲突即他人持有；绝不能做先查后写。
type JobLock struct {
	JobName    string `gorm:"primaryKey;type:varchar(64)"`
	LockID     string `gorm:"type:varchar(36);not null"`
	AcquiredAt time.Time
	ExpiresAt  time.Time `gorm:"index:idx_job_lock_expires;not null"`
}

func (JobLock) TableName() string { return "job_locks" }

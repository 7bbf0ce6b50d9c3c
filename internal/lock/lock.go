package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/clipvote/internal/model"
)

// Manager hands out TTL-bound named locks backed by the job_locks table.
// Mutual exclusion comes entirely from the primary key on job_name: whoever
// gets the insert in owns the lock, everyone else sees a duplicate-key
// error. There is no read-then-write step anywhere, so two processes
// racing the same name can never both win.
type Manager interface {
	// Acquire tries to take the named lock for ttl. It returns
	// (true, lockID, nil) when this caller now holds the lock and
	// (false, "", nil) when another holder has it. The error return is
	// reserved for infrastructure failures.
	Acquire(ctx context.Context, jobName string, ttl time.Duration) (bool, string, error)

	// Release drops the named lock if lockID still owns it. A stale or
	// foreign lockID is a no-op and reports released=false.
	Release(ctx context.Context, jobName, lockID string) (bool, error)
}

type manager struct {
	db *gorm.DB
}

// NewManager requires a DB opened with TranslateError enabled, otherwise
// the duplicate-key probe cannot be told apart from real failures.
func NewManager(db *gorm.DB) Manager {
	return &manager{db: db}
}

func (m *manager) Acquire(ctx context.Context, jobName string, ttl time.Duration) (bool, string, error) {
	now := time.Now().UTC()

	// Reap an expired holder first. Deleting only rows past their
	// expires_at keeps a live lock untouched; if several candidates race
	// this delete, the insert below still admits exactly one of them.
	if err := m.db.WithContext(ctx).
		Where("job_name = ? AND expires_at <= ?", jobName, now).
		Delete(&model.JobLock{}).Error; err != nil {
		return false, "", fmt.Errorf("lock %s: reap expired: %w", jobName, err)
	}

	row := model.JobLock{
		JobName:    jobName,
		LockID:     uuid.New().String(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Held by a live owner. Expected outcome, not a failure.
			return false, "", nil
		}
		return false, "", fmt.Errorf("lock %s: insert: %w", jobName, err)
	}
	return true, row.LockID, nil
}

func (m *manager) Release(ctx context.Context, jobName, lockID string) (bool, error) {
	res := m.db.WithContext(ctx).
		Where("job_name = ? AND lock_id = ?", jobName, lockID).
		Delete(&model.JobLock{})
	if res.Error != nil {
		return false, fmt.Errorf("lock %s: release: %w", jobName, res.Error)
	}
	return res.RowsAffected > 0, nil
}

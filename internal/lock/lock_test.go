package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/clipvote/internal/model"
)

func setupLockDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// Every pool connection gets its own :memory: database, so pin the
	// pool to one connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.JobLock{}))
	return db
}

func TestAcquireAndRelease(t *testing.T) {
	mgr := NewManager(setupLockDB(t))
	ctx := context.Background()

	ok, lockID, err := mgr.Acquire(ctx, "drain:votes", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, lockID)

	ok2, _, err := mgr.Acquire(ctx, "drain:votes", time.Minute)
	require.NoError(t, err)
	require.False(t, ok2)

	released, err := mgr.Release(ctx, "drain:votes", lockID)
	require.NoError(t, err)
	require.True(t, released)

	ok3, _, err := mgr.Acquire(ctx, "drain:votes", time.Minute)
	require.NoError(t, err)
	require.True(t, ok3)
}

func TestExpiredLockIsReclaimed(t *testing.T) {
	mgr := NewManager(setupLockDB(t))
	ctx := context.Background()

	ok, staleID, err := mgr.Acquire(ctx, "drain:votes", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)

	ok, freshID, err := mgr.Acquire(ctx, "drain:votes", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, staleID, freshID)

	// The stale holder's release must not drop the new owner's lock.
	released, err := mgr.Release(ctx, "drain:votes", staleID)
	require.NoError(t, err)
	require.False(t, released)

	ok, _, err = mgr.Acquire(ctx, "drain:votes", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReleaseRequiresOwnership(t *testing.T) {
	mgr := NewManager(setupLockDB(t))
	ctx := context.Background()

	ok, lockID, err := mgr.Acquire(ctx, "sync:counters", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := mgr.Release(ctx, "sync:counters", "not-the-owner")
	require.NoError(t, err)
	require.False(t, released)

	ok, _, err = mgr.Acquire(ctx, "sync:counters", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	released, err = mgr.Release(ctx, "sync:counters", lockID)
	require.NoError(t, err)
	require.True(t, released)
}

func TestLocksAreIndependentPerJob(t *testing.T) {
	mgr := NewManager(setupLockDB(t))
	ctx := context.Background()

	ok, _, err := mgr.Acquire(ctx, "drain:votes", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = mgr.Acquire(ctx, "drain:comments", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConcurrentAcquireAdmitsOne(t *testing.T) {
	mgr := NewManager(setupLockDB(t))
	ctx := context.Background()

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := mgr.Acquire(ctx, "drain:votes", time.Minute)
			require.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

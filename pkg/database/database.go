package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/clipvote/config"
	"github.com/d60-Lab/clipvote/internal/model"
)

// InitDB 初始化 Postgres 连接池。
// TranslateError 必须开启：分布式锁依赖 gorm.ErrDuplicatedKey 识别唯一键冲突。
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// AutoMigrate 建表（本地/测试环境使用；线上走迁移脚本）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Clip{},
		&model.Vote{},
		&model.Comment{},
		&model.CommentLike{},
		&model.JobLock{},
	)
}

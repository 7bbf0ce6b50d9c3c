package logger

import (
	"go.uber.org/zap"
)

var (
	log     = zap.NewNop()
	skipLog = zap.NewNop()
)

// Init 按运行模式初始化全局 logger（release=json 生产配置，其余为开发配置）
func Init(mode string) error {
	var (
		l   *zap.Logger
		err error
	)
	if mode == "release" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return err
	}
	log = l
	// 包级函数多一层调用栈，caller 需要跳过
	skipLog = l.WithOptions(zap.AddCallerSkip(1))
	return nil
}

// L 返回底层 *zap.Logger（中间件等需要直接持有时使用）
func L() *zap.Logger { return log }

func Debug(msg string, fields ...zap.Field) { skipLog.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { skipLog.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { skipLog.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { skipLog.Error(msg, fields...) }

func Sync() { _ = log.Sync() }

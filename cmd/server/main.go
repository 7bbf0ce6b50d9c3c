package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/config"
	"github.com/d60-Lab/clipvote/internal/api"
	"github.com/d60-Lab/clipvote/internal/api/handler"
	"github.com/d60-Lab/clipvote/internal/counter"
	"github.com/d60-Lab/clipvote/internal/lock"
	"github.com/d60-Lab/clipvote/internal/queue"
	"github.com/d60-Lab/clipvote/internal/repository"
	"github.com/d60-Lab/clipvote/internal/service"
	"github.com/d60-Lab/clipvote/pkg/cache"
	"github.com/d60-Lab/clipvote/pkg/database"
	"github.com/d60-Lab/clipvote/pkg/logger"
	"github.com/d60-Lab/clipvote/pkg/telemetry"
)

// @title       ClipVote API
// @version     1.0
// @description 短视频加权投票与评论服务（写后置事件管道）
// @BasePath    /
func main() {
	// .env 只在本地开发存在，缺失不算错误
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := logger.Init(cfg.Server.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sentryEnabled := cfg.Sentry.DSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			TracesSampleRate: 0.1,
		}); err != nil {
			logger.Warn("sentry 初始化失败，按关闭处理", zap.Error(err))
			sentryEnabled = false
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	shutdownTrace, err := telemetry.Init(ctx, cfg)
	if err != nil {
		logger.Error("init telemetry", zap.Error(err))
		return
	}
	defer func() {
		if err := shutdownTrace(context.Background()); err != nil {
			logger.Warn("shutdown telemetry", zap.Error(err))
		}
	}()

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("init database", zap.Error(err))
		return
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("auto migrate", zap.Error(err))
		return
	}

	rdb, err := cache.InitRedis(cfg)
	if err != nil {
		logger.Error("init redis", zap.Error(err))
		return
	}
	defer rdb.Close()

	// 存储原语
	counters := counter.New(rdb)
	voteQueue := queue.New(rdb, queue.VoteQueue)
	commentQueue := queue.New(rdb, queue.CommentQueue)
	locks := lock.NewManager(db)

	// 仓储
	clips := repository.NewClipRepository(db)
	votes := repository.NewVoteRepository(db)
	comments := repository.NewCommentRepository(db)

	// 管道：排水器 + 计数同步
	syncer := service.NewCounterSynchronizer(counters, clips)
	voteProcessor := service.NewQueueProcessor(
		voteQueue, service.NewVoteApplier(votes), locks,
		cfg.Pipeline.Enabled, cfg.Pipeline.BatchSize, cfg.Pipeline.MaxRetries, cfg.Pipeline.LockTTL,
	).WithSynchronizer(syncer)
	commentProcessor := service.NewQueueProcessor(
		commentQueue, service.NewCommentApplier(comments), locks,
		cfg.Pipeline.Enabled, cfg.Pipeline.BatchSize, cfg.Pipeline.MaxRetries, cfg.Pipeline.LockTTL,
	)
	processors := map[string]*service.QueueProcessor{
		queue.VoteQueue:    voteProcessor,
		queue.CommentQueue: commentProcessor,
	}
	queues := map[string]*queue.Queue{
		queue.VoteQueue:    voteQueue,
		queue.CommentQueue: commentQueue,
	}
	syncJob := service.NewCounterSyncJob(syncer, locks, cfg.Pipeline.LockTTL)

	// 业务服务
	clipService := service.NewClipService(clips, counters)
	voteService := service.NewVoteService(rdb, counters, votes, clips, voteQueue, cfg.Pipeline.Enabled)
	commentService := service.NewCommentService(comments, clips, commentQueue, cfg.Pipeline.Enabled)

	h := handler.New(clipService, voteService, commentService, processors, queues, syncJob, db, rdb)
	r := api.SetupRouter(cfg, h, sentryEnabled)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("mode", cfg.Server.Mode),
			zap.Bool("pipeline_enabled", cfg.Pipeline.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

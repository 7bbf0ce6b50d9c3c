package handler

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/clipvote/internal/queue"
	"github.com/d60-Lab/clipvote/internal/service"
)

// Handler 聚合全部 HTTP 依赖
type Handler struct {
	clipService    service.ClipService
	voteService    service.VoteService
	commentService service.CommentService

	processors map[string]*service.QueueProcessor
	queues     map[string]*queue.Queue
	syncJob    *service.CounterSyncJob

	db  *gorm.DB
	rdb *redis.Client
}

func New(
	clipService service.ClipService,
	voteService service.VoteService,
	commentService service.CommentService,
	processors map[string]*service.QueueProcessor,
	queues map[string]*queue.Queue,
	syncJob *service.CounterSyncJob,
	db *gorm.DB,
	rdb *redis.Client,
) *Handler {
	return &Handler{
		clipService:    clipService,
		voteService:    voteService,
		commentService: commentService,
		processors:     processors,
		queues:         queues,
		syncJob:        syncJob,
		db:             db,
		rdb:            rdb,
	}
}

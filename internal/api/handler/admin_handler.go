package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/clipvote/internal/service"
	"github.com/d60-Lab/clipvote/pkg/logger"
	"github.com/d60-Lab/clipvote/pkg/response"
)

// DrainQueue 触发一轮队列排水。外部 cron 周期调用，重叠触发靠锁吸收。
// @Summary 触发队列处理（cron）
// @Tags 运维
// @Produce json
// @Param name path string true "队列名 votes|comments"
// @Success 200 {object} response.Response
// @Success 202 {object} response.Response "锁被占用或管道关闭，本轮跳过"
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /internal/queues/{name}/drain [post]
func (h *Handler) DrainQueue(c *gin.Context) {
	p, ok := h.processors[c.Param("name")]
	if !ok {
		response.NotFound(c, "unknown queue")
		return
	}

	res, err := p.Run(c.Request.Context())
	if err != nil {
		logger.Error("drain run failed", zap.String("queue", c.Param("name")), zap.Error(err))
		response.InternalError(c, err.Error())
		return
	}
	switch res.Status {
	case service.RunSkippedLock:
		response.Accepted(c, "skipped: another run holds the lock", res)
	case service.RunDisabled:
		response.Accepted(c, "skipped: pipeline disabled", res)
	default:
		response.Success(c, res)
	}
}

// SyncCounters 触发一轮计数同步。
// @Summary 触发计数同步（cron）
// @Tags 运维
// @Produce json
// @Success 200 {object} response.Response
// @Success 202 {object} response.Response "锁被占用，本轮跳过"
// @Failure 500 {object} response.Response
// @Router /internal/sync [post]
func (h *Handler) SyncCounters(c *gin.Context) {
	res, err := h.syncJob.Run(c.Request.Context())
	if err != nil {
		logger.Error("counter sync run failed", zap.Error(err))
		response.InternalError(c, err.Error())
		return
	}
	if res.Status == service.RunSkippedLock {
		response.Accepted(c, "skipped: another run holds the lock", res)
		return
	}
	response.Success(c, res)
}

// QueueHealth 队列深度与最近处理时间
// @Summary 队列健康指标
// @Tags 运维
// @Produce json
// @Param name path string true "队列名 votes|comments"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /internal/queues/{name}/health [get]
func (h *Handler) QueueHealth(c *gin.Context) {
	q, ok := h.queues[c.Param("name")]
	if !ok {
		response.NotFound(c, "unknown queue")
		return
	}
	health, err := q.Health(c.Request.Context())
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, health)
}

// ListDeadLetters 查看死信（只读，重放是人工操作）
// @Summary 死信列表
// @Tags 运维
// @Produce json
// @Param name path string true "队列名 votes|comments"
// @Param limit query int false "条数上限" default(50)
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /internal/queues/{name}/dead-letters [get]
func (h *Handler) ListDeadLetters(c *gin.Context) {
	q, ok := h.queues[c.Param("name")]
	if !ok {
		response.NotFound(c, "unknown queue")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := q.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"count": len(entries), "entries": entries})
}

// Healthz 存活探针：关系库和 Redis 都可达才算健康
// @Summary 健康检查
// @Tags 运维
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok", "redis": "ok"}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil {
		status["database"] = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		status["database"] = err.Error()
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
		healthy = false
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code: http.StatusServiceUnavailable, Msg: "degraded", Data: status,
		})
		return
	}
	response.Success(c, status)
}

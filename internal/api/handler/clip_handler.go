package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/clipvote/internal/middleware"
	"github.com/d60-Lab/clipvote/internal/service"
	"github.com/d60-Lab/clipvote/pkg/response"
)

type createClipRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// CreateClip 发布新视频
// @Summary 发布视频
// @Tags 视频
// @Accept json
// @Produce json
// @Param request body createClipRequest true "视频信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/clips [post]
func (h *Handler) CreateClip(c *gin.Context) {
	var req createClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	clip, err := h.clipService.Create(c.Request.Context(), middleware.ActorKey(c), req.Title)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, clip)
}

// GetClip 查询单个视频及实时计数
// @Summary 查询视频（带实时票数）
// @Tags 视频
// @Produce json
// @Param id path string true "视频ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/clips/{id} [get]
func (h *Handler) GetClip(c *gin.Context) {
	clip, tally, err := h.clipService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrClipNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"clip": clip, "live_tally": tally})
}

// ListClips 按加权分排序分页列出视频
// @Summary 视频列表
// @Tags 视频
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response
// @Router /api/v1/clips [get]
func (h *Handler) ListClips(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	list, err := h.clipService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

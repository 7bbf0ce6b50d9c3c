package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/clipvote/internal/middleware"
	"github.com/d60-Lab/clipvote/internal/service"
	"github.com/d60-Lab/clipvote/pkg/response"
)

type createCommentRequest struct {
	Body     string `json:"body" binding:"required,max=2000"`
	ParentID string `json:"parent_id" binding:"omitempty,entityid"`
}

// CreateComment 发评论。立即返回评论 ID，行由 worker 异步落库，
// 短时间内列表里查不到是预期行为。
// @Summary 发表评论（异步落库）
// @Tags 评论
// @Accept json
// @Produce json
// @Param id path string true "视频ID"
// @Param request body createCommentRequest true "评论内容"
// @Success 202 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/clips/{id}/comments [post]
func (h *Handler) CreateComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	commentID, err := h.commentService.Create(c.Request.Context(), c.Param("id"), middleware.ActorKey(c), req.ParentID, req.Body)
	if err != nil {
		if errors.Is(err, service.ErrClipNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}
	response.Accepted(c, "comment queued", gin.H{"comment_id": commentID})
}

// ListComments 查询某视频的评论（已落库部分）
// @Summary 评论列表
// @Tags 评论
// @Param id path string true "视频ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response
// @Router /api/v1/clips/{id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	list, err := h.commentService.ListByClip(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// GetComment 查询单条评论
// @Summary 查询评论
// @Tags 评论
// @Param id path string true "评论ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/comments/{id} [get]
func (h *Handler) GetComment(c *gin.Context) {
	comment, err := h.commentService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrCommentNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, comment)
}

// LikeComment 点赞评论（重复点赞幂等）
// @Summary 点赞评论
// @Tags 评论
// @Param id path string true "评论ID"
// @Success 202 {object} response.Response
// @Router /api/v1/comments/{id}/like [post]
func (h *Handler) LikeComment(c *gin.Context) {
	if err := h.commentService.Like(c.Request.Context(), c.Param("id"), middleware.ActorKey(c)); err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Accepted(c, "like queued", nil)
}

// UnlikeComment 取消点赞
// @Summary 取消点赞
// @Tags 评论
// @Param id path string true "评论ID"
// @Success 202 {object} response.Response
// @Router /api/v1/comments/{id}/like [delete]
func (h *Handler) UnlikeComment(c *gin.Context) {
	if err := h.commentService.Unlike(c.Request.Context(), c.Param("id"), middleware.ActorKey(c)); err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Accepted(c, "unlike queued", nil)
}

// DeleteComment 删除自己的评论
// @Summary 删除评论（仅作者）
// @Tags 评论
// @Param id path string true "评论ID"
// @Success 202 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/comments/{id} [delete]
func (h *Handler) DeleteComment(c *gin.Context) {
	err := h.commentService.Delete(c.Request.Context(), c.Param("id"), middleware.ActorKey(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCommentNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrNotCommentAuthor):
			response.Forbidden(c, err.Error())
		default:
			response.InternalError(c, err.Error())
		}
		return
	}
	response.Accepted(c, "delete queued", nil)
}

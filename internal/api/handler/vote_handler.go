package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/clipvote/internal/middleware"
	"github.com/d60-Lab/clipvote/internal/service"
	"github.com/d60-Lab/clipvote/pkg/response"
)

type castVoteRequest struct {
	Weight int64 `json:"weight" binding:"required,min=1,max=10"`
}

// CastVote 投一票（写路径只碰 Redis，落库异步）
// @Summary 投票
// @Tags 投票
// @Accept json
// @Produce json
// @Param id path string true "视频ID"
// @Param request body castVoteRequest true "票重 1-10"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/clips/{id}/votes [post]
func (h *Handler) CastVote(c *gin.Context) {
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	accepted, err := h.voteService.Cast(c.Request.Context(), c.Param("id"), middleware.ActorKey(c), req.Weight)
	if err != nil {
		if errors.Is(err, service.ErrClipNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}
	// 重复投票也算成功，accepted=false 告知这票没被重复计入
	response.Success(c, gin.H{"accepted": accepted})
}

// RevokeVote 撤回自己的票
// @Summary 撤票
// @Tags 投票
// @Produce json
// @Param id path string true "视频ID"
// @Success 200 {object} response.Response
// @Router /api/v1/clips/{id}/votes [delete]
func (h *Handler) RevokeVote(c *gin.Context) {
	revoked, err := h.voteService.Revoke(c.Request.Context(), c.Param("id"), middleware.ActorKey(c))
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"revoked": revoked})
}

// MyBallot 查询自己是否投过票
// @Summary 我的投票状态
// @Tags 投票
// @Produce json
// @Param id path string true "视频ID"
// @Success 200 {object} response.Response
// @Router /api/v1/clips/{id}/votes/me [get]
func (h *Handler) MyBallot(c *gin.Context) {
	voted, err := h.voteService.HasVoted(c.Request.Context(), c.Param("id"), middleware.ActorKey(c))
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"has_voted": voted})
}

type tallyQueryRequest struct {
	ClipIDs []string `json:"clip_ids" binding:"required,min=1,max=100,dive,entityid"`
}

// QueryTallies 批量查实时计数
// @Summary 批量查询实时票数
// @Tags 投票
// @Accept json
// @Produce json
// @Param request body tallyQueryRequest true "视频ID列表（上限100）"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/tallies/query [post]
func (h *Handler) QueryTallies(c *gin.Context) {
	var req tallyQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	counts, err := h.voteService.Tally(c.Request.Context(), req.ClipIDs)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	// 没有投票记录的 clip 不在 tallies 里，调用方自行当零处理
	response.Success(c, gin.H{"tallies": counts})
}

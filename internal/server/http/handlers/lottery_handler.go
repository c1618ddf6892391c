package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/server/http/dto"
)

// LotteryHandler exposes the lottery closing coordinator.
type LotteryHandler struct {
	facade LotteryFacade
}

// NewLotteryHandler constructs LotteryHandler.
func NewLotteryHandler(facade LotteryFacade) *LotteryHandler {
	return &LotteryHandler{facade: facade}
}

// Prepare handles POST /api/lottery/prepare.
func (h *LotteryHandler) Prepare(c *gin.Context) {
	var req dto.PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	attempt, err := h.facade.PrepareLottery(c.Request.Context(), CurrentActor(c), req.Model())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewAttemptResponse(attempt))
}

// Attempt handles GET /api/lottery/days/:day_id/attempt.
func (h *LotteryHandler) Attempt(c *gin.Context) {
	dayID, ok := dayIDParam(c)
	if !ok {
		return
	}

	attempt, err := h.facade.LotteryAttempt(c.Request.Context(), CurrentActor(c), dayID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAttemptResponse(attempt))
}

// Commit handles POST /api/lottery/days/:day_id/commit.
func (h *LotteryHandler) Commit(c *gin.Context) {
	dayID, ok := dayIDParam(c)
	if !ok {
		return
	}

	var req dto.CommitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "malformed request body")
			return
		}
	}

	result, err := h.facade.CommitLottery(c.Request.Context(), CurrentActor(c), dayID, model.CommitOptions{DeferredOverride: req.DeferredOverride})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewCommitResponse(result))
}

// Cancel handles POST /api/lottery/days/:day_id/cancel.
func (h *LotteryHandler) Cancel(c *gin.Context) {
	dayID, ok := dayIDParam(c)
	if !ok {
		return
	}

	attempt, err := h.facade.CancelLottery(c.Request.Context(), CurrentActor(c), dayID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAttemptResponse(attempt))
}

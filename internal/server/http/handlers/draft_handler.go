package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/server/http/dto"
)

// DraftHandler manages closing draft endpoints.
type DraftHandler struct {
	facade DraftFacade
}

// NewDraftHandler constructs DraftHandler.
func NewDraftHandler(facade DraftFacade) *DraftHandler {
	return &DraftHandler{facade: facade}
}

// Create handles POST /api/drafts.
func (h *DraftHandler) Create(c *gin.Context) {
	var req dto.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	draft, created, err := h.facade.CreateDraft(c.Request.Context(), CurrentActor(c), req.ScopeID, model.DraftKind(req.Kind))
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.NewDraftResponse(draft))
}

// Active handles GET /api/drafts/active.
func (h *DraftHandler) Active(c *gin.Context) {
	h.byScope(c, h.facade.ActiveDraft)
}

// Latest handles GET /api/drafts/latest.
func (h *DraftHandler) Latest(c *gin.Context) {
	h.byScope(c, h.facade.LatestDraft)
}

func (h *DraftHandler) byScope(c *gin.Context, lookup func(context.Context, model.Actor, string) (*model.Draft, error)) {
	scopeID := strings.TrimSpace(c.Query("scope_id"))
	if scopeID == "" {
		badRequest(c, "scope_id is required")
		return
	}

	draft, err := lookup(c.Request.Context(), CurrentActor(c), scopeID)
	if err != nil {
		writeError(c, err)
		return
	}
	if draft == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, dto.NewDraftResponse(draft))
}

// Get handles GET /api/drafts/:id.
func (h *DraftHandler) Get(c *gin.Context) {
	draft, err := h.facade.Draft(c.Request.Context(), CurrentActor(c), c.Param("id"))
	respondDraft(c, draft, err)
}

// Update handles PATCH /api/drafts/:id.
func (h *DraftHandler) Update(c *gin.Context) {
	var req dto.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	result, err := h.facade.UpdateDraft(c.Request.Context(), CurrentActor(c), c.Param("id"), req.Payload, req.ExpectedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	if result.Conflict != nil {
		writeVersionConflict(c, result.Conflict)
		return
	}
	c.JSON(http.StatusOK, dto.NewDraftResponse(result.Draft))
}

// Step handles PUT /api/drafts/:id/step.
func (h *DraftHandler) Step(c *gin.Context) {
	var req dto.StepMarkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	draft, err := h.facade.UpdateStepMarker(c.Request.Context(), CurrentActor(c), c.Param("id"), model.StepMarker(req.StepMarker))
	respondDraft(c, draft, err)
}

func respondDraft(c *gin.Context, draft *model.Draft, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDraftResponse(draft))
}

// MarkFinalizing handles POST /api/drafts/:id/finalizing.
func (h *DraftHandler) MarkFinalizing(c *gin.Context) {
	draft, err := h.facade.MarkFinalizing(c.Request.Context(), CurrentActor(c), c.Param("id"))
	respondDraft(c, draft, err)
}

// RevertFinalizing handles DELETE /api/drafts/:id/finalizing.
func (h *DraftHandler) RevertFinalizing(c *gin.Context) {
	draft, err := h.facade.RevertFinalizing(c.Request.Context(), CurrentActor(c), c.Param("id"))
	respondDraft(c, draft, err)
}

// Finalize handles POST /api/drafts/:id/finalize.
func (h *DraftHandler) Finalize(c *gin.Context) {
	draft, err := h.facade.Finalize(c.Request.Context(), CurrentActor(c), c.Param("id"))
	respondDraft(c, draft, err)
}

// Expire handles POST /api/drafts/:id/expire.
func (h *DraftHandler) Expire(c *gin.Context) {
	draft, err := h.facade.Expire(c.Request.Context(), CurrentActor(c), c.Param("id"))
	respondDraft(c, draft, err)
}

// Settle handles POST /api/drafts/:id/settlement.
func (h *DraftHandler) Settle(c *gin.Context) {
	var req dto.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	settlement, err := h.facade.Settle(c.Request.Context(), CurrentActor(c), c.Param("id"), req.ClosingCash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SettlementResponse{SettlementID: settlement.ID, DraftID: settlement.DraftID})
}

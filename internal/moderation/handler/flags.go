package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/service"
	"go.uber.org/zap"
)

// FlagHandler serves the reviewer workflow: flags, review, summary and policy.
type FlagHandler struct {
	engine *service.Engine
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewFlagHandler creates a new FlagHandler.
func NewFlagHandler(engine *service.Engine, tokens *identity.TokenIssuer, logger *zap.Logger) *FlagHandler {
	return &FlagHandler{engine: engine, tokens: tokens, logger: logger}
}

// Register mounts the flag routes. Reputation is public; everything else
// needs a reviewer token.
func (h *FlagHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/users/:id/reputation", h.Reputation)

	rv := rg.Group("", identity.RequireRole(h.tokens, identity.RoleReviewer))
	{
		rv.POST("/flags", h.FlagContent)
		rv.GET("/flags", h.ListFlags)
		rv.GET("/flags/:id", h.GetFlag)
		rv.POST("/flags/:id/review", h.ReviewFlag)
		rv.POST("/flags/bulk-review", h.BulkReview)
		rv.GET("/risk/summary", h.RiskSummary)
		rv.GET("/policy", h.Policy)
	}
}

// FlagContent handles POST /flags: manual flagging by a reviewer.
func (h *FlagHandler) FlagContent(c *gin.Context) {
	var req model.FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := h.engine.FlagContent(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "flag content", err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// ListFlags handles GET /flags?status=&offset=&limit=.
func (h *FlagHandler) ListFlags(c *gin.Context) {
	offset, limit := paging(c)
	flags, total, err := h.engine.ListFlags(c.Request.Context(), c.Query("status"), offset, limit)
	if err != nil {
		respondError(c, h.logger, "list flags", err)
		return
	}
	if flags == nil {
		flags = []*model.Flag{}
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags, "total": total, "offset": offset})
}

// GetFlag handles GET /flags/:id.
func (h *FlagHandler) GetFlag(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f, err := h.engine.GetFlag(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get flag", err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// ReviewFlag handles POST /flags/:id/review. The reviewer is the token's
// principal.
func (h *FlagHandler) ReviewFlag(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req model.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := h.engine.ReviewFlag(c.Request.Context(), id, req.Action, actorID(c))
	if err != nil {
		respondError(c, h.logger, "review flag", err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// BulkReview handles POST /flags/bulk-review. Partial failure is a 200 with
// the failures listed.
func (h *FlagHandler) BulkReview(c *gin.Context) {
	var req model.BulkReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.engine.BulkReview(c.Request.Context(), &req, actorID(c))
	if err != nil {
		respondError(c, h.logger, "bulk review", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RiskSummary handles GET /risk/summary.
func (h *FlagHandler) RiskSummary(c *gin.Context) {
	s, err := h.engine.RiskSummary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "summarize flags", err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Policy handles GET /policy: the active keyword lists, weights and
// thresholds.
func (h *FlagHandler) Policy(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Policy())
}

// Reputation handles GET /users/:id/reputation.
func (h *FlagHandler) Reputation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	r, err := h.engine.Reputation(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "compute reputation", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

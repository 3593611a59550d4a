package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/service"
	"go.uber.org/zap"
)

// AnalyzeHandler serves content analysis and the auto-moderation gate.
type AnalyzeHandler struct {
	engine *service.Engine
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewAnalyzeHandler creates a new AnalyzeHandler.
func NewAnalyzeHandler(engine *service.Engine, tokens *identity.TokenIssuer, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{engine: engine, tokens: tokens, logger: logger}
}

// Register mounts the analysis and auto-moderation routes.
func (h *AnalyzeHandler) Register(rg *gin.RouterGroup) {
	svc := rg.Group("", identity.RequireRole(h.tokens, identity.RoleService))
	{
		svc.POST("/analyze/ads", h.AnalyzeAd)
		svc.POST("/analyze/users", h.AnalyzeUser)
		svc.POST("/analyze/messages", h.AnalyzeMessage)
		svc.POST("/automod/ads", h.AutoModAd)
		svc.POST("/automod/messages", h.AutoModMessage)
	}
	rg.POST("/analyze/:type/:id", identity.RequireRole(h.tokens, identity.RoleReviewer), h.AnalyzeStored)
}

// AnalyzeAd handles POST /analyze/ads: scores an ad snapshot and flags it
// when suspicious.
func (h *AnalyzeHandler) AnalyzeAd(c *gin.Context) {
	var ad model.Ad
	if err := c.ShouldBindJSON(&ad); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, "analyze ad")(h.engine.AnalyzeAd(c.Request.Context(), &ad))
}

// AnalyzeUser handles POST /analyze/users.
func (h *AnalyzeHandler) AnalyzeUser(c *gin.Context) {
	var u model.User
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, "analyze user")(h.engine.AnalyzeUser(c.Request.Context(), &u))
}

// AnalyzeMessage handles POST /analyze/messages.
func (h *AnalyzeHandler) AnalyzeMessage(c *gin.Context) {
	var m model.Message
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, "analyze message")(h.engine.AnalyzeMessage(c.Request.Context(), &m))
}

// AnalyzeStored handles POST /analyze/:type/:id: loads stored content and
// re-analyzes it.
func (h *AnalyzeHandler) AnalyzeStored(c *gin.Context) {
	ct, err := model.ParseContentType(c.Param("type"))
	if err != nil {
		respondError(c, h.logger, "analyze content", err)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	h.respond(c, "analyze content")(h.engine.Analyze(c.Request.Context(), ct, id))
}

func (h *AnalyzeHandler) respond(c *gin.Context, op string) func(*model.AnalysisResult, error) {
	return func(res *model.AnalysisResult, err error) {
		if err != nil {
			respondError(c, h.logger, op, err)
			return
		}
		status := http.StatusOK
		if res.FlagCreated {
			status = http.StatusCreated
		}
		c.JSON(status, res)
	}
}

// AutoModAd handles POST /automod/ads. Blocked candidates are still a 200;
// the caller enforces the verdict.
func (h *AnalyzeHandler) AutoModAd(c *gin.Context) {
	var ad model.Ad
	if err := c.ShouldBindJSON(&ad); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v, err := h.engine.AutoModAd(c.Request.Context(), &ad)
	if err != nil {
		respondError(c, h.logger, "moderate ad", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// AutoModMessage handles POST /automod/messages.
func (h *AnalyzeHandler) AutoModMessage(c *gin.Context) {
	var m model.Message
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v, err := h.engine.AutoModMessage(c.Request.Context(), &m)
	if err != nil {
		respondError(c, h.logger, "moderate message", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

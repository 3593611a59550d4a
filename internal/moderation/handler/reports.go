package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/service"
	"go.uber.org/zap"
)

// ReportHandler handles HTTP requests for user reports.
type ReportHandler struct {
	reports *service.ReportService
	tokens  *identity.TokenIssuer
	logger  *zap.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.ReportService, tokens *identity.TokenIssuer, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, tokens: tokens, logger: logger}
}

// Register mounts the report routes. Marketplace backends file reports on
// behalf of their users; reviewers work the queue.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/reports", identity.RequireRole(h.tokens, identity.RoleService, identity.RoleReviewer), h.FileReport)

	rv := rg.Group("/reports", identity.RequireRole(h.tokens, identity.RoleReviewer))
	{
		rv.GET("", h.ListReports)
		rv.GET("/:id", h.GetReport)
		rv.PATCH("/:id", h.UpdateReport)
	}
}

// FileReport handles POST /reports.
func (h *ReportHandler) FileReport(c *gin.Context) {
	var req model.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rpt, err := h.reports.File(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "file report", err)
		return
	}
	c.JSON(http.StatusCreated, rpt)
}

// ListReports handles GET /reports?status=&offset=&limit=.
func (h *ReportHandler) ListReports(c *gin.Context) {
	offset, limit := paging(c)
	reports, total, err := h.reports.List(c.Request.Context(), c.Query("status"), offset, limit)
	if err != nil {
		respondError(c, h.logger, "list reports", err)
		return
	}
	if reports == nil {
		reports = []*model.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "total": total, "offset": offset})
}

// GetReport handles GET /reports/:id.
func (h *ReportHandler) GetReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rpt, err := h.reports.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get report", err)
		return
	}
	c.JSON(http.StatusOK, rpt)
}

// UpdateReport handles PATCH /reports/:id: moves the report through its
// lifecycle on behalf of the calling reviewer.
func (h *ReportHandler) UpdateReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req model.UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rpt, err := h.reports.Update(c.Request.Context(), id, &req, actorID(c))
	if err != nil {
		respondError(c, h.logger, "update report", err)
		return
	}
	c.JSON(http.StatusOK, rpt)
}

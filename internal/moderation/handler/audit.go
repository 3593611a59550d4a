package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/auditlog"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"go.uber.org/zap"
)

// AuditHandler exposes read-only endpoints over the moderation audit chain.
type AuditHandler struct {
	log    auditlog.Log
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(log auditlog.Log, tokens *identity.TokenIssuer, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{log: log, tokens: tokens, logger: logger}
}

// Register mounts the audit routes for reviewers.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/audit", identity.RequireRole(h.tokens, identity.RoleReviewer))
	{
		a.GET("", h.Overview)
		a.GET("/verify", h.Verify)
		a.GET("/entries", h.ListEntries)
		a.GET("/entries/:idx", h.GetEntry)
		a.GET("/subjects/:kind/:id", h.SubjectHistory)
	}
}

// Overview handles GET /audit: returns the chain length and current root hash.
func (h *AuditHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.log.Len(ctx)
	if err != nil {
		h.logger.Error("audit Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit log"})
		return
	}
	root, err := h.log.Root(ctx)
	if err != nil {
		h.logger.Error("audit Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": count, "root": root})
}

// Verify handles GET /audit/verify: walks the full chain and reports integrity.
func (h *AuditHandler) Verify(c *gin.Context) {
	if err := h.log.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("audit integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ListEntries handles GET /audit/entries?offset=&limit=: newest first.
func (h *AuditHandler) ListEntries(c *gin.Context) {
	offset, limit := paging(c)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	records, err := h.log.List(c.Request.Context(), offset, limit)
	if err != nil {
		h.logger.Error("audit List", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": records})
}

// GetEntry handles GET /audit/entries/:idx.
func (h *AuditHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}
	rec, err := h.log.Get(c.Request.Context(), idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// SubjectHistory handles GET /audit/subjects/:kind/:id: every record about one
// ad, user, message or report, oldest first.
func (h *AuditHandler) SubjectHistory(c *gin.Context) {
	kind := c.Param("kind")
	if kind != "report" {
		ct, err := model.ParseContentType(kind)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be ad, user, message or report"})
			return
		}
		kind = string(ct)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}

	subject := auditlog.Subject(kind, id)
	records, err := h.log.History(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("audit History", zap.String("subject", subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": subject, "entries": records})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/health"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	checker *health.Checker
}

// NewHealthHandler creates a HealthHandler. checker may be nil, in which case
// the endpoint only reports that the process is up.
func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Healthz handles GET /healthz. It returns 503 while a critical dependency is
// degraded.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if h.checker == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !h.checker.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": h.checker.Snapshot()})
}

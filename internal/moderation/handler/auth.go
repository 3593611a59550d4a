package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"go.uber.org/zap"
)

type tokenRequest struct {
	PrincipalID int64  `json:"principal_id" binding:"required"`
	Secret      string `json:"secret"       binding:"required"`
}

// AuthHandler exchanges principal credentials for access tokens.
type AuthHandler struct {
	directory *identity.Directory
	tokens    *identity.TokenIssuer
	logger    *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(directory *identity.Directory, tokens *identity.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{directory: directory, tokens: tokens, logger: logger}
}

// Register mounts the auth routes.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.Token)
}

// Token handles POST /auth/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.directory.Authenticate(req.PrincipalID, req.Secret)
	if err != nil {
		h.logger.Info("token request rejected", zap.Int64("principal_id", req.PrincipalID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.tokens.Issue(p)
	if err != nil {
		h.logger.Error("issue access token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": tok,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokens.TTL().Seconds()),
		"role":         p.Role,
	})
}

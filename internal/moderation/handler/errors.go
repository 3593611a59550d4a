package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"go.uber.org/zap"
)

// respondError maps service errors to status codes. Anything unrecognised is
// logged and reported as a 500 with a generic message.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var ve *model.ErrValidation
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrAlreadyReviewed), errors.Is(err, repository.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + op})
	}
}

// idParam parses a positive int64 path parameter. It writes the 400 itself
// and returns false on failure.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func paging(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	return offset, limit
}

// actorID returns the principal id of the authenticated caller.
func actorID(c *gin.Context) int64 {
	if claims := identity.ClaimsFromCtx(c); claims != nil {
		return claims.PrincipalID
	}
	return 0
}

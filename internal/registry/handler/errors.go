package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/careerledger/internal/ledger"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"github.com/jmerrifield20/careerledger/internal/registry/repository"
	"github.com/jmerrifield20/careerledger/internal/registry/service"
	"go.uber.org/zap"
)

// writeError maps registry errors onto HTTP responses. op names the failed
// operation in the server log.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var (
		ve     *model.ErrValidation
		orphan *service.OrphanError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.As(err, &orphan):
		logger.Error(op+": record orphaned", zap.String("id", orphan.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "portfolio stored but not indexed; reindex to make it visible",
			"id":    orphan.ID,
		})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "portfolio not found"})
	case errors.Is(err, model.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrContention):
		c.JSON(http.StatusConflict, gin.H{"error": "portfolio is being updated concurrently, retry"})
	case errors.Is(err, service.ErrScanUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "ledger driver cannot enumerate keys"})
	case errors.Is(err, ledger.ErrUnavailable):
		logger.Warn(op+": ledger unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
	default:
		logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

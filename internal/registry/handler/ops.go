package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// availability is satisfied by *service.Registry.
type availability interface {
	Available(ctx context.Context) error
}

// OpsHandler serves liveness, readiness and metrics endpoints.
type OpsHandler struct {
	target  availability
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpsHandler creates an OpsHandler. Readiness pings the ledger through
// target with the given timeout (default 2s).
func NewOpsHandler(target availability, timeout time.Duration, logger *zap.Logger) *OpsHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OpsHandler{target: target, timeout: timeout, logger: logger}
}

// Register mounts /healthz, /readyz and /metrics on r.
func (h *OpsHandler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", MetricsHandler())
}

// Healthz handles GET /healthz and reports that the process is up.
func (h *OpsHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz handles GET /readyz and reports whether the ledger answers.
func (h *OpsHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	if err := h.target.Available(ctx); err != nil {
		h.logger.Warn("readiness: ledger unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "ledger": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "ledger": true})
}

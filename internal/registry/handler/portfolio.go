package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/careerledger/internal/identity"
	"github.com/jmerrifield20/careerledger/internal/registry/model"
	"github.com/jmerrifield20/careerledger/internal/registry/service"
	"go.uber.org/zap"
)

// registrySvc is the interface expected by PortfolioHandler, satisfied by
// *service.Registry.
type registrySvc interface {
	Publish(ctx context.Context, draft model.Draft, owner string) (*model.Record, error)
	LoadAll(ctx context.Context) ([]*model.Record, error)
	Search(ctx context.Context, q string) ([]*model.Record, error)
	Get(ctx context.Context, id string) (*model.Record, error)
	Stats(ctx context.Context) (model.Stats, error)
	FindOrphans(ctx context.Context) ([]string, error)
	Reindex(ctx context.Context, ids []string) ([]string, error)
}

// reviewSvc is satisfied by *service.Review.
type reviewSvc interface {
	Approve(ctx context.Context, id, actor string) (*model.Record, error)
	Reject(ctx context.Context, id, actor string) (*model.Record, error)
}

// PortfolioHandler handles HTTP requests for portfolio records.
type PortfolioHandler struct {
	registry registrySvc
	review   reviewSvc
	tokens   *identity.AccountTokens // nil = X-Account header (development)
	logger   *zap.Logger
}

// NewPortfolioHandler creates a PortfolioHandler. tokens may be nil to accept
// the acting account from the X-Account header.
func NewPortfolioHandler(registry registrySvc, review reviewSvc, tokens *identity.AccountTokens, logger *zap.Logger) *PortfolioHandler {
	return &PortfolioHandler{registry: registry, review: review, tokens: tokens, logger: logger}
}

// Register mounts the portfolio routes on the given router group.
func (h *PortfolioHandler) Register(rg *gin.RouterGroup) {
	account := identity.RequireAccount(h.tokens)

	p := rg.Group("/portfolios")
	{
		p.POST("", account, h.Publish)
		p.GET("", h.List)
		p.GET("/:id", h.Get)
		p.POST("/:id/approve", account, h.Approve)
		p.POST("/:id/reject", account, h.Reject)
	}

	rg.GET("/stats", h.Stats)
	rg.GET("/orphans", h.Orphans)
	rg.POST("/orphans/reindex", account, h.Reindex)
}

// Publish handles POST /portfolios: stores a new pending portfolio owned by
// the acting account.
func (h *PortfolioHandler) Publish(c *gin.Context) {
	var draft model.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.registry.Publish(c.Request.Context(), draft, identity.AccountFromCtx(c))
	if err != nil {
		var orphan *service.OrphanError
		if errors.As(err, &orphan) {
			RecordPublish("orphaned")
			RecordOrphan()
		} else {
			RecordPublish("error")
		}
		writeError(c, h.logger, "publish", err)
		return
	}
	RecordPublish("ok")
	c.JSON(http.StatusCreated, rec)
}

// List handles GET /portfolios: newest first, optionally filtered by q.
func (h *PortfolioHandler) List(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var (
		recs []*model.Record
		err  error
	)
	if q != "" {
		recs, err = h.registry.Search(c.Request.Context(), q)
	} else {
		recs, err = h.registry.LoadAll(c.Request.Context())
	}
	if err != nil {
		writeError(c, h.logger, "list portfolios", err)
		return
	}

	total := len(recs)
	page := recs[min(offset, total):min(offset+limit, total)]
	if page == nil {
		page = []*model.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"portfolios": page, "count": len(page), "total": total})
}

// Get handles GET /portfolios/:id.
func (h *PortfolioHandler) Get(c *gin.Context) {
	rec, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get portfolio", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Approve handles POST /portfolios/:id/approve.
func (h *PortfolioHandler) Approve(c *gin.Context) {
	h.transition(c, model.ActionApprove, h.review.Approve)
}

// Reject handles POST /portfolios/:id/reject.
func (h *PortfolioHandler) Reject(c *gin.Context) {
	h.transition(c, model.ActionReject, h.review.Reject)
}

func (h *PortfolioHandler) transition(
	c *gin.Context,
	action model.Action,
	apply func(ctx context.Context, id, actor string) (*model.Record, error),
) {
	rec, err := apply(c.Request.Context(), c.Param("id"), identity.AccountFromCtx(c))
	if err != nil {
		RecordTransition(string(action), transitionResult(err))
		writeError(c, h.logger, string(action), err)
		return
	}
	RecordTransition(string(action), "ok")
	c.JSON(http.StatusOK, rec)
}

func transitionResult(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid"
	default:
		return "error"
	}
}

// Stats handles GET /stats: counts by review status.
func (h *PortfolioHandler) Stats(c *gin.Context) {
	s, err := h.registry.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "stats", err)
		return
	}
	SetPortfoliosGauge(s)
	c.JSON(http.StatusOK, s)
}

// Orphans handles GET /orphans: records stored but missing from the index.
func (h *PortfolioHandler) Orphans(c *gin.Context) {
	ids, err := h.registry.FindOrphans(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "find orphans", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orphans": ids, "count": len(ids)})
}

type reindexRequest struct {
	IDs []string `json:"ids"`
}

// Reindex handles POST /orphans/reindex: appends the given ids, or every
// orphan when none are given, to the index.
func (h *PortfolioHandler) Reindex(c *gin.Context) {
	var req reindexRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	repaired, err := h.registry.Reindex(c.Request.Context(), req.IDs)
	if err != nil {
		writeError(c, h.logger, "reindex", err)
		return
	}
	h.logger.Info("reindex requested",
		zap.String("account", identity.AccountFromCtx(c)),
		zap.Int("repaired", len(repaired)),
	)
	c.JSON(http.StatusOK, gin.H{"reindexed": repaired, "count": len(repaired)})
}

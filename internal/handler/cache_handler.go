package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/dto"
	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/pkg/response"
)

type snapshotReloader interface {
	LoadAll(ctx context.Context) error
	Status() models.SnapshotStatus
}

type payloadPurger interface {
	Purge(ctx context.Context) error
}

// CacheHandler exposes explicit snapshot reloads.
type CacheHandler struct {
	snapshots snapshotReloader
	payloads  payloadPurger
	logger    *zap.Logger
}

// NewCacheHandler constructs the handler. payloads may be nil.
func NewCacheHandler(snapshots snapshotReloader, payloads payloadPurger, logger *zap.Logger) *CacheHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheHandler{snapshots: snapshots, payloads: payloads, logger: logger}
}

// Reload godoc
// @Summary Reload snapshot
// @Description Reload tutors, students and responses from the remote store and purge cached dashboards
// @Tags Cache
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /cache/reload [post]
func (h *CacheHandler) Reload(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.snapshots.LoadAll(ctx); err != nil {
		response.Error(c, err)
		return
	}

	res := dto.CacheReloadResponse{Snapshot: h.snapshots.Status()}
	if h.payloads != nil {
		if err := h.payloads.Purge(ctx); err != nil {
			h.logger.Warn("dashboard payload purge failed", zap.Error(err))
		} else {
			res.PayloadPurged = true
		}
	}
	response.JSON(c, http.StatusOK, res)
}

// Status godoc
// @Summary Snapshot status
// @Tags Cache
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /cache/status [get]
func (h *CacheHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.snapshots.Status())
}

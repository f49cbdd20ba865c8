package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/pkg/response"
)

type metricsSource interface {
	Handler() http.Handler
	Snapshot() models.SystemMetrics
}

type snapshotStatusReader interface {
	Status() models.SnapshotStatus
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics   metricsSource
	snapshots snapshotStatusReader
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics metricsSource, snapshots snapshotStatusReader) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, snapshots: snapshots}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds OK while the process is serving.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports 503 until every snapshot table is loaded.
func (h *MetricsHandler) Ready(c *gin.Context) {
	status := h.snapshots.Status()
	if !status.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading", "snapshot": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "snapshot": status})
}

// System godoc
// @Summary Process metrics
// @Description Request, cache and snapshot counters
// @Tags Metrics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /metrics/system [get]
func (h *MetricsHandler) System(c *gin.Context) {
	if h.metrics == nil {
		response.JSON(c, http.StatusOK, models.SystemMetrics{})
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}

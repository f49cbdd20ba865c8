package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/serenia-tutor-api/internal/dto"
	"github.com/noah-isme/serenia-tutor-api/internal/middleware"
	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
	"github.com/noah-isme/serenia-tutor-api/pkg/response"
)

type groupAccess interface {
	EnsureGroup(ctx context.Context, tutorID, group string) error
}

type dashboardService interface {
	GroupMetrics(ctx context.Context, group string) (*models.GroupMetrics, bool, error)
	GroupDistribution(ctx context.Context, group string, filter models.DistributionFilter) (*models.LevelDistribution, bool, error)
}

// DashboardHandler serves group dashboards.
type DashboardHandler struct {
	access    groupAccess
	dashboard dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(access groupAccess, dashboard dashboardService) *DashboardHandler {
	return &DashboardHandler{access: access, dashboard: dashboard}
}

// GroupMetrics godoc
// @Summary Group dashboard
// @Description Averages, level histograms and alerts for a group. With gender or ageBand only the matching distribution is returned.
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param name path string true "Group name"
// @Param gender query string false "Masculino, Femenino or Otro"
// @Param ageBand query string false "<18, 18-20, 21-23 or >23"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /groups/{name}/metrics [get]
func (h *DashboardHandler) GroupMetrics(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	var query dto.GroupMetricsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid metrics query"))
		return
	}

	group := c.Param("name")
	ctx := c.Request.Context()
	if err := h.access.EnsureGroup(ctx, tutorID, group); err != nil {
		response.Error(c, err)
		return
	}

	var (
		payload interface{}
		hit     bool
		err     error
	)
	if filter, filtered := query.Filter(); filtered {
		payload, hit, err = h.dashboard.GroupDistribution(ctx, group, filter)
	} else {
		payload, hit, err = h.dashboard.GroupMetrics(ctx, group)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, payload, middleware.ExtractMeta(c))
}

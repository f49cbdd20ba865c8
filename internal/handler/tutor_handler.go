package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/pkg/response"
)

type tutorOverviewService interface {
	Overview(ctx context.Context, tutorID string) (*models.TutorOverview, error)
}

// TutorHandler serves the authenticated tutor's overview.
type TutorHandler struct {
	service tutorOverviewService
}

// NewTutorHandler constructs the handler.
func NewTutorHandler(svc tutorOverviewService) *TutorHandler {
	return &TutorHandler{service: svc}
}

// Overview godoc
// @Summary Tutor overview
// @Description Tutor profile, groups with their students, latest recommendations and responses
// @Tags Tutors
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /tutors/me [get]
func (h *TutorHandler) Overview(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), tutorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview)
}

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

type studentAccess interface {
	EnsureStudent(ctx context.Context, tutorID, studentID string) error
	StudentRecommendations(ctx context.Context, tutorID, studentID string) (map[models.Instrument]string, error)
}

type studentHistoryReader interface {
	StudentHistory(ctx context.Context, studentID, period string) (*models.StudentHistory, bool, error)
}

// StudentHandler serves per-student views.
type StudentHandler struct {
	access  studentAccess
	history studentHistoryReader
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(access studentAccess, history studentHistoryReader) *StudentHandler {
	return &StudentHandler{access: access, history: history}
}

// History godoc
// @Summary Student history
// @Description Level trend per instrument, optionally limited to an academic period such as "Ene-Abr 2024"
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param period query string false "Academic period"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/history [get]
func (h *StudentHandler) History(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	var query dto.StudentHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid history query"))
		return
	}

	studentID := c.Param("id")
	ctx := c.Request.Context()
	if err := h.access.EnsureStudent(ctx, tutorID, studentID); err != nil {
		response.Error(c, err)
		return
	}
	history, hit, err := h.history.StudentHistory(ctx, studentID, query.Period)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, history, middleware.ExtractMeta(c))
}

// Recommendations godoc
// @Summary Student recommendations
// @Description Latest recommendation per questionnaire
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/recommendations [get]
func (h *StudentHandler) Recommendations(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	recs, err := h.access.StudentRecommendations(c.Request.Context(), tutorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, recs)
}

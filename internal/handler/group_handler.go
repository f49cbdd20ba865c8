package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/serenia-tutor-api/internal/dto"
	"github.com/noah-isme/serenia-tutor-api/internal/middleware"
	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
	"github.com/noah-isme/serenia-tutor-api/pkg/response"
)

type groupService interface {
	Groups(ctx context.Context, tutorID string) ([]string, error)
	GroupStudents(ctx context.Context, tutorID, group string) ([]models.StudentOverview, error)
	AddGroup(ctx context.Context, tutorID, name string, meta models.RequestMeta) (*models.Tutor, error)
	RenameGroup(ctx context.Context, tutorID, oldName, newName string, meta models.RequestMeta) (*models.Tutor, error)
	RemoveGroup(ctx context.Context, tutorID, name string, meta models.RequestMeta) (*models.Tutor, error)
}

type groupPayloadInvalidator interface {
	InvalidateGroup(ctx context.Context, group string) error
}

// GroupHandler manages the tutor's group list.
type GroupHandler struct {
	service   groupService
	dashboard groupPayloadInvalidator
	logger    *zap.Logger
}

// NewGroupHandler constructs the handler. dashboard may be nil.
func NewGroupHandler(svc groupService, dashboard groupPayloadInvalidator, logger *zap.Logger) *GroupHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupHandler{service: svc, dashboard: dashboard, logger: logger}
}

// List godoc
// @Summary List groups
// @Tags Groups
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	groups, err := h.service.Groups(c.Request.Context(), tutorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.GroupsResponse{Groups: groups})
}

// Add godoc
// @Summary Add group
// @Tags Groups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GroupRequest true "Group name"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups [post]
func (h *GroupHandler) Add(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	name, ok := bindGroupName(c)
	if !ok {
		return
	}
	tutor, err := h.service.AddGroup(c.Request.Context(), tutorID, name, middleware.RequestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c.Request.Context(), name)
	response.Created(c, dto.GroupsResponse{Groups: tutor.Groups})
}

// Rename godoc
// @Summary Rename group
// @Tags Groups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param name path string true "Current group name"
// @Param payload body dto.GroupRequest true "New group name"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups/{name} [put]
func (h *GroupHandler) Rename(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	newName, ok := bindGroupName(c)
	if !ok {
		return
	}
	oldName := c.Param("name")
	tutor, err := h.service.RenameGroup(c.Request.Context(), tutorID, oldName, newName, middleware.RequestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c.Request.Context(), oldName, newName)
	response.JSON(c, http.StatusOK, dto.GroupsResponse{Groups: tutor.Groups})
}

// Remove godoc
// @Summary Remove group
// @Tags Groups
// @Produce json
// @Security BearerAuth
// @Param name path string true "Group name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{name} [delete]
func (h *GroupHandler) Remove(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	name := c.Param("name")
	tutor, err := h.service.RemoveGroup(c.Request.Context(), tutorID, name, middleware.RequestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidate(c.Request.Context(), name)
	response.JSON(c, http.StatusOK, dto.GroupsResponse{Groups: tutor.Groups})
}

// Students godoc
// @Summary Group students
// @Description Students of a group with their latest recommendations and responses
// @Tags Groups
// @Produce json
// @Security BearerAuth
// @Param name path string true "Group name"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{name}/students [get]
func (h *GroupHandler) Students(c *gin.Context) {
	tutorID, ok := currentTutorID(c)
	if !ok {
		return
	}
	students, err := h.service.GroupStudents(c.Request.Context(), tutorID, c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, map[string]interface{}{"count": len(students)})
}

// invalidate drops cached payloads of the touched groups and logs failures.
func (h *GroupHandler) invalidate(ctx context.Context, groups ...string) {
	if h.dashboard == nil {
		return
	}
	for _, g := range groups {
		if err := h.dashboard.InvalidateGroup(ctx, g); err != nil {
			h.logger.Warn("group payload invalidation failed", zap.String("group", g), zap.Error(err))
		}
	}
}

func bindGroupName(c *gin.Context) (string, bool) {
	var req dto.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid group payload"))
		return "", false
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "group name is required"))
		return "", false
	}
	return name, true
}

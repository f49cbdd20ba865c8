package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
)

type fakeOverview struct{}

func (fakeOverview) Overview(_ context.Context, tutorID string) (*models.TutorOverview, error) {
	if tutorID != "t1" {
		return nil, appErrors.ErrTutorNotFound
	}
	return &models.TutorOverview{
		Tutor:  models.Tutor{ID: "t1", Groups: []string{"G1"}},
		Groups: []models.GroupOverview{{Name: "G1"}},
	}, nil
}

func TestTutorHandlerOverview(t *testing.T) {
	h := NewTutorHandler(fakeOverview{})

	c, w := newGinContext(http.MethodGet, "/tutors/me", nil)
	asTutor(c, "t1")
	h.Overview(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"name":"G1"`)

	c, w = newGinContext(http.MethodGet, "/tutors/me", nil)
	asTutor(c, "ghost")
	h.Overview(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

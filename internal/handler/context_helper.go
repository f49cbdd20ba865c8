package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/serenia-tutor-api/internal/middleware"
	appErrors "github.com/noah-isme/serenia-tutor-api/pkg/errors"
	"github.com/noah-isme/serenia-tutor-api/pkg/response"
)

// currentTutorID returns the authenticated tutor id. On false the response
// has already been written.
func currentTutorID(c *gin.Context) (string, bool) {
	claims, ok := middleware.TutorClaims(c)
	if !ok || claims.TutorID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.TutorID, true
}

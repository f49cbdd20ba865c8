package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
)

// RequestMeta collects the caller details written to audit entries.
func RequestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

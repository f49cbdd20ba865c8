package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, inbound string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return seen, rec.Header().Get(Header)
}

func TestMiddlewareKeepsInboundID(t *testing.T) {
	seen, echoed := serve(t, "abc-123")
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", echoed)
}

func TestMiddlewareReplacesBadIDs(t *testing.T) {
	for _, inbound := range []string{"", "has space", "line\nbreak", strings.Repeat("x", 65)} {
		seen, echoed := serve(t, inbound)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, inbound)
		assert.Equal(t, seen, echoed)
	}
}

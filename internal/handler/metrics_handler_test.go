package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
	"github.com/noah-isme/serenia-tutor-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	snap := &fakeReloader{}
	h := NewMetricsHandler(service.NewMetricsService(), snap)

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	snap.status = models.SnapshotStatus{Tutors: models.TableReady, Students: models.TableReady, Responses: models.TableReady}
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsHandlerPrometheusAndSystem(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/groups", http.StatusOK, 0)
	h := NewMetricsHandler(metrics, &fakeReloader{})

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	c, w = newGinContext(http.MethodGet, "/metrics/system", nil)
	h.System(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"requests_total":1`)
}

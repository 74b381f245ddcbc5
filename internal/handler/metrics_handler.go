package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mfotsing/structureclerk-api/internal/service"
	"github.com/mfotsing/structureclerk-api/pkg/response"
)

// MetricsHandler serves the instrumentation snapshot.
type MetricsHandler struct {
	service *service.MetricsService
}

// NewMetricsHandler creates a new handler.
func NewMetricsHandler(svc *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{service: svc}
}

// Snapshot godoc
// @Summary System metrics snapshot
// @Description Aggregated request, cache and database metrics (admins only)
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /metrics/snapshot [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Snapshot(), nil)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mfotsing/structureclerk-api/internal/dto"
	"github.com/mfotsing/structureclerk-api/internal/service"
	"github.com/mfotsing/structureclerk-api/pkg/response"
)

// ActivityHandler wires HTTP endpoints to the activity service.
type ActivityHandler struct {
	service *service.ActivityService
}

// NewActivityHandler creates a new handler.
func NewActivityHandler(svc *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

// List godoc
// @Summary List activities
// @Description Paginated audit trail; members only see their own entries
// @Tags Activities
// @Produce json
// @Param action query string false "Filter by action"
// @Param user_id query string false "Filter by user"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	query := activityQueryFromRequest(c)
	activities, pagination, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, activities, pagination)
}

// Export godoc
// @Summary Export activities
// @Description Download the filtered audit trail as CSV or PDF (admins only)
// @Tags Activities
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param action query string false "Filter by action"
// @Param user_id query string false "Filter by user"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /activities/export [get]
func (h *ActivityHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))

	result, err := h.service.Export(c.Request.Context(), activityQueryFromRequest(c), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func activityQueryFromRequest(c *gin.Context) dto.ActivityQuery {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return dto.ActivityQuery{
		Action:   c.Query("action"),
		UserID:   c.Query("user_id"),
		Page:     page,
		PageSize: pageSize,
	}
}

package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mfotsing/structureclerk-api/internal/dto"
	"github.com/mfotsing/structureclerk-api/internal/service"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
	"github.com/mfotsing/structureclerk-api/pkg/response"
)

// ApprovalHandler wires HTTP endpoints to the approval service.
type ApprovalHandler struct {
	service *service.ApprovalService
}

// NewApprovalHandler creates a new handler.
func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: svc}
}

// Approve godoc
// @Summary Approve a workflow step
// @Description Mark a pending approval step approved with an optional comment
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Step ID"
// @Param payload body dto.ApproveStepRequest false "Approval payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	var req dto.ApproveStepRequest
	// io.EOF means no body was sent; the comment is optional.
	if c.Request.Body != nil {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
			return
		}
	}

	if err := h.service.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c), req.Comments); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.DecisionResponse{Success: true, Message: "step approved"}, nil)
}

// Reject godoc
// @Summary Reject a workflow step
// @Description Mark a pending approval step rejected; a reason is mandatory
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Step ID"
// @Param payload body dto.RejectStepRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /approvals/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	var req dto.RejectStepRequest
	// io.EOF means no body was sent; the missing reason fails in the service.
	if c.Request.Body != nil {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
			return
		}
	}

	if err := h.service.Reject(c.Request.Context(), c.Param("id"), claimsFromContext(c), req.Comments); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.DecisionResponse{Success: true, Message: "step rejected"}, nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mfotsing/structureclerk-api/internal/dto"
	"github.com/mfotsing/structureclerk-api/internal/service"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
	"github.com/mfotsing/structureclerk-api/pkg/response"
)

// WorkflowHandler wires HTTP endpoints to the workflow service.
type WorkflowHandler struct {
	service *service.WorkflowService
}

// NewWorkflowHandler creates a new handler.
func NewWorkflowHandler(svc *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: svc}
}

// Create godoc
// @Summary Create an approval workflow
// @Description Start a workflow with ordered single-approver steps
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkflowRequest true "Workflow payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows [post]
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workflow payload"))
		return
	}

	workflow, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, workflow)
}

// Get godoc
// @Summary Get a workflow
// @Description Fetch a workflow with its steps and comments
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// ListPending godoc
// @Summary List pending approvals
// @Description Steps awaiting the authenticated user's decision
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /approvals/pending [get]
func (h *WorkflowHandler) ListPending(c *gin.Context) {
	steps, err := h.service.ListPending(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, steps, nil)
}

// AddComment godoc
// @Summary Comment on a workflow
// @Description Append a discussion comment to a workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body dto.AddCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /workflows/{id}/comments [post]
func (h *WorkflowHandler) AddComment(c *gin.Context) {
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, comment)
}

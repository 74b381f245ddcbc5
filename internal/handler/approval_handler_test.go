package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfotsing/structureclerk-api/internal/middleware"
	"github.com/mfotsing/structureclerk-api/internal/models"
	"github.com/mfotsing/structureclerk-api/internal/repository"
	"github.com/mfotsing/structureclerk-api/internal/service"
	"github.com/mfotsing/structureclerk-api/pkg/response"
)

type approvalStoreStub struct {
	steps   map[string]*models.StepWithWorkflow
	decided []repository.DecideStepParams
}

func newApprovalStoreStub() *approvalStoreStub {
	return &approvalStoreStub{steps: make(map[string]*models.StepWithWorkflow)}
}

func (s *approvalStoreStub) GetStepWithWorkflow(ctx context.Context, stepID string) (*models.StepWithWorkflow, error) {
	if step, ok := s.steps[stepID]; ok {
		copy := *step
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) DecideStep(ctx context.Context, params repository.DecideStepParams) error {
	step, ok := s.steps[params.StepID]
	if !ok || step.Status != models.StepStatusPending {
		return sql.ErrNoRows
	}
	step.Status = params.Status
	s.decided = append(s.decided, params)
	return nil
}

func stubPendingStep(approverID string) *models.StepWithWorkflow {
	return &models.StepWithWorkflow{
		ApprovalStep: models.ApprovalStep{
			ID:         "step-1",
			WorkflowID: "wf-1",
			ApproverID: approverID,
			Status:     models.StepStatusPending,
		},
		OrganizationID: "org-1",
		WorkflowName:   "Invoice 1042",
		ResourceType:   "invoice",
		ResourceID:     "inv-1042",
		CreatedBy:      "user-1",
	}
}

func decisionContext(t *testing.T, method, path, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = int64(len(body))
	}
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "step-1"}}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func TestApprovalHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newApprovalStoreStub()
	store.steps["step-1"] = stubPendingStep("user-2")
	handler := NewApprovalHandler(service.NewApprovalService(store, nil, nil, nil))

	claims := &models.JWTClaims{UserID: "user-2", OrganizationID: "org-1", Role: models.RoleMember}
	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/approve", `{"comments":"ok"}`, claims)

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Nil(t, envelope.Error)
	require.Len(t, store.decided, 1)
	assert.Equal(t, models.StepStatusApproved, store.decided[0].Status)
}

func TestApprovalHandlerRejectWithoutReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newApprovalStoreStub()
	store.steps["step-1"] = stubPendingStep("user-2")
	handler := NewApprovalHandler(service.NewApprovalService(store, nil, nil, nil))

	claims := &models.JWTClaims{UserID: "user-2", OrganizationID: "org-1", Role: models.RoleMember}
	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/reject", `{"comments":"  "}`, claims)

	handler.Reject(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.decided)
}

func TestApprovalHandlerRejectWithReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newApprovalStoreStub()
	store.steps["step-1"] = stubPendingStep("user-2")
	handler := NewApprovalHandler(service.NewApprovalService(store, nil, nil, nil))

	claims := &models.JWTClaims{UserID: "user-2", OrganizationID: "org-1", Role: models.RoleMember}
	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/reject", `{"comments":"missing receipts"}`, claims)

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.decided, 1)
	assert.Equal(t, models.StepStatusRejected, store.decided[0].Status)
}

func TestApprovalHandlerRejectChunkedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newApprovalStoreStub()
	store.steps["step-1"] = stubPendingStep("user-2")
	handler := NewApprovalHandler(service.NewApprovalService(store, nil, nil, nil))

	claims := &models.JWTClaims{UserID: "user-2", OrganizationID: "org-1", Role: models.RoleMember}
	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/reject", `{"comments":"missing receipts"}`, claims)
	// Transfer-Encoding: chunked leaves the length unknown.
	c.Request.ContentLength = -1

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.decided, 1)
	assert.Equal(t, models.StepStatusRejected, store.decided[0].Status)
}

func TestApprovalHandlerForbiddenForOtherApprover(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newApprovalStoreStub()
	store.steps["step-1"] = stubPendingStep("user-2")
	handler := NewApprovalHandler(service.NewApprovalService(store, nil, nil, nil))

	claims := &models.JWTClaims{UserID: "user-9", OrganizationID: "org-1", Role: models.RoleMember}
	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/approve", "", claims)

	handler.Approve(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestApprovalHandlerNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(service.NewApprovalService(newApprovalStoreStub(), nil, nil, nil))

	claims := &models.JWTClaims{UserID: "user-2", OrganizationID: "org-1", Role: models.RoleMember}
	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/approve", "", claims)

	handler.Approve(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApprovalHandlerUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(service.NewApprovalService(newApprovalStoreStub(), nil, nil, nil))

	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/approve", "", nil)

	handler.Approve(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApprovalHandlerAlreadyDecided(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newApprovalStoreStub()
	step := stubPendingStep("user-2")
	step.Status = models.StepStatusRejected
	store.steps["step-1"] = step
	handler := NewApprovalHandler(service.NewApprovalService(store, nil, nil, nil))

	claims := &models.JWTClaims{UserID: "user-2", OrganizationID: "org-1", Role: models.RoleMember}
	c, w := decisionContext(t, http.MethodPost, "/approvals/step-1/approve", "", claims)

	handler.Approve(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ALREADY_DECIDED", envelope.Error.Code)
}

package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfotsing/structureclerk-api/internal/models"
	"github.com/mfotsing/structureclerk-api/internal/repository"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
)

type approvalRepoStub struct {
	steps   map[string]*models.StepWithWorkflow
	decided []repository.DecideStepParams
	raceOn  string
}

func newApprovalRepoStub() *approvalRepoStub {
	return &approvalRepoStub{steps: make(map[string]*models.StepWithWorkflow)}
}

func (s *approvalRepoStub) GetStepWithWorkflow(ctx context.Context, stepID string) (*models.StepWithWorkflow, error) {
	if step, ok := s.steps[stepID]; ok {
		copy := *step
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalRepoStub) DecideStep(ctx context.Context, params repository.DecideStepParams) error {
	if s.raceOn == params.StepID {
		// Simulates a concurrent decision winning the conditional update.
		return sql.ErrNoRows
	}
	step, ok := s.steps[params.StepID]
	if !ok || step.Status != models.StepStatusPending {
		return sql.ErrNoRows
	}
	step.Status = params.Status
	step.DecisionDate = &params.DecisionDate
	step.Comments = params.Comments
	s.decided = append(s.decided, params)
	return nil
}

type cacheStub struct {
	deleted []string
}

func (c *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.deleted = append(c.deleted, pattern)
	return nil
}

type notifierStub struct {
	calls int
	last  models.StepStatus
}

func (n *notifierStub) NotifyDecision(ctx context.Context, step *models.StepWithWorkflow, status models.StepStatus, actor *models.JWTClaims, reason string) {
	n.calls++
	n.last = status
}

func pendingStep(id, approverID string) *models.StepWithWorkflow {
	return &models.StepWithWorkflow{
		ApprovalStep: models.ApprovalStep{
			ID:         id,
			WorkflowID: "wf-1",
			ApproverID: approverID,
			Position:   1,
			Status:     models.StepStatusPending,
		},
		OrganizationID: "org-1",
		WorkflowName:   "Invoice 1042",
		ResourceType:   "invoice",
		ResourceID:     "inv-1042",
		CreatedBy:      "user-1",
	}
}

func approverClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:         userID,
		OrganizationID: "org-1",
		Role:           models.RoleMember,
		FullName:       "Marie Tremblay",
	}
}

func TestApprovalServiceApproveWithoutComment(t *testing.T) {
	repo := newApprovalRepoStub()
	repo.steps["step-1"] = pendingStep("step-1", "user-2")
	cache := &cacheStub{}
	notifier := &notifierStub{}
	svc := NewApprovalService(repo, cache, notifier, nil)

	err := svc.Approve(context.Background(), "step-1", approverClaims("user-2"), "")
	require.NoError(t, err)

	require.Len(t, repo.decided, 1)
	params := repo.decided[0]
	assert.Equal(t, models.StepStatusApproved, params.Status)
	assert.Nil(t, params.Comments)
	assert.Nil(t, params.Comment, "no audit comment without an approver comment")
	require.NotNil(t, params.Activity)
	assert.Equal(t, models.ActivityApprovalApproved, params.Activity.Action)
	assert.Contains(t, string(params.Activity.Metadata), "inv-1042")

	assert.Equal(t, []string{"approvals:pending:org-1:user-2"}, cache.deleted)
	assert.Equal(t, 1, notifier.calls)
}

func TestApprovalServiceApproveWithComment(t *testing.T) {
	repo := newApprovalRepoStub()
	repo.steps["step-1"] = pendingStep("step-1", "user-2")
	svc := NewApprovalService(repo, nil, nil, nil)

	err := svc.Approve(context.Background(), "step-1", approverClaims("user-2"), "  looks good  ")
	require.NoError(t, err)

	params := repo.decided[0]
	require.NotNil(t, params.Comments)
	assert.Equal(t, "looks good", *params.Comments)
	require.NotNil(t, params.Comment)
	assert.Equal(t, "[Approved] looks good", params.Comment.Content)
}

func TestApprovalServiceRejectRequiresReason(t *testing.T) {
	repo := newApprovalRepoStub()
	repo.steps["step-1"] = pendingStep("step-1", "user-2")
	svc := NewApprovalService(repo, nil, nil, nil)

	for _, comments := range []string{"", "   "} {
		err := svc.Reject(context.Background(), "step-1", approverClaims("user-2"), comments)
		require.Error(t, err)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		assert.Equal(t, 400, appErr.Status)
	}
	assert.Empty(t, repo.decided, "no writes on validation failure")
	assert.Equal(t, models.StepStatusPending, repo.steps["step-1"].Status)
}

func TestApprovalServiceRejectWithReason(t *testing.T) {
	repo := newApprovalRepoStub()
	repo.steps["step-1"] = pendingStep("step-1", "user-2")
	notifier := &notifierStub{}
	svc := NewApprovalService(repo, nil, notifier, nil)

	err := svc.Reject(context.Background(), "step-1", approverClaims("user-2"), "missing receipts")
	require.NoError(t, err)

	params := repo.decided[0]
	assert.Equal(t, models.StepStatusRejected, params.Status)
	require.NotNil(t, params.Comment)
	assert.Equal(t, "[Rejected] missing receipts", params.Comment.Content)
	require.NotNil(t, params.Activity)
	assert.Equal(t, models.ActivityApprovalRejected, params.Activity.Action)
	assert.Contains(t, string(params.Activity.Metadata), "missing receipts")
	assert.Equal(t, models.StepStatusRejected, notifier.last)
}

func TestApprovalServiceUnauthenticated(t *testing.T) {
	svc := NewApprovalService(newApprovalRepoStub(), nil, nil, nil)

	err := svc.Approve(context.Background(), "step-1", nil, "")
	appErr := appErrors.FromError(err)
	assert.Equal(t, 401, appErr.Status)
}

func TestApprovalServiceStepNotFound(t *testing.T) {
	svc := NewApprovalService(newApprovalRepoStub(), nil, nil, nil)

	err := svc.Approve(context.Background(), "missing", approverClaims("user-2"), "")
	appErr := appErrors.FromError(err)
	assert.Equal(t, 404, appErr.Status)
}

func TestApprovalServiceCrossOrganizationHidden(t *testing.T) {
	repo := newApprovalRepoStub()
	repo.steps["step-1"] = pendingStep("step-1", "user-2")
	svc := NewApprovalService(repo, nil, nil, nil)

	outsider := approverClaims("user-2")
	outsider.OrganizationID = "org-other"

	err := svc.Approve(context.Background(), "step-1", outsider, "")
	appErr := appErrors.FromError(err)
	assert.Equal(t, 404, appErr.Status, "foreign-org steps look nonexistent")
}

func TestApprovalServiceWrongApproverForbidden(t *testing.T) {
	repo := newApprovalRepoStub()
	repo.steps["step-1"] = pendingStep("step-1", "user-2")
	svc := NewApprovalService(repo, nil, nil, nil)

	err := svc.Reject(context.Background(), "step-1", approverClaims("user-9"), "nope")
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)
	assert.Empty(t, repo.decided)
}

func TestApprovalServiceAlreadyDecided(t *testing.T) {
	repo := newApprovalRepoStub()
	decided := pendingStep("step-1", "user-2")
	decided.Status = models.StepStatusApproved
	repo.steps["step-1"] = decided
	svc := NewApprovalService(repo, nil, nil, nil)

	err := svc.Reject(context.Background(), "step-1", approverClaims("user-2"), "too late")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErr.Code)
	assert.Equal(t, 400, appErr.Status)
	assert.Equal(t, models.StepStatusApproved, repo.steps["step-1"].Status, "terminal state never mutates")
}

func TestApprovalServiceConcurrentDecisionLosesRace(t *testing.T) {
	repo := newApprovalRepoStub()
	repo.steps["step-1"] = pendingStep("step-1", "user-2")
	repo.raceOn = "step-1"
	notifier := &notifierStub{}
	svc := NewApprovalService(repo, nil, notifier, nil)

	err := svc.Approve(context.Background(), "step-1", approverClaims("user-2"), "")
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAlreadyDecided.Code, appErr.Code)
	assert.Equal(t, 0, notifier.calls, "no notification for a lost race")
}

func TestPendingApprovalsKey(t *testing.T) {
	key := pendingApprovalsKey("org-1", "user-2")
	assert.Equal(t, "approvals:pending:org-1:user-2", key)
	assert.True(t, strings.HasPrefix(key, "approvals:pending:"))
}

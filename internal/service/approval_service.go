package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mfotsing/structureclerk-api/internal/models"
	"github.com/mfotsing/structureclerk-api/internal/repository"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
)

type approvalStore interface {
	GetStepWithWorkflow(ctx context.Context, stepID string) (*models.StepWithWorkflow, error)
	DecideStep(ctx context.Context, params repository.DecideStepParams) error
}

type approvalCache interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// DecisionNotifier is told about completed decisions (best effort).
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, step *models.StepWithWorkflow, status models.StepStatus, actor *models.JWTClaims, reason string)
}

// ApprovalService coordinates approve/reject decisions on workflow steps.
type ApprovalService struct {
	repo     approvalStore
	cache    approvalCache
	notifier DecisionNotifier
	logger   *zap.Logger
}

// NewApprovalService constructs the coordinator. Cache and notifier are
// optional; a nil value disables the corresponding side effect.
func NewApprovalService(repo approvalStore, cache approvalCache, notifier DecisionNotifier, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{repo: repo, cache: cache, notifier: notifier, logger: logger}
}

// Approve marks a pending step approved. The comment is optional.
func (s *ApprovalService) Approve(ctx context.Context, stepID string, actor *models.JWTClaims, comments string) error {
	return s.decide(ctx, stepID, actor, models.StepStatusApproved, comments)
}

// Reject marks a pending step rejected. A non-blank reason is mandatory.
func (s *ApprovalService) Reject(ctx context.Context, stepID string, actor *models.JWTClaims, comments string) error {
	return s.decide(ctx, stepID, actor, models.StepStatusRejected, comments)
}

// decide enforces the precondition chain (existence, approver identity,
// terminal status, reject reason) then applies the decision transactionally.
func (s *ApprovalService) decide(ctx context.Context, stepID string, actor *models.JWTClaims, status models.StepStatus, comments string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}

	step, err := s.repo.GetStepWithWorkflow(ctx, stepID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "approval step not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval step")
	}
	if step.OrganizationID != actor.OrganizationID {
		return appErrors.Clone(appErrors.ErrNotFound, "approval step not found")
	}
	if step.ApproverID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the designated approver can decide this step")
	}
	if step.Status != models.StepStatusPending {
		return appErrors.ErrAlreadyDecided
	}

	comments = strings.TrimSpace(comments)
	if status == models.StepStatusRejected && comments == "" {
		return appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}

	now := time.Now().UTC()
	params := repository.DecideStepParams{
		StepID:       stepID,
		Status:       status,
		DecisionDate: now,
		Comments:     optionalString(comments),
		Activity:     s.buildActivity(step, actor, status, comments, now),
	}
	if comment := s.buildComment(step, actor, status, comments, now); comment != nil {
		params.Comment = comment
	}

	if err := s.repo.DecideStep(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race against a concurrent decision.
			return appErrors.ErrAlreadyDecided
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	s.invalidatePending(ctx, step.OrganizationID, step.ApproverID)
	if s.notifier != nil {
		s.notifier.NotifyDecision(ctx, step, status, actor, comments)
	}

	s.logger.Info("approval step decided",
		zap.String("step_id", stepID),
		zap.String("workflow_id", step.WorkflowID),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.UserID),
	)
	return nil
}

// buildComment returns the audit comment for the decision. Approvals only
// carry one when the approver left a comment; rejections always do.
func (s *ApprovalService) buildComment(step *models.StepWithWorkflow, actor *models.JWTClaims, status models.StepStatus, comments string, now time.Time) *models.ApprovalComment {
	var content string
	switch status {
	case models.StepStatusApproved:
		if comments == "" {
			return nil
		}
		content = fmt.Sprintf("[Approved] %s", comments)
	case models.StepStatusRejected:
		content = fmt.Sprintf("[Rejected] %s", comments)
	default:
		return nil
	}
	return &models.ApprovalComment{
		WorkflowID: step.WorkflowID,
		UserID:     actor.UserID,
		Content:    content,
		CreatedAt:  now,
	}
}

func (s *ApprovalService) buildActivity(step *models.StepWithWorkflow, actor *models.JWTClaims, status models.StepStatus, comments string, now time.Time) *models.Activity {
	action := models.ActivityApprovalApproved
	description := fmt.Sprintf("%s approved a step of %q", actor.FullName, step.WorkflowName)
	meta := map[string]interface{}{
		"workflow_id":   step.WorkflowID,
		"step_id":       step.ID,
		"resource_type": step.ResourceType,
		"resource_id":   step.ResourceID,
	}
	if status == models.StepStatusRejected {
		action = models.ActivityApprovalRejected
		description = fmt.Sprintf("%s rejected a step of %q", actor.FullName, step.WorkflowName)
		meta["reason"] = comments
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		payload = []byte("{}")
	}
	userID := actor.UserID
	return &models.Activity{
		OrganizationID: step.OrganizationID,
		UserID:         &userID,
		Action:         action,
		Description:    description,
		Metadata:       payload,
		CreatedAt:      now,
	}
}

func (s *ApprovalService) invalidatePending(ctx context.Context, organizationID, approverID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, pendingApprovalsKey(organizationID, approverID)); err != nil {
		s.logger.Warn("failed to invalidate pending approvals cache", zap.Error(err))
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

func pendingApprovalsKey(organizationID, userID string) string {
	return fmt.Sprintf("approvals:pending:%s:%s", organizationID, userID)
}

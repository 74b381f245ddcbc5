package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mfotsing/structureclerk-api/internal/dto"
	"github.com/mfotsing/structureclerk-api/internal/models"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
)

type workflowStore interface {
	Create(ctx context.Context, workflow *models.ApprovalWorkflow, steps []models.ApprovalStep) error
	GetByID(ctx context.Context, id string) (*models.ApprovalWorkflow, error)
	ListSteps(ctx context.Context, workflowID string) ([]models.ApprovalStep, error)
	ListComments(ctx context.Context, workflowID string) ([]models.ApprovalComment, error)
	CreateComment(ctx context.Context, comment *models.ApprovalComment) error
	ListPendingByApprover(ctx context.Context, organizationID, approverID string) ([]models.StepWithWorkflow, error)
}

type activityLogger interface {
	Create(ctx context.Context, activity *models.Activity) error
}

type pendingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type metricsObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveDBQuery(label string, duration time.Duration)
}

// WorkflowService manages approval workflow creation and listing.
type WorkflowService struct {
	repo       workflowStore
	activities activityLogger
	cache      pendingCache
	metrics    metricsObserver
	validator  *validator.Validate
	logger     *zap.Logger
	cacheTTL   time.Duration
}

// NewWorkflowService constructs the service. Cache and metrics are optional.
func NewWorkflowService(repo workflowStore, activities activityLogger, cache pendingCache, metrics metricsObserver, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &WorkflowService{
		repo:       repo,
		activities: activities,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cacheTTL:   cacheTTL,
	}
}

// Create initiates an approval workflow with ordered single-approver steps.
func (s *WorkflowService) Create(ctx context.Context, req dto.CreateWorkflowRequest, actor *models.JWTClaims) (*models.ApprovalWorkflow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workflow payload")
	}

	workflow := &models.ApprovalWorkflow{
		OrganizationID: actor.OrganizationID,
		Name:           strings.TrimSpace(req.Name),
		ResourceType:   strings.TrimSpace(req.ResourceType),
		ResourceID:     strings.TrimSpace(req.ResourceID),
		CreatedBy:      actor.UserID,
	}
	steps := make([]models.ApprovalStep, len(req.Steps))
	for i, step := range req.Steps {
		steps[i] = models.ApprovalStep{ApproverID: step.ApproverID}
	}

	start := time.Now()
	err := s.repo.Create(ctx, workflow, steps)
	s.observeQuery("workflow_insert", start)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow")
	}

	s.recordRequested(ctx, workflow, actor)
	for _, step := range steps {
		s.invalidatePending(ctx, workflow.OrganizationID, step.ApproverID)
	}
	return workflow, nil
}

// Get returns a workflow with its ordered steps and comments.
func (s *WorkflowService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.WorkflowDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	start := time.Now()
	workflow, err := s.repo.GetByID(ctx, id)
	s.observeQuery("workflow_select", start)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	if workflow.OrganizationID != actor.OrganizationID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
	}

	steps, err := s.repo.ListSteps(ctx, workflow.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow steps")
	}
	comments, err := s.repo.ListComments(ctx, workflow.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow comments")
	}

	return &models.WorkflowDetail{Workflow: *workflow, Steps: steps, Comments: comments}, nil
}

// ListPending returns steps awaiting the actor's decision, cached per actor.
func (s *WorkflowService) ListPending(ctx context.Context, actor *models.JWTClaims) ([]models.StepWithWorkflow, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	key := pendingApprovalsKey(actor.OrganizationID, actor.UserID)
	if s.cache != nil {
		start := time.Now()
		var cached []models.StepWithWorkflow
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("pending approvals cache read failed", zap.Error(err))
		}
	}

	dbStart := time.Now()
	steps, err := s.repo.ListPendingByApprover(ctx, actor.OrganizationID, actor.UserID)
	s.observeQuery("pending_approvals_select", dbStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending approvals")
	}
	if steps == nil {
		steps = []models.StepWithWorkflow{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, steps, s.cacheTTL); err != nil {
			s.logger.Warn("pending approvals cache write failed", zap.Error(err))
		}
	}
	return steps, nil
}

// AddComment appends a discussion comment to a workflow.
func (s *WorkflowService) AddComment(ctx context.Context, workflowID string, req dto.AddCommentRequest, actor *models.JWTClaims) (*models.ApprovalComment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment content is required")
	}

	workflow, err := s.repo.GetByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	if workflow.OrganizationID != actor.OrganizationID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
	}

	comment := &models.ApprovalComment{
		WorkflowID: workflow.ID,
		UserID:     actor.UserID,
		Content:    strings.TrimSpace(req.Content),
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}

func (s *WorkflowService) recordRequested(ctx context.Context, workflow *models.ApprovalWorkflow, actor *models.JWTClaims) {
	if s.activities == nil {
		return
	}
	meta, err := json.Marshal(map[string]interface{}{
		"workflow_id":   workflow.ID,
		"resource_type": workflow.ResourceType,
		"resource_id":   workflow.ResourceID,
	})
	if err != nil {
		meta = []byte("{}")
	}
	userID := actor.UserID
	activity := &models.Activity{
		OrganizationID: workflow.OrganizationID,
		UserID:         &userID,
		Action:         models.ActivityApprovalRequested,
		Description:    actor.FullName + " requested approval for " + workflow.Name,
		Metadata:       meta,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		s.logger.Warn("failed to record workflow activity", zap.Error(err))
	}
}

func (s *WorkflowService) observeQuery(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

func (s *WorkflowService) invalidatePending(ctx context.Context, organizationID, approverID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, pendingApprovalsKey(organizationID, approverID)); err != nil {
		s.logger.Warn("failed to invalidate pending approvals cache", zap.Error(err))
	}
}

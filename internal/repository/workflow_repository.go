package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mfotsing/structureclerk-api/internal/models"
)

// WorkflowRepository persists approval workflows, steps and comments.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const stepWithWorkflowColumns = `s.id, s.workflow_id, s.approver_id, s.position, s.status, s.decision_date, s.comments, s.created_at,
       w.organization_id, w.name AS workflow_name, w.resource_type, w.resource_id, w.created_by`

// Create inserts a workflow and its ordered steps in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.ApprovalWorkflow, steps []models.ApprovalStep) error {
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create workflow: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const workflowQuery = `INSERT INTO approval_workflows
	(id, organization_id, name, resource_type, resource_id, created_by, created_at)
	VALUES (:id, :organization_id, :name, :resource_type, :resource_id, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, workflowQuery, workflow); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}

	const stepQuery = `INSERT INTO approval_steps
	(id, workflow_id, approver_id, position, status, decision_date, comments, created_at)
	VALUES (:id, :workflow_id, :approver_id, :position, :status, :decision_date, :comments, :created_at)`
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.WorkflowID = workflow.ID
		step.Position = i + 1
		step.Status = models.StepStatusPending
		if step.CreatedAt.IsZero() {
			step.CreatedAt = workflow.CreatedAt
		}
		if _, err := tx.NamedExecContext(ctx, stepQuery, step); err != nil {
			return fmt.Errorf("create workflow step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create workflow: %w", err)
	}
	return nil
}

// GetByID fetches a workflow by identifier.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.ApprovalWorkflow, error) {
	const query = `SELECT id, organization_id, name, resource_type, resource_id, created_by, created_at
	FROM approval_workflows WHERE id = $1`
	var workflow models.ApprovalWorkflow
	if err := r.db.GetContext(ctx, &workflow, query, id); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// GetStepWithWorkflow fetches a step joined with its parent workflow.
func (r *WorkflowRepository) GetStepWithWorkflow(ctx context.Context, stepID string) (*models.StepWithWorkflow, error) {
	query := fmt.Sprintf(`SELECT %s
	FROM approval_steps s
	JOIN approval_workflows w ON w.id = s.workflow_id
	WHERE s.id = $1`, stepWithWorkflowColumns)
	var step models.StepWithWorkflow
	if err := r.db.GetContext(ctx, &step, query, stepID); err != nil {
		return nil, err
	}
	return &step, nil
}

// ListSteps returns a workflow's steps in position order.
func (r *WorkflowRepository) ListSteps(ctx context.Context, workflowID string) ([]models.ApprovalStep, error) {
	const query = `SELECT id, workflow_id, approver_id, position, status, decision_date, comments, created_at
	FROM approval_steps WHERE workflow_id = $1 ORDER BY position ASC`
	var steps []models.ApprovalStep
	if err := r.db.SelectContext(ctx, &steps, query, workflowID); err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	return steps, nil
}

// ListComments returns a workflow's comments oldest first.
func (r *WorkflowRepository) ListComments(ctx context.Context, workflowID string) ([]models.ApprovalComment, error) {
	const query = `SELECT id, workflow_id, user_id, content, created_at
	FROM approval_comments WHERE workflow_id = $1 ORDER BY created_at ASC`
	var comments []models.ApprovalComment
	if err := r.db.SelectContext(ctx, &comments, query, workflowID); err != nil {
		return nil, fmt.Errorf("list workflow comments: %w", err)
	}
	return comments, nil
}

// CreateComment appends a discussion comment outside a decision.
func (r *WorkflowRepository) CreateComment(ctx context.Context, comment *models.ApprovalComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_comments (id, workflow_id, user_id, content, created_at)
	VALUES (:id, :workflow_id, :user_id, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create approval comment: %w", err)
	}
	return nil
}

// ListPendingByApprover returns steps awaiting the approver's decision.
func (r *WorkflowRepository) ListPendingByApprover(ctx context.Context, organizationID, approverID string) ([]models.StepWithWorkflow, error) {
	query := fmt.Sprintf(`SELECT %s
	FROM approval_steps s
	JOIN approval_workflows w ON w.id = s.workflow_id
	WHERE w.organization_id = $1 AND s.approver_id = $2 AND s.status = '%s'
	ORDER BY s.created_at ASC`, stepWithWorkflowColumns, models.StepStatusPending)
	var steps []models.StepWithWorkflow
	if err := r.db.SelectContext(ctx, &steps, query, organizationID, approverID); err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return steps, nil
}

// DecideStepParams groups all writes of a single decision.
type DecideStepParams struct {
	StepID       string
	Status       models.StepStatus
	DecisionDate time.Time
	Comments     *string
	Comment      *models.ApprovalComment
	Activity     *models.Activity
}

// DecideStep applies a decision as one transaction: a conditional status
// transition guarded on PENDING, the audit comment, and the activity row.
// Zero rows affected by the guard surfaces as sql.ErrNoRows so callers can
// treat a lost race as an already-decided step.
func (r *WorkflowRepository) DecideStep(ctx context.Context, params DecideStepParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decide step: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`UPDATE approval_steps
	SET status = $1, decision_date = $2, comments = $3
	WHERE id = $4 AND status = '%s'`, models.StepStatusPending)
	result, err := tx.ExecContext(ctx, query, params.Status, params.DecisionDate, params.Comments, params.StepID)
	if err != nil {
		return fmt.Errorf("update step status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check step update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if params.Comment != nil {
		comment := params.Comment
		if comment.ID == "" {
			comment.ID = uuid.NewString()
		}
		if comment.CreatedAt.IsZero() {
			comment.CreatedAt = params.DecisionDate
		}
		const commentQuery = `INSERT INTO approval_comments (id, workflow_id, user_id, content, created_at)
		VALUES (:id, :workflow_id, :user_id, :content, :created_at)`
		if _, err := tx.NamedExecContext(ctx, commentQuery, comment); err != nil {
			return fmt.Errorf("create decision comment: %w", err)
		}
	}

	if params.Activity != nil {
		activity := params.Activity
		if activity.ID == "" {
			activity.ID = uuid.NewString()
		}
		if activity.CreatedAt.IsZero() {
			activity.CreatedAt = params.DecisionDate
		}
		const activityQuery = `INSERT INTO activities (id, organization_id, user_id, action, description, metadata, created_at)
		VALUES (:id, :organization_id, :user_id, :action, :description, :metadata, :created_at)`
		if _, err := tx.NamedExecContext(ctx, activityQuery, activity); err != nil {
			return fmt.Errorf("create decision activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decide step: %w", err)
	}
	return nil
}

package models

import "time"

// StepStatus captures the decision states of an approval step.
// PENDING is initial; APPROVED and REJECTED are terminal.
type StepStatus string

const (
	StepStatusPending  StepStatus = "PENDING"
	StepStatusApproved StepStatus = "APPROVED"
	StepStatusRejected StepStatus = "REJECTED"
)

// ApprovalWorkflow identifies a business resource requiring sign-off.
// Read-only from the coordinator's perspective once created.
type ApprovalWorkflow struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	ResourceType   string    `db:"resource_type" json:"resource_type"`
	ResourceID     string    `db:"resource_id" json:"resource_id"`
	CreatedBy      string    `db:"created_by" json:"created_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ApprovalStep is one decision point within a workflow, owned by exactly
// one designated approver. Once status leaves PENDING it never changes.
type ApprovalStep struct {
	ID           string     `db:"id" json:"id"`
	WorkflowID   string     `db:"workflow_id" json:"workflow_id"`
	ApproverID   string     `db:"approver_id" json:"approver_id"`
	Position     int        `db:"position" json:"position"`
	Status       StepStatus `db:"status" json:"status"`
	DecisionDate *time.Time `db:"decision_date" json:"decision_date,omitempty"`
	Comments     *string    `db:"comments" json:"comments,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// StepWithWorkflow joins a step with its parent workflow context.
type StepWithWorkflow struct {
	ApprovalStep
	OrganizationID string `db:"organization_id" json:"organization_id"`
	WorkflowName   string `db:"workflow_name" json:"workflow_name"`
	ResourceType   string `db:"resource_type" json:"resource_type"`
	ResourceID     string `db:"resource_id" json:"resource_id"`
	CreatedBy      string `db:"created_by" json:"created_by"`
}

// ApprovalComment is an append-only audit entry tied to a workflow.
type ApprovalComment struct {
	ID         string    `db:"id" json:"id"`
	WorkflowID string    `db:"workflow_id" json:"workflow_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// WorkflowDetail aggregates a workflow with its ordered steps and comments.
type WorkflowDetail struct {
	Workflow ApprovalWorkflow  `json:"workflow"`
	Steps    []ApprovalStep    `json:"steps"`
	Comments []ApprovalComment `json:"comments"`
}

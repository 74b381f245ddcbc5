package dto

// CreateWorkflowStep names the single approver for one step.
type CreateWorkflowStep struct {
	ApproverID string `json:"approver_id" validate:"required"`
}

// CreateWorkflowRequest initiates an approval workflow for a resource.
type CreateWorkflowRequest struct {
	Name         string               `json:"name" validate:"required"`
	ResourceType string               `json:"resource_type" validate:"required"`
	ResourceID   string               `json:"resource_id" validate:"required"`
	Steps        []CreateWorkflowStep `json:"steps" validate:"required,min=1,dive"`
}

// AddCommentRequest appends a discussion comment to a workflow.
type AddCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

package dto

// ApproveStepRequest carries the optional approval comment.
type ApproveStepRequest struct {
	Comments string `json:"comments"`
}

// RejectStepRequest carries the mandatory rejection reason.
type RejectStepRequest struct {
	Comments string `json:"comments"`
}

// DecisionResponse acknowledges a processed decision.
type DecisionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

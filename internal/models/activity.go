package models

import "time"

// Activity action constants.
const (
	ActivityApprovalRequested = "approval_requested"
	ActivityApprovalApproved  = "approval_approved"
	ActivityApprovalRejected  = "approval_rejected"
	ActivityDocumentUploaded  = "document_uploaded"
	ActivityDocumentDeleted   = "document_deleted"
	ActivityUserLogin         = "user_login"
	ActivityUserLogout        = "user_logout"
	ActivityPasswordChanged   = "password_changed"
)

// Activity is an append-only organization-scoped audit log entry.
// Rows are written once per event and never mutated.
type Activity struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UserID         *string   `db:"user_id" json:"user_id,omitempty"`
	Action         string    `db:"action" json:"action"`
	Description    string    `db:"description" json:"description"`
	Metadata       []byte    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ActivityFilter constrains activity listing queries.
type ActivityFilter struct {
	OrganizationID string
	UserID         string
	Action         string
	Page           int
	PageSize       int
}

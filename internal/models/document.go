package models

import "time"

// Document represents stored file metadata for an organization.
type Document struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UploaderID     string    `db:"uploader_id" json:"uploader_id"`
	Name           string    `db:"name" json:"name"`
	MIMEType       string    `db:"mime_type" json:"mime_type"`
	SizeBytes      int64     `db:"size_bytes" json:"size_bytes"`
	StoragePath    string    `db:"storage_path" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

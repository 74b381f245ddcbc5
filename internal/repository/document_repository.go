package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mfotsing/structureclerk-api/internal/models"
)

// DocumentRepository persists document metadata.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, organization_id, uploader_id, name, mime_type, size_bytes, storage_path, created_at`

// Create inserts a new document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (id, organization_id, uploader_id, name, mime_type, size_bytes, storage_path, created_at)
	VALUES (:id, :organization_id, :uploader_id, :name, :mime_type, :size_bytes, :storage_path, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a document by identifier.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByOrganization returns an organization's documents newest first.
func (r *DocumentRepository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE organization_id = $1 ORDER BY created_at DESC`, documentColumns)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, organizationID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document row.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

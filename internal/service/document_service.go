package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfotsing/structureclerk-api/internal/dto"
	"github.com/mfotsing/structureclerk-api/internal/models"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
	"github.com/mfotsing/structureclerk-api/pkg/storage"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]models.Document, error)
	Delete(ctx context.Context, id string) error
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// DocumentLimits restricts accepted uploads.
type DocumentLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// UploadInput carries a single file upload.
type UploadInput struct {
	Name      string
	MIMEType  string
	SizeBytes int64
	Reader    io.Reader
}

// Download bundles a stored file stream with its metadata.
type Download struct {
	Document *models.Document
	File     *os.File
}

// DocumentService stores documents and issues signed download tokens.
type DocumentService struct {
	repo       documentStore
	files      fileStore
	signer     *storage.SignedURLSigner
	activities activityLogger
	limits     DocumentLimits
	logger     *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(repo documentStore, files fileStore, signer *storage.SignedURLSigner, activities activityLogger, limits DocumentLimits, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		repo:       repo,
		files:      files,
		signer:     signer,
		activities: activities,
		limits:     limits,
		logger:     logger,
	}
}

// Upload validates and stores a file, then records its metadata.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a file name is required")
	}
	if s.limits.MaxFileSizeBytes > 0 && input.SizeBytes > s.limits.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.limits.MaxFileSizeBytes))
	}
	if !s.mimeAllowed(input.MIMEType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported file type")
	}

	doc := &models.Document{
		ID:             uuid.NewString(),
		OrganizationID: actor.OrganizationID,
		UploaderID:     actor.UserID,
		Name:           name,
		MIMEType:       input.MIMEType,
		SizeBytes:      input.SizeBytes,
	}
	doc.StoragePath = path.Join(doc.OrganizationID, doc.ID+path.Ext(name))

	if _, err := s.files.SaveStream(doc.StoragePath, input.Reader); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if cleanupErr := s.files.Delete(doc.StoragePath); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned file", zap.Error(cleanupErr), zap.String("path", doc.StoragePath))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}

	s.recordDocumentActivity(ctx, doc, actor, models.ActivityDocumentUploaded, actor.FullName+" uploaded "+doc.Name)
	return doc, nil
}

// List returns the organization's documents, newest first.
func (s *DocumentService) List(ctx context.Context, actor *models.JWTClaims) ([]models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	docs, err := s.repo.ListByOrganization(ctx, actor.OrganizationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Get returns a single document visible to the actor.
func (s *DocumentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.load(ctx, id, actor)
}

// DownloadURL issues a short-lived signed token for direct download.
func (s *DocumentService) DownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (*dto.DownloadURLResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &dto.DownloadURLResponse{
		Token:     token,
		URL:       "/api/v1/downloads?token=" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the stored file.
// The caller owns closing the returned file.
func (s *DocumentService) ResolveDownload(ctx context.Context, token string) (*Download, error) {
	documentID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.StoragePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	file, err := s.files.Open(doc.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open stored file")
	}
	return &Download{Document: doc, File: file}, nil
}

// Delete removes a document. Only the uploader or an admin/owner may delete.
func (s *DocumentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	doc, err := s.load(ctx, id, actor)
	if err != nil {
		return err
	}
	if doc.UploaderID != actor.UserID && actor.Role != models.RoleAdmin && actor.Role != models.RoleOwner {
		return appErrors.Clone(appErrors.ErrForbidden, "only the uploader or an admin can delete this document")
	}

	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	if err := s.files.Delete(doc.StoragePath); err != nil {
		s.logger.Warn("failed to remove stored file", zap.Error(err), zap.String("path", doc.StoragePath))
	}

	s.recordDocumentActivity(ctx, doc, actor, models.ActivityDocumentDeleted, actor.FullName+" deleted "+doc.Name)
	return nil
}

func (s *DocumentService) load(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.OrganizationID != actor.OrganizationID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return doc, nil
}

func (s *DocumentService) mimeAllowed(mimeType string) bool {
	if len(s.limits.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.limits.AllowedMIMEs {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

func (s *DocumentService) recordDocumentActivity(ctx context.Context, doc *models.Document, actor *models.JWTClaims, action, description string) {
	if s.activities == nil {
		return
	}
	meta, err := json.Marshal(map[string]interface{}{
		"document_id": doc.ID,
		"name":        doc.Name,
		"mime_type":   doc.MIMEType,
		"size_bytes":  doc.SizeBytes,
	})
	if err != nil {
		meta = []byte("{}")
	}
	userID := actor.UserID
	activity := &models.Activity{
		OrganizationID: doc.OrganizationID,
		UserID:         &userID,
		Action:         action,
		Description:    description,
		Metadata:       meta,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		s.logger.Warn("failed to record document activity", zap.Error(err))
	}
}

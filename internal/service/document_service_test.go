package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfotsing/structureclerk-api/internal/models"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
	"github.com/mfotsing/structureclerk-api/pkg/storage"
)

type documentStoreStub struct {
	docs map[string]*models.Document
}

func newDocumentStoreStub() *documentStoreStub {
	return &documentStoreStub{docs: make(map[string]*models.Document)}
}

func (s *documentStoreStub) Create(ctx context.Context, doc *models.Document) error {
	s.docs[doc.ID] = doc
	return nil
}

func (s *documentStoreStub) GetByID(ctx context.Context, id string) (*models.Document, error) {
	if doc, ok := s.docs[id]; ok {
		copy := *doc
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *documentStoreStub) ListByOrganization(ctx context.Context, organizationID string) ([]models.Document, error) {
	result := make([]models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if doc.OrganizationID == organizationID {
			result = append(result, *doc)
		}
	}
	return result, nil
}

func (s *documentStoreStub) Delete(ctx context.Context, id string) error {
	delete(s.docs, id)
	return nil
}

type fileStoreStub struct {
	saved   map[string]string
	deleted []string
}

func newFileStoreStub() *fileStoreStub {
	return &fileStoreStub{saved: make(map[string]string)}
}

func (f *fileStoreStub) SaveStream(filename string, r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.saved[filename] = string(content)
	return filename, nil
}

func (f *fileStoreStub) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (f *fileStoreStub) Delete(filename string) error {
	f.deleted = append(f.deleted, filename)
	return nil
}

func uploaderClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:         "user-1",
		OrganizationID: "org-1",
		Role:           models.RoleMember,
		FullName:       "Luc Gagnon",
	}
}

func newTestDocumentService(repo *documentStoreStub, files *fileStoreStub, limits DocumentLimits) *DocumentService {
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	return NewDocumentService(repo, files, signer, nil, limits, nil)
}

func TestDocumentServiceUpload(t *testing.T) {
	repo := newDocumentStoreStub()
	files := newFileStoreStub()
	svc := newTestDocumentService(repo, files, DocumentLimits{
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"application/pdf"},
	})

	doc, err := svc.Upload(context.Background(), UploadInput{
		Name:      "invoice.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 12,
		Reader:    strings.NewReader("pdf contents"),
	}, uploaderClaims())
	require.NoError(t, err)
	assert.Equal(t, "org-1", doc.OrganizationID)
	assert.True(t, strings.HasPrefix(doc.StoragePath, "org-1/"))
	assert.True(t, strings.HasSuffix(doc.StoragePath, ".pdf"))
	assert.Equal(t, "pdf contents", files.saved[doc.StoragePath])
}

func TestDocumentServiceUploadRejectsOversizedFile(t *testing.T) {
	svc := newTestDocumentService(newDocumentStoreStub(), newFileStoreStub(), DocumentLimits{
		MaxFileSizeBytes: 10,
	})

	_, err := svc.Upload(context.Background(), UploadInput{
		Name:      "big.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 11,
		Reader:    strings.NewReader("way too big"),
	}, uploaderClaims())
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestDocumentServiceUploadRejectsMIME(t *testing.T) {
	svc := newTestDocumentService(newDocumentStoreStub(), newFileStoreStub(), DocumentLimits{
		AllowedMIMEs: []string{"application/pdf"},
	})

	_, err := svc.Upload(context.Background(), UploadInput{
		Name:      "script.sh",
		MIMEType:  "application/x-sh",
		SizeBytes: 4,
		Reader:    strings.NewReader("#!"),
	}, uploaderClaims())
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestDocumentServiceDeletePermissions(t *testing.T) {
	repo := newDocumentStoreStub()
	files := newFileStoreStub()
	repo.docs["doc-1"] = &models.Document{
		ID:             "doc-1",
		OrganizationID: "org-1",
		UploaderID:     "user-1",
		Name:           "invoice.pdf",
		StoragePath:    "org-1/doc-1.pdf",
	}
	svc := newTestDocumentService(repo, files, DocumentLimits{})

	// Another member cannot delete someone else's document.
	other := uploaderClaims()
	other.UserID = "user-9"
	err := svc.Delete(context.Background(), "doc-1", other)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 403, appErr.Status)

	// An admin can.
	admin := uploaderClaims()
	admin.UserID = "user-9"
	admin.Role = models.RoleAdmin
	require.NoError(t, svc.Delete(context.Background(), "doc-1", admin))
	assert.Contains(t, files.deleted, "org-1/doc-1.pdf")
}

func TestDocumentServiceCrossOrganizationHidden(t *testing.T) {
	repo := newDocumentStoreStub()
	repo.docs["doc-1"] = &models.Document{
		ID:             "doc-1",
		OrganizationID: "org-other",
		UploaderID:     "user-1",
	}
	svc := newTestDocumentService(repo, newFileStoreStub(), DocumentLimits{})

	_, err := svc.Get(context.Background(), "doc-1", uploaderClaims())
	appErr := appErrors.FromError(err)
	assert.Equal(t, 404, appErr.Status)
}

func TestDocumentServiceDownloadURLRoundTrip(t *testing.T) {
	repo := newDocumentStoreStub()
	repo.docs["doc-1"] = &models.Document{
		ID:             "doc-1",
		OrganizationID: "org-1",
		UploaderID:     "user-1",
		Name:           "invoice.pdf",
		StoragePath:    "org-1/doc-1.pdf",
	}
	svc := newTestDocumentService(repo, newFileStoreStub(), DocumentLimits{})

	res, err := svc.DownloadURL(context.Background(), "doc-1", uploaderClaims())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Contains(t, res.URL, res.Token)
	assert.True(t, res.ExpiresAt.After(time.Now()))
}

func TestDocumentServiceResolveDownloadBadToken(t *testing.T) {
	svc := newTestDocumentService(newDocumentStoreStub(), newFileStoreStub(), DocumentLimits{})

	_, err := svc.ResolveDownload(context.Background(), "garbage-token")
	appErr := appErrors.FromError(err)
	assert.Equal(t, 401, appErr.Status)
}

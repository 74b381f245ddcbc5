package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mfotsing/structureclerk-api/internal/dto"
	"github.com/mfotsing/structureclerk-api/internal/models"
	appErrors "github.com/mfotsing/structureclerk-api/pkg/errors"
	"github.com/mfotsing/structureclerk-api/pkg/export"
)

type activityStore interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)
	Count(ctx context.Context, filter models.ActivityFilter) (int, error)
}

type dbObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// ExportFormat selects an activity export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered export ready to stream back to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ActivityService exposes the organization audit trail.
type ActivityService struct {
	repo    activityStore
	metrics dbObserver
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	logger  *zap.Logger
}

// NewActivityService constructs the service. Metrics are optional.
func NewActivityService(repo activityStore, metrics dbObserver, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		repo:    repo,
		metrics: metrics,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
	}
}

// List returns a page of activities visible to the actor. Members only see
// their own entries; admins and owners see the whole organization.
func (s *ActivityService) List(ctx context.Context, query dto.ActivityQuery, actor *models.JWTClaims) ([]models.Activity, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}

	filter := s.buildFilter(query, actor)
	start := time.Now()
	activities, err := s.repo.List(ctx, filter)
	s.observeQuery("activities_select", start)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	if activities == nil {
		activities = []models.Activity{}
	}

	start = time.Now()
	total, err := s.repo.Count(ctx, filter)
	s.observeQuery("activities_count", start)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count activities")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}
	return activities, pagination, nil
}

// Export renders the full filtered activity trail as CSV or PDF.
// Only admins and owners may export.
func (s *ActivityService) Export(ctx context.Context, query dto.ActivityQuery, format ExportFormat, actor *models.JWTClaims) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleOwner {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "activity export requires an admin role")
	}

	filter := s.buildFilter(query, actor)
	filter.Page = 1
	filter.PageSize = 200

	rows := make([][]string, 0, 64)
	for {
		start := time.Now()
		batch, err := s.repo.List(ctx, filter)
		s.observeQuery("activities_select", start)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activities for export")
		}
		for _, activity := range batch {
			userID := ""
			if activity.UserID != nil {
				userID = *activity.UserID
			}
			rows = append(rows, []string{
				activity.CreatedAt.UTC().Format(time.RFC3339),
				activity.Action,
				userID,
				activity.Description,
			})
		}
		if len(batch) < filter.PageSize {
			break
		}
		filter.Page++
	}

	table := export.Table{
		Columns: []string{"Date", "Action", "User", "Description"},
		Rows:    rows,
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("activities-%s.csv", stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(table, "Activity Log")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("activities-%s.pdf", stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *ActivityService) observeQuery(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

// buildFilter scopes the query to the actor's organization and, for members,
// to their own entries.
func (s *ActivityService) buildFilter(query dto.ActivityQuery, actor *models.JWTClaims) models.ActivityFilter {
	filter := models.ActivityFilter{
		OrganizationID: actor.OrganizationID,
		UserID:         query.UserID,
		Action:         query.Action,
		Page:           query.Page,
		PageSize:       query.PageSize,
	}
	if actor.Role == models.RoleMember {
		filter.UserID = actor.UserID
	}
	return filter
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mfotsing/structureclerk-api/internal/models"
)

// ActivityRepository persists the organization audit trail.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends an activity row. Rows are never updated or deleted.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activities (id, organization_id, user_id, action, description, metadata, created_at)
	VALUES (:id, :organization_id, :user_id, :action, :description, :metadata, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// List returns activities matching the filter, newest first.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, organization_id, user_id, action, description, metadata, created_at FROM activities`)

	conditions, args := activityConditions(filter, args)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize))

	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return activities, nil
}

// Count returns the number of activities matching the filter.
func (r *ActivityRepository) Count(ctx context.Context, filter models.ActivityFilter) (int, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT COUNT(*) FROM activities`)

	conditions, args := activityConditions(filter, args)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var count int
	if err := r.db.GetContext(ctx, &count, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return count, nil
}

func activityConditions(filter models.ActivityFilter, args []interface{}) ([]string, []interface{}) {
	conditions := make([]string, 0, 3)
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	return conditions, args
}

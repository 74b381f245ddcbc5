package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfotsing/structureclerk-api/internal/models"
)

func newWorkflowRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWorkflowRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO approval_workflows").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO approval_steps").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO approval_steps").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	workflow := &models.ApprovalWorkflow{
		OrganizationID: "org-1",
		Name:           "Invoice 1042",
		ResourceType:   "invoice",
		ResourceID:     "inv-1042",
		CreatedBy:      "user-1",
	}
	steps := []models.ApprovalStep{
		{ApproverID: "user-2"},
		{ApproverID: "user-3"},
	}

	require.NoError(t, repo.Create(context.Background(), workflow, steps))
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, 1, steps[0].Position)
	assert.Equal(t, 2, steps[1].Position)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)
	assert.Equal(t, workflow.ID, steps[1].WorkflowID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryGetStepWithWorkflow(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "workflow_id", "approver_id", "position", "status", "decision_date", "comments", "created_at",
		"organization_id", "workflow_name", "resource_type", "resource_id", "created_by",
	}).AddRow("step-1", "wf-1", "user-2", 1, "PENDING", nil, nil, now,
		"org-1", "Invoice 1042", "invoice", "inv-1042", "user-1")

	mock.ExpectQuery("SELECT (.+) FROM approval_steps s").
		WithArgs("step-1").
		WillReturnRows(rows)

	step, err := repo.GetStepWithWorkflow(context.Background(), "step-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", step.WorkflowID)
	assert.Equal(t, models.StepStatusPending, step.Status)
	assert.Equal(t, "org-1", step.OrganizationID)
	assert.Equal(t, "Invoice 1042", step.WorkflowName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryDecideStep(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	now := time.Now().UTC()
	comments := "looks good"
	userID := "user-2"

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE approval_steps").
		WithArgs(models.StepStatusApproved, now, &comments, "step-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO approval_comments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO activities").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.DecideStep(context.Background(), DecideStepParams{
		StepID:       "step-1",
		Status:       models.StepStatusApproved,
		DecisionDate: now,
		Comments:     &comments,
		Comment: &models.ApprovalComment{
			WorkflowID: "wf-1",
			UserID:     userID,
			Content:    "[Approved] looks good",
		},
		Activity: &models.Activity{
			OrganizationID: "org-1",
			UserID:         &userID,
			Action:         models.ActivityApprovalApproved,
			Description:    "approved a step",
			Metadata:       []byte("{}"),
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryDecideStepAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE approval_steps").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DecideStep(context.Background(), DecideStepParams{
		StepID:       "step-1",
		Status:       models.StepStatusRejected,
		DecisionDate: now,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryListPendingByApprover(t *testing.T) {
	db, mock, cleanup := newWorkflowRepoMock(t)
	defer cleanup()
	repo := NewWorkflowRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "workflow_id", "approver_id", "position", "status", "decision_date", "comments", "created_at",
		"organization_id", "workflow_name", "resource_type", "resource_id", "created_by",
	}).AddRow("step-1", "wf-1", "user-2", 1, "PENDING", nil, nil, now,
		"org-1", "Invoice 1042", "invoice", "inv-1042", "user-1")

	mock.ExpectQuery("SELECT (.+) FROM approval_steps s").
		WithArgs("org-1", "user-2").
		WillReturnRows(rows)

	steps, err := repo.ListPendingByApprover(context.Background(), "org-1", "user-2")
	require.NoError(t, err)
	assert.Len(t, steps, 1)
	assert.Equal(t, "step-1", steps[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

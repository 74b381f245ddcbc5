package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mfotsing/structureclerk-api/internal/models"
	"github.com/mfotsing/structureclerk-api/pkg/jobs"
)

// JobTypeApprovalDecision identifies queued decision notification jobs.
const JobTypeApprovalDecision = "approval_decision"

type mailSender interface {
	Send(to []string, subject, htmlBody string) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// DecisionNotification is the payload for an approval decision email.
type DecisionNotification struct {
	RecipientID  string
	WorkflowName string
	ResourceType string
	ResourceID   string
	Status       models.StepStatus
	ActorName    string
	Reason       string
}

// NotificationService emails workflow owners when a step is decided.
// It satisfies DecisionNotifier; delivery happens on the job queue.
type NotificationService struct {
	queue   jobQueue
	mailer  mailSender
	users   userFinder
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the service and registers its handler
// on the queue when notifications are enabled.
func NewNotificationService(queue *jobs.Queue, mailer mailSender, users userFinder, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		queue:   queue,
		mailer:  mailer,
		users:   users,
		logger:  logger,
		enabled: enabled && queue != nil && mailer != nil,
	}
	if s.enabled {
		queue.Register(JobTypeApprovalDecision, s.handleDecisionJob)
	}
	return s
}

// NotifyDecision queues a decision email for the workflow owner. Best effort:
// failures are logged, never surfaced to the caller.
func (s *NotificationService) NotifyDecision(ctx context.Context, step *models.StepWithWorkflow, status models.StepStatus, actor *models.JWTClaims, reason string) {
	if !s.enabled || step == nil || actor == nil {
		return
	}
	// The workflow creator asked for the approval; they get the outcome.
	if step.CreatedBy == actor.UserID {
		return
	}

	notification := DecisionNotification{
		RecipientID:  step.CreatedBy,
		WorkflowName: step.WorkflowName,
		ResourceType: step.ResourceType,
		ResourceID:   step.ResourceID,
		Status:       status,
		ActorName:    actor.FullName,
		Reason:       reason,
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeApprovalDecision,
		Payload: notification,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue decision notification", zap.Error(err), zap.String("recipient_id", step.CreatedBy))
	}
}

func (s *NotificationService) handleDecisionJob(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(DecisionNotification)
	if !ok {
		s.logger.Error("decision notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	recipient, err := s.users.FindByID(ctx, notification.RecipientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("decision notification recipient no longer exists", zap.String("recipient_id", notification.RecipientID))
			return nil
		}
		return fmt.Errorf("load notification recipient: %w", err)
	}

	subject, body := decisionEmail(recipient.Locale, notification)
	if err := s.mailer.Send([]string{recipient.Email}, subject, body); err != nil {
		return fmt.Errorf("send decision notification: %w", err)
	}
	return nil
}

// decisionEmail renders the localized subject and HTML body.
func decisionEmail(locale models.Locale, n DecisionNotification) (string, string) {
	workflow := html.EscapeString(n.WorkflowName)
	actor := html.EscapeString(n.ActorName)
	reason := html.EscapeString(n.Reason)

	if locale == models.LocaleFrench {
		subject := fmt.Sprintf("Approbation approuvée : %s", n.WorkflowName)
		body := fmt.Sprintf("<p>%s a approuvé une étape du circuit <strong>%s</strong>.</p>", actor, workflow)
		if n.Status == models.StepStatusRejected {
			subject = fmt.Sprintf("Approbation refusée : %s", n.WorkflowName)
			body = fmt.Sprintf("<p>%s a refusé une étape du circuit <strong>%s</strong>.</p><p>Motif : %s</p>", actor, workflow, reason)
		}
		return subject, body
	}

	subject := fmt.Sprintf("Approval granted: %s", n.WorkflowName)
	body := fmt.Sprintf("<p>%s approved a step of <strong>%s</strong>.</p>", actor, workflow)
	if n.Status == models.StepStatusRejected {
		subject = fmt.Sprintf("Approval rejected: %s", n.WorkflowName)
		body = fmt.Sprintf("<p>%s rejected a step of <strong>%s</strong>.</p><p>Reason: %s</p>", actor, workflow, reason)
	}
	return subject, body
}

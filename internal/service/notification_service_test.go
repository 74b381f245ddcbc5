package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfotsing/structureclerk-api/internal/models"
	"github.com/mfotsing/structureclerk-api/pkg/jobs"
)

type mailerStub struct {
	sent chan sentMail
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

func newMailerStub() *mailerStub {
	return &mailerStub{sent: make(chan sentMail, 4)}
}

func (m *mailerStub) Send(to []string, subject, htmlBody string) error {
	m.sent <- sentMail{to: to, subject: subject, body: htmlBody}
	return nil
}

type userFinderStub struct {
	users map[string]*models.User
}

func (u *userFinderStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	return nil, context.Canceled
}

func TestNotificationServiceDeliversDecisionEmail(t *testing.T) {
	queue := jobs.NewQueue("test-notifications", jobs.QueueConfig{Workers: 1})
	mailStub := newMailerStub()
	users := &userFinderStub{users: map[string]*models.User{
		"user-1": {ID: "user-1", Email: "owner@example.com", Locale: models.LocaleEnglish},
	}}
	svc := NewNotificationService(queue, mailStub, users, true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	step := &models.StepWithWorkflow{
		ApprovalStep:   models.ApprovalStep{ID: "step-1", WorkflowID: "wf-1", ApproverID: "user-2"},
		OrganizationID: "org-1",
		WorkflowName:   "Invoice 1042",
		CreatedBy:      "user-1",
	}
	actor := &models.JWTClaims{UserID: "user-2", OrganizationID: "org-1", FullName: "Marie Tremblay"}

	svc.NotifyDecision(ctx, step, models.StepStatusApproved, actor, "")

	select {
	case mail := <-mailStub.sent:
		assert.Equal(t, []string{"owner@example.com"}, mail.to)
		assert.Contains(t, mail.subject, "Invoice 1042")
		assert.Contains(t, mail.body, "Marie Tremblay")
	case <-time.After(2 * time.Second):
		t.Fatal("decision email never sent")
	}
}

func TestNotificationServiceSkipsSelfNotification(t *testing.T) {
	queue := jobs.NewQueue("test-notifications", jobs.QueueConfig{Workers: 1})
	mailStub := newMailerStub()
	svc := NewNotificationService(queue, mailStub, &userFinderStub{}, true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	step := &models.StepWithWorkflow{
		ApprovalStep: models.ApprovalStep{ID: "step-1"},
		CreatedBy:    "user-1",
	}
	actor := &models.JWTClaims{UserID: "user-1", FullName: "Jean Fortin"}

	svc.NotifyDecision(ctx, step, models.StepStatusApproved, actor, "")

	select {
	case <-mailStub.sent:
		t.Fatal("actor should not be emailed about their own decision")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotificationServiceDisabledIsNoop(t *testing.T) {
	svc := NewNotificationService(nil, nil, nil, false, nil)

	step := &models.StepWithWorkflow{CreatedBy: "user-1"}
	actor := &models.JWTClaims{UserID: "user-2"}
	// Must not panic without a queue or mailer.
	svc.NotifyDecision(context.Background(), step, models.StepStatusRejected, actor, "reason")
}

func TestDecisionEmailLocalization(t *testing.T) {
	notification := DecisionNotification{
		WorkflowName: "Facture 1042",
		Status:       models.StepStatusRejected,
		ActorName:    "Marie Tremblay",
		Reason:       "pièces manquantes",
	}

	subject, body := decisionEmail(models.LocaleFrench, notification)
	assert.Contains(t, subject, "refusée")
	assert.Contains(t, body, "Motif")

	subject, body = decisionEmail(models.LocaleEnglish, notification)
	assert.Contains(t, subject, "rejected")
	assert.Contains(t, body, "Reason")

	notification.Status = models.StepStatusApproved
	subject, _ = decisionEmail(models.LocaleFrench, notification)
	assert.Contains(t, subject, "approuvée")
}

func TestDecisionEmailEscapesHTML(t *testing.T) {
	notification := DecisionNotification{
		WorkflowName: "<script>alert(1)</script>",
		Status:       models.StepStatusApproved,
		ActorName:    "Marie",
	}
	_, body := decisionEmail(models.LocaleEnglish, notification)
	require.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

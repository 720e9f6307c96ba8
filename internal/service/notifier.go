package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/directory-moderation-api/internal/models"
	"github.com/noah-isme/directory-moderation-api/pkg/jobs"
)

// Notification job types.
const (
	NotificationProposalSubmitted = "proposal.submitted"
	NotificationProposalDecided   = "proposal.decided"
)

// ProposalEvent describes a submission or decision for notification purposes.
type ProposalEvent struct {
	Kind           string                `json:"kind"`
	ID             string                `json:"id"`
	Type           models.ApprovalType   `json:"type"`
	Status         models.ProposalStatus `json:"status"`
	EntityID       string                `json:"entityId,omitempty"`
	Source         string                `json:"source,omitempty"`
	SubmitterEmail string                `json:"submitterEmail,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	OccurredAt     time.Time             `json:"occurredAt"`
}

// Notifier announces moderation events. Implementations never fail the caller.
type Notifier interface {
	ProposalSubmitted(ctx context.Context, event ProposalEvent)
	ProposalDecided(ctx context.Context, event ProposalEvent)
}

// NotificationSender delivers one notification.
type NotificationSender interface {
	Send(ctx context.Context, kind string, event ProposalEvent) error
}

type nopNotifier struct{}

func (nopNotifier) ProposalSubmitted(context.Context, ProposalEvent) {}
func (nopNotifier) ProposalDecided(context.Context, ProposalEvent)   {}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// QueueNotifier hands events to the background job queue.
type QueueNotifier struct {
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewQueueNotifier constructs a notifier backed by queue.
func NewQueueNotifier(queue jobEnqueuer, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueNotifier{queue: queue, logger: logger}
}

// ProposalSubmitted enqueues a submission notice.
func (n *QueueNotifier) ProposalSubmitted(_ context.Context, event ProposalEvent) {
	n.enqueue(NotificationProposalSubmitted, event)
}

// ProposalDecided enqueues a decision notice.
func (n *QueueNotifier) ProposalDecided(_ context.Context, event ProposalEvent) {
	n.enqueue(NotificationProposalDecided, event)
}

func (n *QueueNotifier) enqueue(kind string, event ProposalEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	job := jobs.Job{ID: uuid.NewString(), Type: kind, Payload: event}
	if err := n.queue.Enqueue(job); err != nil {
		n.logger.Warn("failed to enqueue notification",
			zap.String("type", kind),
			zap.String("proposal_id", event.ID),
			zap.Error(err))
	}
}

// NotificationWorker delivers queued notifications through a sender.
type NotificationWorker struct {
	sender NotificationSender
}

// NewNotificationWorker constructs the worker.
func NewNotificationWorker(sender NotificationSender) *NotificationWorker {
	return &NotificationWorker{sender: sender}
}

// Handle satisfies jobs.Handler.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(ProposalEvent)
	if !ok {
		return fmt.Errorf("notification job %s: unexpected payload %T", job.ID, job.Payload)
	}
	return w.sender.Send(ctx, job.Type, event)
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs the sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the event.
func (s *LogSender) Send(_ context.Context, kind string, event ProposalEvent) error {
	s.logger.Info("notification",
		zap.String("type", kind),
		zap.String("kind", event.Kind),
		zap.String("proposal_id", event.ID),
		zap.String("proposal_type", string(event.Type)),
		zap.String("status", string(event.Status)),
		zap.String("entity_id", event.EntityID),
		zap.String("submitter_email", event.SubmitterEmail))
	return nil
}

func approvalEvent(a *models.Approval) ProposalEvent {
	return ProposalEvent{
		Kind:           models.AuditResourceApproval,
		ID:             a.ID,
		Type:           a.Type,
		Status:         a.Status,
		EntityID:       derefString(a.EntityID),
		Source:         a.Source,
		SubmitterEmail: a.SubmitterEmail,
		Notes:          derefString(a.Notes),
		OccurredAt:     a.UpdatedAt,
	}
}

func pendingChangeEvent(c *models.PendingChange) ProposalEvent {
	return ProposalEvent{
		Kind:           models.AuditResourcePendingChange,
		ID:             c.ID,
		Type:           c.ChangeType,
		Status:         c.Status,
		EntityID:       c.EntityID,
		Source:         models.SourceOwner,
		SubmitterEmail: c.SubmitterEmail,
		Notes:          derefString(c.Notes),
		OccurredAt:     c.UpdatedAt,
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/directory-moderation-api/internal/models"
	"github.com/noah-isme/directory-moderation-api/pkg/jobs"
)

type enqueuerStub struct {
	jobs []jobs.Job
	err  error
}

func (e *enqueuerStub) Enqueue(job jobs.Job) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

type senderStub struct {
	kinds  []string
	events []ProposalEvent
}

func (s *senderStub) Send(ctx context.Context, kind string, event ProposalEvent) error {
	s.kinds = append(s.kinds, kind)
	s.events = append(s.events, event)
	return nil
}

func TestQueueNotifierEnqueuesEvents(t *testing.T) {
	queue := &enqueuerStub{}
	n := NewQueueNotifier(queue, zap.NewNop())

	n.ProposalSubmitted(context.Background(), ProposalEvent{ID: "approval-1", Type: models.ApprovalTypeNewEntity})
	n.ProposalDecided(context.Background(), ProposalEvent{ID: "approval-1", Status: models.ProposalStatusApproved, OccurredAt: time.Unix(10, 0)})

	require.Len(t, queue.jobs, 2)
	assert.Equal(t, NotificationProposalSubmitted, queue.jobs[0].Type)
	assert.NotEmpty(t, queue.jobs[0].ID)
	assert.False(t, queue.jobs[0].Payload.(ProposalEvent).OccurredAt.IsZero())
	assert.Equal(t, NotificationProposalDecided, queue.jobs[1].Type)
	assert.Equal(t, time.Unix(10, 0), queue.jobs[1].Payload.(ProposalEvent).OccurredAt)
}

func TestQueueNotifierSwallowsEnqueueErrors(t *testing.T) {
	n := NewQueueNotifier(&enqueuerStub{err: jobs.ErrQueueFull}, nil)
	assert.NotPanics(t, func() {
		n.ProposalSubmitted(context.Background(), ProposalEvent{ID: "approval-1"})
	})
}

func TestNotificationWorkerDispatches(t *testing.T) {
	sender := &senderStub{}
	worker := NewNotificationWorker(sender)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Type: NotificationProposalDecided, Payload: ProposalEvent{ID: "pending-1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{NotificationProposalDecided}, sender.kinds)
	assert.Equal(t, "pending-1", sender.events[0].ID)

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-2", Payload: "nope"})
	assert.Error(t, err)
}

func TestNotificationWorkerRunsOnQueue(t *testing.T) {
	sender := &senderStub{}
	done := make(chan struct{})
	worker := NewNotificationWorker(sender)
	queue := jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		defer close(done)
		return worker.Handle(ctx, job)
	}, jobs.QueueConfig{Workers: 1})
	queue.Start(context.Background())
	defer queue.Stop()

	NewQueueNotifier(queue, zap.NewNop()).ProposalSubmitted(context.Background(), ProposalEvent{ID: "approval-9"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
	assert.Equal(t, "approval-9", sender.events[0].ID)
}

func TestEventBuilders(t *testing.T) {
	entityID := "entity-1"
	notes := "ok"
	a := approvalEvent(&models.Approval{ID: "approval-1", Type: models.ApprovalTypeAddTag, Status: models.ProposalStatusApproved, EntityID: &entityID, Notes: &notes, Source: models.SourcePublic})
	assert.Equal(t, models.AuditResourceApproval, a.Kind)
	assert.Equal(t, "entity-1", a.EntityID)
	assert.Equal(t, "ok", a.Notes)

	p := pendingChangeEvent(&models.PendingChange{ID: "pending-1", EntityID: "entity-1", ChangeType: models.ApprovalTypeUpdateImage})
	assert.Equal(t, models.SourceOwner, p.Source)
	assert.Equal(t, models.ApprovalTypeUpdateImage, p.Type)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(nil).Send(context.Background(), NotificationProposalSubmitted, ProposalEvent{ID: "approval-1"}))
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	"github.com/noah-isme/directory-moderation-api/internal/repository"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type approvalStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, approval *models.Approval) error
	GetByID(ctx context.Context, id string) (*models.Approval, error)
	GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Approval, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.Approval, error)
	MarkDecided(ctx context.Context, exec sqlx.ExtContext, params repository.DecisionParams) error
}

type pendingChangeStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, change *models.PendingChange) error
	GetByID(ctx context.Context, id string) (*models.PendingChange, error)
	GetByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.PendingChange, error)
	List(ctx context.Context, filter models.PendingChangeFilter) ([]models.PendingChange, error)
	MarkDecided(ctx context.Context, exec sqlx.ExtContext, params repository.DecisionParams) error
}

type entityCacheInvalidator interface {
	InvalidateEntity(ctx context.Context, slug string)
}

type moderationMetrics interface {
	RecordProposal(kind string, variant models.ApprovalType, outcome string)
	ObserveApply(variant models.ApprovalType, duration time.Duration, err error)
}

// ModerationSettings are the workflow switches read from configuration.
type ModerationSettings struct {
	SystemUserID  string
	StrictUpdates bool
}

// ModerationStores groups the entity graph stores the variant handlers write through.
type ModerationStores struct {
	Entities entityWriter
	Users    userChecker
	Resolver refResolver
}

// ModerationService runs submissions, the review state machine and direct administrator edits.
type ModerationService struct {
	tx         txProvider
	approvals  approvalStore
	pending    pendingChangeStore
	entities   entityWriter
	deps       applyDeps
	gate       AuthorizationGate
	normalizer *SubmissionNormalizer
	research   ResearchProducer
	audit      auditLogger
	cache      entityCacheInvalidator
	metrics    moderationMetrics
	notifier   Notifier
	settings   ModerationSettings
	logger     *zap.Logger
	now        func() time.Time
}

// ModerationOption configures optional collaborators.
type ModerationOption func(*ModerationService)

// WithResearchProducer enables AI research submissions.
func WithResearchProducer(p ResearchProducer) ModerationOption {
	return func(s *ModerationService) { s.research = p }
}

// WithEntityCache invalidates cached entity reads after every applied mutation.
func WithEntityCache(c entityCacheInvalidator) ModerationOption {
	return func(s *ModerationService) { s.cache = c }
}

// WithModerationMetrics records proposal counters and apply latency.
func WithModerationMetrics(m moderationMetrics) ModerationOption {
	return func(s *ModerationService) { s.metrics = m }
}

// WithNotifier announces submissions and decisions.
func WithNotifier(n Notifier) ModerationOption {
	return func(s *ModerationService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewModerationService wires the workflow.
func NewModerationService(
	tx txProvider,
	approvals approvalStore,
	pending pendingChangeStore,
	stores ModerationStores,
	normalizer *SubmissionNormalizer,
	audit auditLogger,
	settings ModerationSettings,
	logger *zap.Logger,
	opts ...ModerationOption,
) *ModerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ModerationService{
		tx:        tx,
		approvals: approvals,
		pending:   pending,
		entities:  stores.Entities,
		deps: applyDeps{
			entities: stores.Entities,
			users:    stores.Users,
			resolver: stores.Resolver,
		},
		normalizer: normalizer,
		audit:      audit,
		notifier:   nopNotifier{},
		settings:   settings,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SubmitProposal stores a public submission for review. Administrators skip the queue:
// the same variant handler runs immediately and only an audit record is written.
func (s *ModerationService) SubmitProposal(ctx context.Context, req dto.SubmitProposalRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.SubmissionResult, error) {
	email := strings.TrimSpace(req.SubmitterEmail)
	var submittedBy *string
	if actor != nil && actor.ID != "" {
		id := actor.ID
		submittedBy = &id
		email = actor.Email
	}
	if err := s.normalizer.ValidateEmail(email); err != nil {
		return nil, err
	}

	path := s.gate.RouteSubmission(actor, models.SourcePublic)
	payload, entityID, err := s.buildPayload(ctx, req, path == PathDirect)
	if err != nil {
		return nil, err
	}

	if path == PathDirect {
		entity, err := s.applyDirect(ctx, payload, entityID, actor, meta)
		if err != nil {
			return nil, err
		}
		return &dto.SubmissionResult{Applied: true, Entity: entity}, nil
	}

	approval := &models.Approval{
		Payload:        payload,
		SubmittedBy:    submittedBy,
		SubmitterEmail: email,
		Source:         models.SourcePublic,
	}
	if entityID != "" {
		approval.EntityID = &entityID
	}
	if err := s.queueApproval(ctx, approval, meta); err != nil {
		return nil, err
	}
	return &dto.SubmissionResult{Proposal: approval}, nil
}

// ResearchEntity asks the research producer for a draft and queues it. Drafts always need review.
func (s *ModerationService) ResearchEntity(ctx context.Context, req dto.ResearchRequest, actor *models.ActingUser, meta dto.RequestMeta) (*models.Approval, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "query is required", map[string]interface{}{"field": "query"})
	}
	if s.research == nil {
		return nil, appErrors.Clone(appErrors.ErrUpstream, "research service not configured")
	}
	result, err := s.research.Research(ctx, req.Query, strings.TrimSpace(req.Location))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "research service failed")
	}
	if err := s.normalizer.CheckResearchHint(result.DuplicateCheck); err != nil {
		return nil, err
	}
	payload := result.Entity
	if err := s.normalizer.NormalizeNewEntity(ctx, &payload, NewEntityChecks{}); err != nil {
		return nil, err
	}

	submittedBy := actor.ID
	approval := &models.Approval{
		Payload:        &payload,
		SubmittedBy:    &submittedBy,
		SubmitterEmail: actor.Email,
		Source:         models.SourceAI,
	}
	if err := s.queueApproval(ctx, approval, meta); err != nil {
		return nil, err
	}
	return approval, nil
}

// ListProposals returns approvals matching the query.
func (s *ModerationService) ListProposals(ctx context.Context, query dto.ProposalQuery, actor *models.ActingUser) ([]models.Approval, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	approvals, err := s.approvals.List(ctx, models.ApprovalFilter{
		Status:   models.ProposalStatus(strings.ToUpper(string(query.Status))),
		Type:     models.ApprovalType(strings.ToUpper(string(query.Type))),
		EntityID: query.EntityID,
		Source:   strings.ToLower(query.Source),
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
	}
	return approvals, nil
}

// GetProposal returns one approval.
func (s *ModerationService) GetProposal(ctx context.Context, id string, actor *models.ActingUser) (*models.Approval, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	approval, err := s.approvals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return approval, nil
}

// DecideProposal approves or rejects a PENDING approval. An approval is applied and marked
// terminal in one transaction; a failed apply leaves it PENDING.
func (s *ModerationService) DecideProposal(ctx context.Context, id string, req dto.DecisionRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.ApprovalDecision, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	decision, err := parseDecision(req.Decision)
	if err != nil {
		return nil, err
	}

	var (
		approval *models.Approval
		applied  ApplyResult
	)
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.approvals.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
		}
		if current.Status.Terminal() {
			return alreadyProcessed(current.Status)
		}

		if decision == models.DecisionApprove {
			applied, err = s.apply(ctx, tx, current.Payload, derefString(current.EntityID), actor.ID, s.settings.SystemUserID, s.settings.StrictUpdates)
			if err != nil {
				return err
			}
		}

		params := repository.DecisionParams{
			ID:         current.ID,
			Status:     decision.Status(),
			ReviewedBy: actor.ID,
			ReviewedAt: s.now(),
			Notes:      optionalString(req.Notes),
		}
		if current.Type == models.ApprovalTypeNewEntity && applied.EntityID != "" {
			params.EntityID = &applied.EntityID
		}
		if err := s.approvals.MarkDecided(ctx, tx, params); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrAlreadyProcessed, "proposal already processed")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update proposal")
		}

		current.Status = params.Status
		current.ReviewedBy = &params.ReviewedBy
		current.ReviewedAt = &params.ReviewedAt
		current.UpdatedAt = params.ReviewedAt
		if params.Notes != nil {
			current.Notes = params.Notes
		}
		if params.EntityID != nil {
			current.EntityID = params.EntityID
		}
		approval = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterApply(ctx, applied)
	s.recordProposal("approval", approval.Type, string(approval.Status))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionProposalDecide,
		Resource:   models.AuditResourceApproval,
		ResourceID: &approval.ID,
		NewValues:  decisionAuditValues(approval.Status, approval.Notes, approval.EntityID),
	}, meta)
	s.notifier.ProposalDecided(ctx, approvalEvent(approval))

	out := &dto.ApprovalDecision{Proposal: approval}
	if decision == models.DecisionApprove && !applied.Skipped {
		out.Entity = applied.Entity
	}
	return out, nil
}

// ListPendingChanges returns owner changes matching the query.
func (s *ModerationService) ListPendingChanges(ctx context.Context, query dto.PendingChangeQuery, actor *models.ActingUser) ([]models.PendingChange, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	changes, err := s.pending.List(ctx, models.PendingChangeFilter{
		Status:   models.ProposalStatus(strings.ToUpper(string(query.Status))),
		EntityID: query.EntityID,
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending changes")
	}
	return changes, nil
}

// GetPendingChange returns one owner change.
func (s *ModerationService) GetPendingChange(ctx context.Context, id string, actor *models.ActingUser) (*models.PendingChange, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	change, err := s.pending.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pending change not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending change")
	}
	return change, nil
}

// DecidePendingChange runs the same state machine as DecideProposal for an owner change.
func (s *ModerationService) DecidePendingChange(ctx context.Context, id string, req dto.DecisionRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.PendingChangeDecision, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	decision, err := parseDecision(req.Decision)
	if err != nil {
		return nil, err
	}

	var (
		change  *models.PendingChange
		applied ApplyResult
	)
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := s.pending.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "pending change not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending change")
		}
		if current.Status.Terminal() {
			return alreadyProcessed(current.Status)
		}

		if decision == models.DecisionApprove {
			applied, err = s.apply(ctx, tx, current.Payload, current.EntityID, actor.ID, "", s.settings.StrictUpdates)
			if err != nil {
				return err
			}
		}

		params := repository.DecisionParams{
			ID:         current.ID,
			Status:     decision.Status(),
			ReviewedBy: actor.ID,
			ReviewedAt: s.now(),
			Notes:      optionalString(req.Notes),
		}
		if err := s.pending.MarkDecided(ctx, tx, params); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrAlreadyProcessed, "pending change already processed")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update pending change")
		}

		current.Status = params.Status
		current.ReviewedBy = &params.ReviewedBy
		current.ReviewedAt = &params.ReviewedAt
		current.UpdatedAt = params.ReviewedAt
		if params.Notes != nil {
			current.Notes = params.Notes
		}
		change = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterApply(ctx, applied)
	s.recordProposal("pending_change", change.ChangeType, string(change.Status))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionPendingChangeDecide,
		Resource:   models.AuditResourcePendingChange,
		ResourceID: &change.ID,
		NewValues:  decisionAuditValues(change.Status, change.Notes, &change.EntityID),
	}, meta)
	s.notifier.ProposalDecided(ctx, pendingChangeEvent(change))

	out := &dto.PendingChangeDecision{PendingChange: change}
	if decision == models.DecisionApprove {
		out.Entity = applied.Entity
	}
	return out, nil
}

// UpdateEntity edits an existing entity. Administrators mutate it directly; owners get
// PendingChange records; everyone else is refused.
func (s *ModerationService) UpdateEntity(ctx context.Context, id string, req dto.UpdateEntityRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.UpdateEntityResult, error) {
	entity, err := s.loadEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unknown entity status", map[string]interface{}{"status": *req.Status})
	}
	changesStatus := req.Status != nil && *req.Status != entity.Status

	path, err := s.gate.RouteEntityUpdate(actor, entity, changesStatus)
	if err != nil {
		return nil, err
	}
	if path == PathDirect {
		updated, err := s.updateDirect(ctx, id, req, actor, meta)
		if err != nil {
			return nil, err
		}
		return &dto.UpdateEntityResult{Applied: true, Entity: updated}, nil
	}

	change, err := s.buildPendingChange(entity, req, actor)
	if err != nil {
		return nil, err
	}
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.pending.Create(ctx, tx, change); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store pending change")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordProposal("pending_change", change.ChangeType, string(change.Status))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionPendingChangeSubmit,
		Resource:   models.AuditResourcePendingChange,
		ResourceID: &change.ID,
		NewValues:  marshalAuditValue(change),
	}, meta)
	s.notifier.ProposalSubmitted(ctx, pendingChangeEvent(change))
	return &dto.UpdateEntityResult{PendingChange: change}, nil
}

func (s *ModerationService) buildPayload(ctx context.Context, req dto.SubmitProposalRequest, trusted bool) (models.ApprovalPayload, string, error) {
	variant := models.ApprovalType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !variant.Valid() {
		return nil, "", appErrors.WithDetails(appErrors.ErrValidation, "unknown proposal type", map[string]interface{}{"type": req.Type})
	}
	if variant == models.ApprovalTypeNewEntity {
		if req.Entity == nil {
			return nil, "", appErrors.WithDetails(appErrors.ErrValidation, "entity is required", map[string]interface{}{"field": "entity"})
		}
		payload := *req.Entity
		if err := s.normalizer.NormalizeNewEntity(ctx, &payload, NewEntityChecks{SkipDuplicateCheck: trusted}); err != nil {
			return nil, "", err
		}
		return &payload, "", nil
	}

	entityID := strings.TrimSpace(req.EntityID)
	if entityID == "" {
		return nil, "", appErrors.WithDetails(appErrors.ErrValidation, "entityId is required", map[string]interface{}{"field": "entityId"})
	}
	entity, err := s.loadEntity(ctx, entityID)
	if err != nil {
		return nil, "", err
	}

	switch variant {
	case models.ApprovalTypeUpdateEntity:
		if req.Fields == nil {
			return nil, "", appErrors.WithDetails(appErrors.ErrValidation, "fields are required", map[string]interface{}{"field": "fields"})
		}
		payload, err := s.normalizer.NormalizeEntityUpdate(entity, *req.Fields)
		return payload, entityID, err
	case models.ApprovalTypeAddTag:
		ref, err := s.normalizer.NormalizeTag(ctx, req.TagSlug)
		if err != nil {
			return nil, "", err
		}
		return &models.AddTagPayload{TagRef: *ref}, entityID, nil
	case models.ApprovalTypeRemoveTag:
		ref, err := s.normalizer.NormalizeTag(ctx, req.TagSlug)
		if err != nil {
			return nil, "", err
		}
		return &models.RemoveTagPayload{TagRef: *ref}, entityID, nil
	default:
		payload, err := s.normalizer.NormalizeImages(entity, req.Images)
		return payload, entityID, err
	}
}

// buildPendingChange turns an owner edit into exactly one pending change. Field and
// image edits are separate submissions so a reviewer always decides a whole edit.
func (s *ModerationService) buildPendingChange(entity *models.Entity, req dto.UpdateEntityRequest, actor *models.ActingUser) (*models.PendingChange, error) {
	hasFields := !req.Fields.IsEmpty()
	if hasFields && req.Images != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "submit field and image changes as separate edits",
			map[string]interface{}{"field": "images"})
	}
	change := &models.PendingChange{
		EntityID:       entity.ID,
		SubmittedBy:    actor.ID,
		SubmitterEmail: actor.Email,
	}
	switch {
	case hasFields:
		payload, err := s.normalizer.NormalizeEntityUpdate(entity, req.Fields)
		if err != nil {
			return nil, err
		}
		change.Payload = payload
		if names := payload.New.FieldNames(); len(names) == 1 {
			change.FieldName = &names[0]
		}
	case req.Images != nil:
		payload, err := s.normalizer.NormalizeImages(entity, *req.Images)
		if err != nil {
			return nil, err
		}
		change.Payload = payload
		field := "images"
		change.FieldName = &field
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "no changes to submit")
	}
	return change, nil
}

func (s *ModerationService) queueApproval(ctx context.Context, approval *models.Approval, meta dto.RequestMeta) error {
	if err := s.approvals.Create(ctx, nil, approval); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store proposal")
	}
	s.recordProposal("approval", approval.Type, string(approval.Status))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     approval.SubmittedBy,
		Action:     models.AuditActionProposalSubmit,
		Resource:   models.AuditResourceApproval,
		ResourceID: &approval.ID,
		NewValues:  marshalAuditValue(approval),
	}, meta)
	s.notifier.ProposalSubmitted(ctx, approvalEvent(approval))
	return nil
}

func (s *ModerationService) applyDirect(ctx context.Context, payload models.ApprovalPayload, entityID string, actor *models.ActingUser, meta dto.RequestMeta) (*models.Entity, error) {
	var applied ApplyResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		applied, err = s.apply(ctx, tx, payload, entityID, actor.ID, actor.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterApply(ctx, applied)
	s.recordProposal("direct", payload.Type(), "APPLIED")
	s.logger.Info("entity mutated directly",
		zap.String("entity_id", applied.EntityID),
		zap.String("type", string(payload.Type())),
		zap.String("actor_id", actor.ID))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionEntityDirectMutation,
		Resource:   models.AuditResourceEntity,
		ResourceID: &applied.EntityID,
		NewValues:  marshalAuditValue(map[string]interface{}{"type": payload.Type(), "payload": payload}),
	}, meta)
	return applied.Entity, nil
}

func (s *ModerationService) updateDirect(ctx context.Context, id string, req dto.UpdateEntityRequest, actor *models.ActingUser, meta dto.RequestMeta) (*models.Entity, error) {
	var (
		updated   *models.Entity
		oldValues map[string]interface{}
		newValues map[string]interface{}
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		entity, err := s.entities.LockByID(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "entity not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity")
		}
		changed, err := s.normalizer.DiffEntityFields(entity, req.Fields)
		if err != nil {
			return err
		}
		oldValues = map[string]interface{}{}
		newValues = map[string]interface{}{}
		if !changed.IsEmpty() {
			oldValues["fields"] = changed.CurrentValues(entity)
			newValues["fields"] = changed
			changed.ApplyTo(entity)
		}
		if req.Status != nil && *req.Status != entity.Status {
			oldValues["status"] = entity.Status
			newValues["status"] = *req.Status
			entity.Status = *req.Status
		}
		if req.Images != nil {
			images, err := s.normalizer.CleanImages(*req.Images)
			if err != nil {
				return err
			}
			if !maps.Equal(images, entity.Images) {
				oldValues["images"] = entity.Images
				newValues["images"] = images
				entity.Images = images
			}
		}
		if len(newValues) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "no changes to apply")
		}
		if err := s.entities.Update(ctx, tx, entity); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update entity")
		}
		updated = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterApply(ctx, ApplyResult{EntityID: updated.ID, Entity: updated})
	s.logger.Info("entity mutated directly",
		zap.String("entity_id", updated.ID),
		zap.String("actor_id", actor.ID))
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionEntityDirectMutation,
		Resource:   models.AuditResourceEntity,
		ResourceID: &updated.ID,
		OldValues:  marshalAuditValue(oldValues),
		NewValues:  marshalAuditValue(newValues),
	}, meta)
	return updated, nil
}

func (s *ModerationService) apply(ctx context.Context, tx sqlx.ExtContext, payload models.ApprovalPayload, entityID, actorID, fallbackOwner string, strict bool) (ApplyResult, error) {
	start := time.Now()
	result, err := s.deps.applyPayload(ctx, tx, payload, entityID, actorID, fallbackOwner, strict)
	if s.metrics != nil && payload != nil {
		s.metrics.ObserveApply(payload.Type(), time.Since(start), err)
	}
	if err != nil {
		s.logger.Warn("apply failed",
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
	return result, err
}

func (s *ModerationService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

func (s *ModerationService) loadEntity(ctx context.Context, id string) (*models.Entity, error) {
	entity, err := s.entities.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity")
	}
	return entity, nil
}

func (s *ModerationService) afterApply(ctx context.Context, applied ApplyResult) {
	if s.cache == nil || applied.Entity == nil || applied.Entity.Slug == "" {
		return
	}
	s.cache.InvalidateEntity(ctx, applied.Entity.Slug)
}

func (s *ModerationService) recordProposal(kind string, variant models.ApprovalType, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordProposal(kind, variant, outcome)
}

func (s *ModerationService) emitAudit(ctx context.Context, log *models.AuditLog, meta dto.RequestMeta) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = meta.IP
	if log.IPAddress == "" {
		log.IPAddress = "system"
	}
	log.UserAgent = meta.UserAgent
	if log.UserAgent == "" {
		log.UserAgent = "moderation-service"
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func parseDecision(d models.Decision) (models.Decision, error) {
	decision := models.Decision(strings.ToUpper(strings.TrimSpace(string(d))))
	if decision != models.DecisionApprove && decision != models.DecisionReject {
		return "", appErrors.WithDetails(appErrors.ErrValidation, "decision must be APPROVE or REJECT", map[string]interface{}{"field": "decision"})
	}
	return decision, nil
}

func alreadyProcessed(status models.ProposalStatus) error {
	return appErrors.WithDetails(appErrors.ErrAlreadyProcessed, "proposal already "+strings.ToLower(string(status)),
		map[string]interface{}{"status": status})
}

func decisionAuditValues(status models.ProposalStatus, notes *string, entityID *string) []byte {
	values := map[string]interface{}{"status": status}
	if notes != nil {
		values["notes"] = *notes
	}
	if entityID != nil {
		values["entityId"] = *entityID
	}
	return marshalAuditValue(values)
}

func marshalAuditValue(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

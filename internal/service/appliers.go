package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strconv"

	"github.com/gosimple/slug"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

type entityWriter interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Entity, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Entity, error)
	LockSlug(ctx context.Context, exec sqlx.ExtContext, base string) error
	SlugsWithPrefix(ctx context.Context, exec sqlx.ExtContext, base string) ([]string, error)
	Create(ctx context.Context, exec sqlx.ExtContext, entity *models.Entity) error
	Update(ctx context.Context, exec sqlx.ExtContext, entity *models.Entity) error
	AttachCategories(ctx context.Context, exec sqlx.ExtContext, entityID string, categoryIDs []string) error
	UpsertVerifiedTag(ctx context.Context, exec sqlx.ExtContext, entityID, tagID, addedBy string) error
	RemoveTag(ctx context.Context, exec sqlx.ExtContext, entityID, tagID string) error
}

type userChecker interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

type refResolver interface {
	Resolve(ctx context.Context, exec sqlx.ExtContext, categorySlugs, tagSlugs []string) (models.ResolvedRefs, error)
}

const uniqueViolation = "23505"

// applyDeps are the stores every variant handler writes through.
type applyDeps struct {
	entities entityWriter
	users    userChecker
	resolver refResolver
}

// ApplyResult reports what an apply touched.
type ApplyResult struct {
	EntityID string
	Entity   *models.Entity
	// Skipped is set when the target vanished and the apply became a no-op.
	Skipped bool
}

// variantApplier executes one payload inside the caller's transaction.
type variantApplier struct {
	applyDeps
	exec         sqlx.ExtContext
	actorID      string
	entityID     string
	systemUserID string
	strict       bool
	result       ApplyResult
}

var _ models.PayloadVisitor = (*variantApplier)(nil)

// applyPayload runs the handler for payload's variant. entityID is the target of non-creating variants.
func (d applyDeps) applyPayload(ctx context.Context, exec sqlx.ExtContext, payload models.ApprovalPayload, entityID, actorID, systemUserID string, strict bool) (ApplyResult, error) {
	if payload == nil {
		return ApplyResult{}, appErrors.Clone(appErrors.ErrApplyFailed, "proposal has no payload")
	}
	a := &variantApplier{
		applyDeps:    d,
		exec:         exec,
		actorID:      actorID,
		entityID:     entityID,
		systemUserID: systemUserID,
		strict:       strict,
	}
	if err := payload.Accept(ctx, a); err != nil {
		if appErrors.HasCode(err, appErrors.ErrApplyFailed) {
			return ApplyResult{}, err
		}
		return ApplyResult{}, appErrors.Wrap(err, appErrors.ErrApplyFailed.Code, appErrors.ErrApplyFailed.Status,
			fmt.Sprintf("failed to apply %s", payload.Type()))
	}
	return a.result, nil
}

func applyFailure(message string, details map[string]interface{}) error {
	return appErrors.WithDetails(appErrors.ErrApplyFailed, message, details)
}

func (a *variantApplier) VisitNewEntity(ctx context.Context, p *models.NewEntityPayload) error {
	ownerID := a.systemUserID
	if p.OwnerID != nil && *p.OwnerID != "" {
		ownerID = *p.OwnerID
	}
	if ownerID == "" {
		return applyFailure("no owner available for the new entity", nil)
	}
	ok, err := a.users.Exists(ctx, a.exec, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return applyFailure("owner does not exist", map[string]interface{}{"ownerId": ownerID})
	}

	refs, err := a.resolver.Resolve(ctx, a.exec, p.CategorySlugs, p.TagSlugs)
	if err != nil {
		return err
	}

	base := slug.Make(p.Name)
	if base == "" {
		base = "entity"
	}
	if err := a.entities.LockSlug(ctx, a.exec, base); err != nil {
		return err
	}
	taken, err := a.entities.SlugsWithPrefix(ctx, a.exec, base)
	if err != nil {
		return err
	}

	entity := &models.Entity{
		Slug:                    nextFreeSlug(base, taken),
		Name:                    p.Name,
		NameTranslations:        p.NameTranslations,
		Description:             p.Description,
		DescriptionTranslations: p.DescriptionTranslations,
		Address:                 p.Address,
		Latitude:                p.Latitude,
		Longitude:               p.Longitude,
		Phone:                   p.Phone,
		Website:                 p.Website,
		SocialMedia:             p.SocialMedia,
		Hours:                   p.Hours,
		Status:                  models.EntityStatusActive,
		EntityType:              p.EntityType,
		OwnerID:                 ownerID,
		Images:                  p.Images,
	}
	if err := a.entities.Create(ctx, a.exec, entity); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return applyFailure("slug already taken, retry the approval", map[string]interface{}{"slug": entity.Slug})
		}
		return err
	}
	if err := a.entities.AttachCategories(ctx, a.exec, entity.ID, refs.CategoryIDs); err != nil {
		return err
	}
	for _, tagID := range refs.TagIDs {
		if err := a.entities.UpsertVerifiedTag(ctx, a.exec, entity.ID, tagID, a.actorID); err != nil {
			return err
		}
	}
	a.result = ApplyResult{EntityID: entity.ID, Entity: entity}
	return nil
}

func (a *variantApplier) VisitUpdateEntity(ctx context.Context, p *models.UpdateEntityPayload) error {
	entity, err := a.lockTarget(ctx)
	if err != nil {
		return err
	}
	if a.strict {
		if field := p.Old.Mismatch(entity, p.New); field != "" {
			return applyFailure("entity changed since the proposal was submitted",
				map[string]interface{}{"field": field})
		}
	}
	p.New.ApplyTo(entity)
	if err := a.entities.Update(ctx, a.exec, entity); err != nil {
		return err
	}
	a.result = ApplyResult{EntityID: entity.ID, Entity: entity}
	return nil
}

func (a *variantApplier) VisitAddTag(ctx context.Context, p *models.AddTagPayload) error {
	entity, tagID, err := a.lockTagTarget(ctx, p.TagSlug)
	if err != nil || tagID == "" {
		return err
	}
	return a.entities.UpsertVerifiedTag(ctx, a.exec, entity.ID, tagID, a.actorID)
}

func (a *variantApplier) VisitRemoveTag(ctx context.Context, p *models.RemoveTagPayload) error {
	entity, tagID, err := a.lockTagTarget(ctx, p.TagSlug)
	if err != nil || tagID == "" {
		return err
	}
	return a.entities.RemoveTag(ctx, a.exec, entity.ID, tagID)
}

// lockTagTarget locks the entity and resolves tagSlug against the current catalog.
// An empty tag id means the slug no longer names a tag and the result is marked skipped.
func (a *variantApplier) lockTagTarget(ctx context.Context, tagSlug string) (*models.Entity, string, error) {
	entity, err := a.lockTarget(ctx)
	if err != nil {
		return nil, "", err
	}
	a.result = ApplyResult{EntityID: entity.ID, Entity: entity}
	refs, err := a.resolver.Resolve(ctx, a.exec, nil, []string{tagSlug})
	if err != nil {
		return nil, "", err
	}
	if len(refs.TagIDs) == 0 {
		a.result.Skipped = true
		return entity, "", nil
	}
	return entity, refs.TagIDs[0], nil
}

func (a *variantApplier) VisitUpdateImage(ctx context.Context, p *models.UpdateImagePayload) error {
	entity, err := a.lockTarget(ctx)
	if err != nil {
		return err
	}
	if a.strict && !maps.Equal(p.Old, entity.Images) {
		return applyFailure("entity images changed since the proposal was submitted",
			map[string]interface{}{"field": "images"})
	}
	entity.Images = maps.Clone(p.New)
	if entity.Images == nil {
		entity.Images = models.StringMap{}
	}
	if err := a.entities.Update(ctx, a.exec, entity); err != nil {
		return err
	}
	a.result = ApplyResult{EntityID: entity.ID, Entity: entity}
	return nil
}

func (a *variantApplier) lockTarget(ctx context.Context) (*models.Entity, error) {
	if a.entityID == "" {
		return nil, applyFailure("proposal does not reference an entity", nil)
	}
	entity, err := a.entities.LockByID(ctx, a.exec, a.entityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, applyFailure("target entity no longer exists", map[string]interface{}{"entityId": a.entityID})
		}
		return nil, err
	}
	return entity, nil
}

// nextFreeSlug returns base, or base-N with the smallest N >= 2 not already taken.
func nextFreeSlug(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		used[s] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}

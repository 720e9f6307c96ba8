package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

const entitySlugCachePrefix = "entity:slug:"

type entityReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Entity, error)
	FindBySlug(ctx context.Context, slug string) (*models.Entity, error)
	List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error)
	ListCategories(ctx context.Context, entityID string) ([]models.Category, error)
	ListTags(ctx context.Context, entityID string) ([]models.EntityTag, error)
}

type catalogLister interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
}

type entityCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// EntityService serves directory reads. Lookups by slug go through the cache.
type EntityService struct {
	repo    entityReader
	catalog catalogLister
	cache   entityCache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewEntityService constructs the service. cache may be nil.
func NewEntityService(repo entityReader, catalog catalogLister, cache entityCache, ttl time.Duration, logger *zap.Logger) *EntityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityService{repo: repo, catalog: catalog, cache: cache, ttl: ttl, logger: logger}
}

// GetBySlug returns a hydrated entity. Only administrators and the owner see non-ACTIVE entities.
func (s *EntityService) GetBySlug(ctx context.Context, slug string, actor *models.ActingUser) (*models.Entity, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slug is required")
	}

	var entity *models.Entity
	if s.cache != nil {
		var cached models.Entity
		hit, err := s.cache.Get(ctx, entitySlugCachePrefix+slug, &cached)
		if err != nil {
			s.logger.Warn("entity cache lookup failed", zap.String("slug", slug), zap.Error(err))
		}
		if hit {
			entity = &cached
		}
	}
	if entity == nil {
		found, err := s.repo.FindBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity")
		}
		if err := s.hydrate(ctx, found); err != nil {
			return nil, err
		}
		entity = found
		if s.cache != nil {
			_ = s.cache.Set(ctx, entitySlugCachePrefix+slug, entity, s.ttl)
		}
	}

	if !canSee(actor, entity) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
	}
	return entity, nil
}

// Get returns a hydrated entity by id for administrators and the owner.
func (s *EntityService) Get(ctx context.Context, id string, actor *models.ActingUser) (*models.Entity, error) {
	entity, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity")
	}
	if !canSee(actor, entity) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
	}
	if err := s.hydrate(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// List returns entities. Visitors only see ACTIVE ones unless they ask for their own.
func (s *EntityService) List(ctx context.Context, query dto.EntityQuery, actor *models.ActingUser) ([]models.Entity, error) {
	filter := models.EntityFilter{
		Status:       models.EntityStatus(strings.ToUpper(string(query.Status))),
		Type:         models.EntityType(strings.ToUpper(string(query.Type))),
		CategorySlug: strings.ToLower(strings.TrimSpace(query.Category)),
		OwnerID:      query.OwnerID,
		Search:       strings.TrimSpace(query.Search),
		Limit:        query.Limit,
		Offset:       query.Offset,
	}
	ownView := actor != nil && actor.ID != "" && filter.OwnerID == actor.ID
	if !actor.IsAdmin() && !ownView {
		filter.Status = models.EntityStatusActive
	}
	entities, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list entities")
	}
	return entities, nil
}

// ListCategories returns the category catalog.
func (s *EntityService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

// ListTags returns the tag catalog.
func (s *EntityService) ListTags(ctx context.Context) ([]models.Tag, error) {
	tags, err := s.catalog.ListTags(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tags")
	}
	return tags, nil
}

// InvalidateEntity drops the cached read of slug. Failures are logged only.
func (s *EntityService) InvalidateEntity(ctx context.Context, slug string) {
	if s.cache == nil || slug == "" {
		return
	}
	if err := s.cache.Delete(ctx, entitySlugCachePrefix+slug); err != nil {
		s.logger.Warn("entity cache invalidation failed", zap.String("slug", slug), zap.Error(err))
	}
}

func (s *EntityService) hydrate(ctx context.Context, entity *models.Entity) error {
	categories, err := s.repo.ListCategories(ctx, entity.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity categories")
	}
	tags, err := s.repo.ListTags(ctx, entity.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entity tags")
	}
	if categories == nil {
		categories = []models.Category{}
	}
	if tags == nil {
		tags = []models.EntityTag{}
	}
	entity.Categories = categories
	entity.Tags = tags
	return nil
}

func canSee(actor *models.ActingUser, entity *models.Entity) bool {
	if entity.Status == models.EntityStatusActive || actor.IsAdmin() {
		return true
	}
	return actor != nil && actor.ID != "" && actor.ID == entity.OwnerID
}

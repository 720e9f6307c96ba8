package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/directory-moderation-api/internal/models"
)

const entityColumns = `e.id, e.slug, e.name, e.name_translations, e.description, e.description_translations,
       e.address, e.latitude, e.longitude, e.phone, e.website, e.social_media, e.hours, e.status,
       e.entity_type, e.owner_id, e.images, e.created_at, e.updated_at`

// EntityRepository persists directory listings and their category/tag links.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository constructs the repository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads an entity without its associations.
func (r *EntityRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Entity, error) {
	return r.findOne(ctx, r.exec(exec), `SELECT `+entityColumns+` FROM entities e WHERE e.id = $1`, id)
}

// LockByID loads an entity and holds a row lock until the surrounding transaction ends.
func (r *EntityRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Entity, error) {
	return r.findOne(ctx, r.exec(exec), `SELECT `+entityColumns+` FROM entities e WHERE e.id = $1 FOR UPDATE`, id)
}

// FindBySlug loads an entity by slug.
func (r *EntityRepository) FindBySlug(ctx context.Context, slug string) (*models.Entity, error) {
	return r.findOne(ctx, r.db, `SELECT `+entityColumns+` FROM entities e WHERE e.slug = $1`, slug)
}

func (r *EntityRepository) findOne(ctx context.Context, q sqlx.QueryerContext, query string, arg string) (*models.Entity, error) {
	var entity models.Entity
	if err := sqlx.GetContext(ctx, q, &entity, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return &entity, nil
}

// List returns entities matching the filter ordered by name.
func (r *EntityRepository) List(ctx context.Context, filter models.EntityFilter) ([]models.Entity, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + entityColumns + ` FROM entities e`)

	args := make([]interface{}, 0, 5)
	conditions := make([]string, 0, 5)
	if filter.CategorySlug != "" {
		args = append(args, filter.CategorySlug)
		builder.WriteString(fmt.Sprintf(` JOIN entity_categories ec ON ec.entity_id = e.id
	JOIN categories c ON c.id = ec.category_id AND c.slug = $%d`, len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("e.entity_type = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("e.owner_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(e.name) LIKE $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY e.name ASC")
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}

// LockSlug serialises slug generation for base until the transaction ends.
func (r *EntityRepository) LockSlug(ctx context.Context, exec sqlx.ExtContext, base string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "entity-slug:"+base); err != nil {
		return fmt.Errorf("lock slug: %w", err)
	}
	return nil
}

// SlugsWithPrefix returns base itself and any base-N slugs already taken.
func (r *EntityRepository) SlugsWithPrefix(ctx context.Context, exec sqlx.ExtContext, base string) ([]string, error) {
	const query = `SELECT slug FROM entities WHERE slug = $1 OR slug LIKE $2`
	var slugs []string
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(base) + "-%"
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slugs, query, base, pattern); err != nil {
		return nil, fmt.Errorf("list slugs: %w", err)
	}
	return slugs, nil
}

// Create inserts a new entity.
func (r *EntityRepository) Create(ctx context.Context, exec sqlx.ExtContext, entity *models.Entity) error {
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now
	const query = `INSERT INTO entities (id, slug, name, name_translations, description, description_translations,
	address, latitude, longitude, phone, website, social_media, hours, status, entity_type, owner_id, images, created_at, updated_at)
	VALUES (:id, :slug, :name, :name_translations, :description, :description_translations,
	:address, :latitude, :longitude, :phone, :website, :social_media, :hours, :status, :entity_type, :owner_id, :images, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entity); err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	return nil
}

// Update writes every mutable column. The slug is never rewritten.
func (r *EntityRepository) Update(ctx context.Context, exec sqlx.ExtContext, entity *models.Entity) error {
	entity.UpdatedAt = time.Now().UTC()
	const query = `UPDATE entities SET name = :name, name_translations = :name_translations, description = :description,
	description_translations = :description_translations, address = :address, latitude = :latitude, longitude = :longitude,
	phone = :phone, website = :website, social_media = :social_media, hours = :hours, status = :status,
	entity_type = :entity_type, images = :images, updated_at = :updated_at
	WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entity)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check entity update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AttachCategories links categories, ignoring links that already exist.
func (r *EntityRepository) AttachCategories(ctx context.Context, exec sqlx.ExtContext, entityID string, categoryIDs []string) error {
	if len(categoryIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO entity_categories (entity_id, category_id)
	SELECT $1, unnest($2::uuid[]) ON CONFLICT DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, entityID, pq.Array(categoryIDs)); err != nil {
		return fmt.Errorf("attach categories: %w", err)
	}
	return nil
}

// UpsertVerifiedTag creates a verified association or marks an existing one verified.
func (r *EntityRepository) UpsertVerifiedTag(ctx context.Context, exec sqlx.ExtContext, entityID, tagID, addedBy string) error {
	const query = `INSERT INTO entity_tags (entity_id, tag_id, verified, added_by, created_at)
	VALUES ($1, $2, TRUE, $3, $4)
	ON CONFLICT (entity_id, tag_id) DO UPDATE SET verified = TRUE`
	if _, err := r.exec(exec).ExecContext(ctx, query, entityID, tagID, nullableString(addedBy), time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert entity tag: %w", err)
	}
	return nil
}

// RemoveTag deletes an association if present.
func (r *EntityRepository) RemoveTag(ctx context.Context, exec sqlx.ExtContext, entityID, tagID string) error {
	const query = `DELETE FROM entity_tags WHERE entity_id = $1 AND tag_id = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, entityID, tagID); err != nil {
		return fmt.Errorf("remove entity tag: %w", err)
	}
	return nil
}

// ListCategories returns the categories linked to an entity.
func (r *EntityRepository) ListCategories(ctx context.Context, entityID string) ([]models.Category, error) {
	const query = `SELECT c.id, c.slug, c.name, c.created_at FROM categories c
	JOIN entity_categories ec ON ec.category_id = c.id
	WHERE ec.entity_id = $1 ORDER BY c.name`
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query, entityID); err != nil {
		return nil, fmt.Errorf("list entity categories: %w", err)
	}
	return categories, nil
}

// ListTags returns the tag associations of an entity.
func (r *EntityRepository) ListTags(ctx context.Context, entityID string) ([]models.EntityTag, error) {
	const query = `SELECT et.entity_id, et.tag_id, t.slug, t.name, et.verified, et.added_by, et.created_at
	FROM entity_tags et JOIN tags t ON t.id = et.tag_id
	WHERE et.entity_id = $1 ORDER BY t.name`
	var tags []models.EntityTag
	if err := r.db.SelectContext(ctx, &tags, query, entityID); err != nil {
		return nil, fmt.Errorf("list entity tags: %w", err)
	}
	return tags, nil
}

// FindDuplicateCandidates returns entities sharing a name, website host or address with the submission.
func (r *EntityRepository) FindDuplicateCandidates(ctx context.Context, name, websiteHost, address string) ([]models.DuplicateCandidate, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, slug, name, address, website FROM entities WHERE `)
	args := []interface{}{"%" + strings.ToLower(strings.TrimSpace(name)) + "%"}
	conditions := []string{"LOWER(name) LIKE $1"}
	if websiteHost != "" {
		args = append(args, "%"+strings.ToLower(websiteHost)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(website) LIKE $%d", len(args)))
	}
	if address != "" {
		args = append(args, strings.ToLower(strings.TrimSpace(address)))
		conditions = append(conditions, fmt.Sprintf("LOWER(address) = $%d", len(args)))
	}
	builder.WriteString("(" + strings.Join(conditions, " OR ") + ")")
	builder.WriteString(" AND status <> 'INACTIVE' LIMIT 20")

	var candidates []models.DuplicateCandidate
	if err := r.db.SelectContext(ctx, &candidates, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("find duplicate candidates: %w", err)
	}
	return candidates, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

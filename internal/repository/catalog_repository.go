package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/directory-moderation-api/internal/models"
)

// CatalogRepository reads categories and tags. The catalog is maintained elsewhere.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindCategoriesBySlugs returns the categories whose slug is in slugs.
func (r *CatalogRepository) FindCategoriesBySlugs(ctx context.Context, exec sqlx.ExtContext, slugs []string) ([]models.Category, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, slug, name, created_at FROM categories WHERE slug = ANY($1) ORDER BY slug`
	var categories []models.Category
	if err := sqlx.SelectContext(ctx, r.exec(exec), &categories, query, pq.Array(slugs)); err != nil {
		return nil, fmt.Errorf("find categories by slug: %w", err)
	}
	return categories, nil
}

// FindTagsBySlugs returns the tags whose slug is in slugs.
func (r *CatalogRepository) FindTagsBySlugs(ctx context.Context, exec sqlx.ExtContext, slugs []string) ([]models.Tag, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, slug, name, created_at FROM tags WHERE slug = ANY($1) ORDER BY slug`
	var tags []models.Tag
	if err := sqlx.SelectContext(ctx, r.exec(exec), &tags, query, pq.Array(slugs)); err != nil {
		return nil, fmt.Errorf("find tags by slug: %w", err)
	}
	return tags, nil
}

// ListCategories returns the full category list.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, `SELECT id, slug, name, created_at FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// ListTags returns the full tag list.
func (r *CatalogRepository) ListTags(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.db.SelectContext(ctx, &tags, `SELECT id, slug, name, created_at FROM tags ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

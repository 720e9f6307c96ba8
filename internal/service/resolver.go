package service

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/directory-moderation-api/internal/models"
)

type catalogReader interface {
	FindCategoriesBySlugs(ctx context.Context, exec sqlx.ExtContext, slugs []string) ([]models.Category, error)
	FindTagsBySlugs(ctx context.Context, exec sqlx.ExtContext, slugs []string) ([]models.Tag, error)
}

// ReferenceResolver maps category and tag slugs to the IDs that exist right now.
// Unknown slugs are dropped, never reported. Nothing is cached between calls.
type ReferenceResolver struct {
	catalog catalogReader
}

// NewReferenceResolver constructs the resolver.
func NewReferenceResolver(catalog catalogReader) *ReferenceResolver {
	return &ReferenceResolver{catalog: catalog}
}

// Resolve looks the slugs up through exec so a transaction sees its own catalog state.
// Only a failing catalog read returns an error.
func (r *ReferenceResolver) Resolve(ctx context.Context, exec sqlx.ExtContext, categorySlugs, tagSlugs []string) (models.ResolvedRefs, error) {
	categorySlugs = NormalizeSlugs(categorySlugs)
	tagSlugs = NormalizeSlugs(tagSlugs)

	categories, err := r.catalog.FindCategoriesBySlugs(ctx, exec, categorySlugs)
	if err != nil {
		return models.ResolvedRefs{}, err
	}
	tags, err := r.catalog.FindTagsBySlugs(ctx, exec, tagSlugs)
	if err != nil {
		return models.ResolvedRefs{}, err
	}

	categoryIDs := make(map[string]string, len(categories))
	for _, c := range categories {
		categoryIDs[c.Slug] = c.ID
	}
	tagIDs := make(map[string]string, len(tags))
	for _, t := range tags {
		tagIDs[t.Slug] = t.ID
	}
	return models.ResolvedRefs{
		CategoryIDs: MatchSlugs(categorySlugs, categoryIDs),
		TagIDs:      MatchSlugs(tagSlugs, tagIDs),
	}, nil
}

// MatchSlugs returns the IDs of the slugs present in known, in slug order.
func MatchSlugs(slugs []string, known map[string]string) []string {
	ids := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		id, ok := known[s]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// NormalizeSlugs lower-cases, trims and de-duplicates slugs, dropping blanks.
func NormalizeSlugs(slugs []string) []string {
	out := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, s := range slugs {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

func newTestApplyDeps(entities *entityStoreStub) applyDeps {
	catalog := newCatalogStub()
	return applyDeps{
		entities: entities,
		users:    &userStub{ids: map[string]bool{"system-user": true}},
		resolver: NewReferenceResolver(catalog),
	}
}

func TestNextFreeSlug(t *testing.T) {
	assert.Equal(t, "cafe", nextFreeSlug("cafe", nil))
	assert.Equal(t, "cafe", nextFreeSlug("cafe", []string{"cafe-2"}))
	assert.Equal(t, "cafe-2", nextFreeSlug("cafe", []string{"cafe"}))
	assert.Equal(t, "cafe-4", nextFreeSlug("cafe", []string{"cafe", "cafe-2", "cafe-3", "cafe-5"}))
}

func TestApplyNilPayload(t *testing.T) {
	_, err := newTestApplyDeps(newEntityStoreStub()).applyPayload(context.Background(), nil, nil, "", "admin-1", "system-user", false)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrApplyFailed))
}

func TestApplyNewEntitySlugFallback(t *testing.T) {
	entities := newEntityStoreStub()
	payload := &models.NewEntityPayload{Name: "!!", EntityType: models.EntityTypeOnline, CategorySlugs: []string{"cafes"}}

	result, err := newTestApplyDeps(entities).applyPayload(context.Background(), nil, payload, "", "admin-1", "system-user", false)
	require.NoError(t, err)
	assert.Equal(t, "entity", result.Entity.Slug)
	assert.Equal(t, models.EntityStatusActive, result.Entity.Status)
}

func TestApplyNewEntityUniqueViolation(t *testing.T) {
	entities := newEntityStoreStub()
	entities.createErr = &pq.Error{Code: uniqueViolation}
	payload := &models.NewEntityPayload{Name: "Harbor Books", EntityType: models.EntityTypeOnline, CategorySlugs: []string{"cafes"}}

	_, err := newTestApplyDeps(entities).applyPayload(context.Background(), nil, payload, "", "admin-1", "system-user", false)
	require.True(t, appErrors.HasCode(err, appErrors.ErrApplyFailed))
	assert.Equal(t, "harbor-books", appErrors.FromError(err).Details["slug"])
}

func TestApplyWrapsStoreFailures(t *testing.T) {
	entities := newEntityStoreStub(seededEntity())
	entities.updateErr = errors.New("disk full")
	payload := &models.UpdateEntityPayload{New: models.EntityFields{Phone: strPtr("555-0199")}}

	_, err := newTestApplyDeps(entities).applyPayload(context.Background(), nil, payload, "entity-1", "admin-1", "", false)
	require.True(t, appErrors.HasCode(err, appErrors.ErrApplyFailed))
	assert.ErrorContains(t, err, "disk full")
}

func TestApplyUnknownOwner(t *testing.T) {
	payload := &models.NewEntityPayload{Name: "Harbor Books", EntityType: models.EntityTypeOnline, CategorySlugs: []string{"cafes"}}

	_, err := newTestApplyDeps(newEntityStoreStub()).applyPayload(context.Background(), nil, payload, "", "admin-1", "ghost", false)
	require.True(t, appErrors.HasCode(err, appErrors.ErrApplyFailed))
	assert.Equal(t, "ghost", appErrors.FromError(err).Details["ownerId"])
}

func TestApplyStrictImageMismatch(t *testing.T) {
	entities := newEntityStoreStub(seededEntity())
	payload := &models.UpdateImagePayload{Old: models.StringMap{}, New: models.StringMap{"logo": "https://img.example.com/logo.png"}}
	deps := newTestApplyDeps(entities)

	_, err := deps.applyPayload(context.Background(), nil, payload, "entity-1", "admin-1", "", true)
	require.True(t, appErrors.HasCode(err, appErrors.ErrApplyFailed))
	assert.Equal(t, "images", appErrors.FromError(err).Details["field"])

	result, err := deps.applyPayload(context.Background(), nil, payload, "entity-1", "admin-1", "", false)
	require.NoError(t, err)
	assert.Equal(t, payload.New, result.Entity.Images)
}

func TestApplyTargetlessVariant(t *testing.T) {
	payload := &models.RemoveTagPayload{TagRef: models.TagRef{TagSlug: "wifi"}}
	_, err := newTestApplyDeps(newEntityStoreStub()).applyPayload(context.Background(), nil, payload, "", "admin-1", "", false)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrApplyFailed))
}

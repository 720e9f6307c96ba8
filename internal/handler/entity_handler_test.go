package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

type entityServiceMock struct {
	lastQuery dto.EntityQuery
	lastActor *models.ActingUser
	result    *dto.UpdateEntityResult
	updateErr error
}

func (m *entityServiceMock) GetBySlug(ctx context.Context, slug string, actor *models.ActingUser) (*models.Entity, error) {
	m.lastActor = actor
	if slug == "hidden" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
	}
	return &models.Entity{ID: "entity-1", Slug: slug, Status: models.EntityStatusActive}, nil
}

func (m *entityServiceMock) Get(ctx context.Context, id string, actor *models.ActingUser) (*models.Entity, error) {
	m.lastActor = actor
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "entity not found")
	}
	return &models.Entity{ID: id, Status: models.EntityStatusPending}, nil
}

func (m *entityServiceMock) List(ctx context.Context, query dto.EntityQuery, actor *models.ActingUser) ([]models.Entity, error) {
	m.lastQuery, m.lastActor = query, actor
	return []models.Entity{{ID: "entity-1", Slug: "blue-door-cafe"}}, nil
}

func (m *entityServiceMock) ListCategories(ctx context.Context) ([]models.Category, error) {
	return []models.Category{{ID: "cat-1", Slug: "restaurants"}}, nil
}

func (m *entityServiceMock) ListTags(ctx context.Context) ([]models.Tag, error) {
	return []models.Tag{{ID: "tag-1", Slug: "vegan"}}, nil
}

func (m *entityServiceMock) UpdateEntity(ctx context.Context, id string, req dto.UpdateEntityRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.UpdateEntityResult, error) {
	m.lastActor = actor
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return m.result, nil
}

func TestEntityHandlerListAnonymous(t *testing.T) {
	svc := &entityServiceMock{}
	h := NewEntityHandler(svc, svc)
	c, w := newTestContext(http.MethodGet, "/entities?category=restaurants&q=pizza", nil, nil)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, svc.lastActor)
	assert.Equal(t, "restaurants", svc.lastQuery.Category)
	assert.Equal(t, "pizza", svc.lastQuery.Search)
	page := decodeEnvelope(t, w)["pagination"].(map[string]interface{})
	assert.EqualValues(t, defaultPageSize, page["limit"])
}

func TestEntityHandlerGetBySlugHidden(t *testing.T) {
	svc := &entityServiceMock{}
	h := NewEntityHandler(svc, svc)
	c, w := newTestContext(http.MethodGet, "/entities/hidden", nil, nil)
	c.Params = gin.Params{{Key: "slug", Value: "hidden"}}

	h.GetBySlug(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntityHandlerUpdateByOwnerQueues(t *testing.T) {
	svc := &entityServiceMock{result: &dto.UpdateEntityResult{PendingChange: &models.PendingChange{ID: "change-1"}}}
	h := NewEntityHandler(svc, svc)
	owner := &models.JWTClaims{UserID: "owner-1", Roles: []models.UserRole{models.RoleUser}}
	c, w := newTestContext(http.MethodPatch, "/entities/entity-1", dto.UpdateEntityRequest{}, owner)
	c.Params = gin.Params{{Key: "id", Value: "entity-1"}}

	h.Update(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "owner-1", svc.lastActor.ID)
}

func TestEntityHandlerUpdateByAdminApplies(t *testing.T) {
	svc := &entityServiceMock{result: &dto.UpdateEntityResult{Applied: true, Entity: &models.Entity{ID: "entity-1"}}}
	h := NewEntityHandler(svc, svc)
	c, w := newTestContext(http.MethodPatch, "/entities/entity-1", dto.UpdateEntityRequest{}, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "entity-1"}}

	h.Update(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEntityHandlerUpdateForbidden(t *testing.T) {
	svc := &entityServiceMock{updateErr: appErrors.ErrForbidden}
	h := NewEntityHandler(svc, svc)
	stranger := &models.JWTClaims{UserID: "user-9", Roles: []models.UserRole{models.RoleUser}}
	c, w := newTestContext(http.MethodPatch, "/entities/entity-1", dto.UpdateEntityRequest{}, stranger)
	c.Params = gin.Params{{Key: "id", Value: "entity-1"}}

	h.Update(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEntityHandlerCatalog(t *testing.T) {
	svc := &entityServiceMock{}
	h := NewEntityHandler(svc, svc)

	c, w := newTestContext(http.MethodGet, "/categories", nil, nil)
	h.ListCategories(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeEnvelope(t, w)["data"], 1)

	c, w = newTestContext(http.MethodGet, "/tags", nil, nil)
	h.ListTags(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeEnvelope(t, w)["data"], 1)
}

func TestEntityHandlerGetByID(t *testing.T) {
	svc := &entityServiceMock{}
	h := NewEntityHandler(svc, svc)
	c, w := newTestContext(http.MethodGet, "/entities/by-id/entity-7", nil, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "entity-7"}}

	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "entity-7", data["id"])
	assert.Equal(t, "PENDING", data["status"])
}

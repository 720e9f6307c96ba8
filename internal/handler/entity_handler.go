package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/middleware"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
	"github.com/noah-isme/directory-moderation-api/pkg/response"
)

type entityReader interface {
	Get(ctx context.Context, id string, actor *models.ActingUser) (*models.Entity, error)
	GetBySlug(ctx context.Context, slug string, actor *models.ActingUser) (*models.Entity, error)
	List(ctx context.Context, query dto.EntityQuery, actor *models.ActingUser) ([]models.Entity, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
}

type entityUpdater interface {
	UpdateEntity(ctx context.Context, id string, req dto.UpdateEntityRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.UpdateEntityResult, error)
}

// EntityHandler serves directory reads and owner/administrator edits.
type EntityHandler struct {
	reader  entityReader
	updater entityUpdater
}

// NewEntityHandler constructs the handler.
func NewEntityHandler(reader entityReader, updater entityUpdater) *EntityHandler {
	return &EntityHandler{reader: reader, updater: updater}
}

// List godoc
// @Summary List entities
// @Description Visitors see active listings only. Owners also see their own hidden listings.
// @Tags Entities
// @Produce json
// @Param status query string false "Status filter (administrators)"
// @Param type query string false "Entity type"
// @Param category query string false "Category slug"
// @Param q query string false "Name search"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /entities [get]
func (h *EntityHandler) List(c *gin.Context) {
	var query dto.EntityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	entities, err := h.reader.List(c.Request.Context(), query, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entities, pagination(query.Limit, query.Offset, len(entities)), middleware.ExtractMeta(c))
}

// GetBySlug godoc
// @Summary Get an entity by slug
// @Tags Entities
// @Produce json
// @Param slug path string true "Entity slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /entities/{slug} [get]
func (h *EntityHandler) GetBySlug(c *gin.Context) {
	entity, err := h.reader.GetBySlug(c.Request.Context(), c.Param("slug"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

// Get godoc
// @Summary Get an entity by ID
// @Description Administrators and the owner see the entity regardless of status.
// @Tags Entities
// @Produce json
// @Param id path string true "Entity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /entities/by-id/{id} [get]
func (h *EntityHandler) Get(c *gin.Context) {
	entity, err := h.reader.Get(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

// Update godoc
// @Summary Edit an entity
// @Description Administrators apply the edit immediately. Owners queue one pending change per touched area.
// @Tags Entities
// @Accept json
// @Produce json
// @Param id path string true "Entity ID"
// @Param payload body dto.UpdateEntityRequest true "Edit"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /entities/{id} [patch]
func (h *EntityHandler) Update(c *gin.Context) {
	var req dto.UpdateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entity payload"))
		return
	}
	result, err := h.updater.UpdateEntity(c.Request.Context(), c.Param("id"), req, actorFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Applied {
		response.JSON(c, http.StatusOK, result, nil)
		return
	}
	response.Accepted(c, result)
}

// ListCategories godoc
// @Summary List categories
// @Tags Entities
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *EntityHandler) ListCategories(c *gin.Context) {
	categories, err := h.reader.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// ListTags godoc
// @Summary List tags
// @Tags Entities
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tags [get]
func (h *EntityHandler) ListTags(c *gin.Context) {
	tags, err := h.reader.ListTags(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tags, nil)
}

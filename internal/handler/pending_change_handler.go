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

type pendingChangeService interface {
	ListPendingChanges(ctx context.Context, query dto.PendingChangeQuery, actor *models.ActingUser) ([]models.PendingChange, error)
	GetPendingChange(ctx context.Context, id string, actor *models.ActingUser) (*models.PendingChange, error)
	DecidePendingChange(ctx context.Context, id string, req dto.DecisionRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.PendingChangeDecision, error)
}

// PendingChangeHandler exposes owner edits awaiting review.
type PendingChangeHandler struct {
	service pendingChangeService
}

// NewPendingChangeHandler constructs the handler.
func NewPendingChangeHandler(svc pendingChangeService) *PendingChangeHandler {
	return &PendingChangeHandler{service: svc}
}

// List godoc
// @Summary List pending changes
// @Tags PendingChanges
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param entityId query string false "Entity"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pending-changes [get]
func (h *PendingChangeHandler) List(c *gin.Context) {
	var query dto.PendingChangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	changes, err := h.service.ListPendingChanges(c.Request.Context(), query, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, changes, pagination(query.Limit, query.Offset, len(changes)), middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a pending change
// @Tags PendingChanges
// @Produce json
// @Param id path string true "Pending change ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pending-changes/{id} [get]
func (h *PendingChangeHandler) Get(c *gin.Context) {
	change, err := h.service.GetPendingChange(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// Decide godoc
// @Summary Approve or reject a pending change
// @Tags PendingChanges
// @Accept json
// @Produce json
// @Param id path string true "Pending change ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /pending-changes/{id}/decision [post]
func (h *PendingChangeHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	out, err := h.service.DecidePendingChange(c.Request.Context(), c.Param("id"), req, actorFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

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

type auditLister interface {
	List(ctx context.Context, query dto.AuditLogQuery, actor *models.ActingUser) ([]models.AuditLog, error)
}

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	service auditLister
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(svc auditLister) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit entries
// @Tags Audit
// @Produce json
// @Param resource query string false "Resource kind, e.g. approval or entity"
// @Param resourceId query string false "Resource ID"
// @Param userId query string false "Acting user"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	var query dto.AuditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	logs, err := h.service.List(c.Request.Context(), query, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination(query.Limit, query.Offset, len(logs)), middleware.ExtractMeta(c))
}

package service

import (
	"context"
	"strings"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
)

type auditLogLister interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, error)
}

// AuditService exposes the audit trail to administrators.
type AuditService struct {
	repo auditLogLister
	gate AuthorizationGate
}

// NewAuditService constructs the service.
func NewAuditService(repo auditLogLister) *AuditService {
	return &AuditService{repo: repo}
}

// List returns audit records newest first.
func (s *AuditService) List(ctx context.Context, query dto.AuditLogQuery, actor *models.ActingUser) ([]models.AuditLog, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	logs, err := s.repo.List(ctx, models.AuditLogFilter{
		Resource:   strings.ToLower(strings.TrimSpace(query.Resource)),
		ResourceID: strings.TrimSpace(query.ResourceID),
		UserID:     strings.TrimSpace(query.UserID),
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return logs, nil
}

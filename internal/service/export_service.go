package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
	"github.com/noah-isme/directory-moderation-api/pkg/export"
)

const (
	exportPageSize = 200
	exportMaxRows  = 5000
)

type approvalLister interface {
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.Approval, error)
}

// ExportFile is a rendered report ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders moderation reports.
type ExportService struct {
	approvals approvalLister
	gate      AuthorizationGate
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(approvals approvalLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{approvals: approvals, logger: logger, now: time.Now}
}

// ExportProposals renders the proposals matching query as csv or pdf.
func (s *ExportService) ExportProposals(ctx context.Context, query dto.ProposalQuery, rawFormat string, actor *models.ActingUser) (*ExportFile, error) {
	if err := s.gate.RequireAdmin(actor); err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "format must be csv or pdf", map[string]interface{}{"format": rawFormat})
	}

	filter := models.ApprovalFilter{
		Status:   models.ProposalStatus(strings.ToUpper(string(query.Status))),
		Type:     models.ApprovalType(strings.ToUpper(string(query.Type))),
		EntityID: query.EntityID,
		Source:   strings.ToLower(query.Source),
		Limit:    exportPageSize,
	}
	data := export.Dataset{
		Title:   "Moderation report",
		Headers: []string{"ID", "Type", "Status", "Source", "Entity", "Submitted by", "Submitter email", "Submitted at", "Reviewed by", "Reviewed at", "Notes"},
	}
	for len(data.Rows) < exportMaxRows {
		page, err := s.approvals.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposals")
		}
		for _, a := range page {
			data.AddRow(
				a.ID,
				string(a.Type),
				string(a.Status),
				a.Source,
				entityLabel(a),
				derefString(a.SubmittedBy),
				a.SubmitterEmail,
				a.CreatedAt.UTC().Format(time.RFC3339),
				derefString(a.ReviewedBy),
				formatOptionalTime(a.ReviewedAt),
				derefString(a.Notes),
			)
		}
		if len(page) < exportPageSize {
			break
		}
		filter.Offset += exportPageSize
	}

	out, err := export.Render(format, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("proposals exported",
		zap.String("format", string(format)),
		zap.Int("rows", len(data.Rows)),
		zap.String("actor_id", actor.ID))
	return &ExportFile{
		Filename:    fmt.Sprintf("proposals_%s.%s", s.now().UTC().Format("20060102_150405"), format),
		ContentType: format.ContentType(),
		Data:        out,
	}, nil
}

func entityLabel(a models.Approval) string {
	if a.EntityID != nil {
		return *a.EntityID
	}
	if p, ok := a.Payload.(*models.NewEntityPayload); ok {
		return p.Name
	}
	return ""
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

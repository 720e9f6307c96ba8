package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/directory-moderation-api/internal/dto"
	"github.com/noah-isme/directory-moderation-api/internal/middleware"
	"github.com/noah-isme/directory-moderation-api/internal/models"
	"github.com/noah-isme/directory-moderation-api/internal/service"
	appErrors "github.com/noah-isme/directory-moderation-api/pkg/errors"
	"github.com/noah-isme/directory-moderation-api/pkg/response"
)

type proposalService interface {
	SubmitProposal(ctx context.Context, req dto.SubmitProposalRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.SubmissionResult, error)
	ResearchEntity(ctx context.Context, req dto.ResearchRequest, actor *models.ActingUser, meta dto.RequestMeta) (*models.Approval, error)
	ListProposals(ctx context.Context, query dto.ProposalQuery, actor *models.ActingUser) ([]models.Approval, error)
	GetProposal(ctx context.Context, id string, actor *models.ActingUser) (*models.Approval, error)
	DecideProposal(ctx context.Context, id string, req dto.DecisionRequest, actor *models.ActingUser, meta dto.RequestMeta) (*dto.ApprovalDecision, error)
}

type proposalExporter interface {
	ExportProposals(ctx context.Context, query dto.ProposalQuery, format string, actor *models.ActingUser) (*service.ExportFile, error)
}

// ProposalHandler exposes the approval queue.
type ProposalHandler struct {
	service  proposalService
	exporter proposalExporter
}

// NewProposalHandler constructs the handler.
func NewProposalHandler(svc proposalService, exporter proposalExporter) *ProposalHandler {
	return &ProposalHandler{service: svc, exporter: exporter}
}

// Submit godoc
// @Summary Submit a proposal
// @Description Anonymous visitors and users queue a proposal for review. Administrators have it applied immediately.
// @Tags Proposals
// @Accept json
// @Produce json
// @Param payload body dto.SubmitProposalRequest true "Proposal"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals [post]
func (h *ProposalHandler) Submit(c *gin.Context) {
	var req dto.SubmitProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid proposal payload"))
		return
	}
	result, err := h.service.SubmitProposal(c.Request.Context(), req, actorFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Applied {
		response.Created(c, result)
		return
	}
	response.Accepted(c, result)
}

// Research godoc
// @Summary Draft a listing with the research service
// @Tags Proposals
// @Accept json
// @Produce json
// @Param payload body dto.ResearchRequest true "Research query"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Security BearerAuth
// @Router /proposals/research [post]
func (h *ProposalHandler) Research(c *gin.Context) {
	var req dto.ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid research payload"))
		return
	}
	approval, err := h.service.ResearchEntity(c.Request.Context(), req, actorFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, approval)
}

// List godoc
// @Summary List proposals
// @Tags Proposals
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param type query string false "Proposal type"
// @Param entityId query string false "Target entity"
// @Param source query string false "public, ai, owner or admin"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /proposals [get]
func (h *ProposalHandler) List(c *gin.Context) {
	var query dto.ProposalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	approvals, err := h.service.ListProposals(c.Request.Context(), query, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, pagination(query.Limit, query.Offset, len(approvals)), middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a proposal
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	approval, err := h.service.GetProposal(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Decide godoc
// @Summary Approve or reject a proposal
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /proposals/{id}/decision [post]
func (h *ProposalHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	out, err := h.service.DecideProposal(c.Request.Context(), c.Param("id"), req, actorFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// Export godoc
// @Summary Export proposals
// @Tags Proposals
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Status filter"
// @Param type query string false "Type filter"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /proposals/export [get]
func (h *ProposalHandler) Export(c *gin.Context) {
	var query dto.ProposalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	file, err := h.exporter.ExportProposals(c.Request.Context(), query, c.Query("format"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

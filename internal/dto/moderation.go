package dto

import "github.com/noah-isme/directory-moderation-api/internal/models"

// SubmitProposalRequest is the public submission body. Exactly one variant section is read,
// selected by Type.
type SubmitProposalRequest struct {
	Type           models.ApprovalType      `json:"type" validate:"required"`
	EntityID       string                   `json:"entityId,omitempty"`
	SubmitterEmail string                   `json:"submitterEmail,omitempty" validate:"omitempty,email"`
	Entity         *models.NewEntityPayload `json:"entity,omitempty"`
	Fields         *models.EntityFields     `json:"fields,omitempty"`
	TagSlug        string                   `json:"tagSlug,omitempty"`
	Images         models.StringMap         `json:"images,omitempty"`
}

// SubmissionResult reports whether a submission was queued or applied directly.
type SubmissionResult struct {
	Applied  bool             `json:"applied"`
	Proposal *models.Approval `json:"proposal,omitempty"`
	Entity   *models.Entity   `json:"entity,omitempty"`
}

// ResearchRequest asks the research producer to draft a new listing.
type ResearchRequest struct {
	Query    string `json:"query" validate:"required,min=3,max=300"`
	Location string `json:"location,omitempty" validate:"max=200"`
}

// DecisionRequest carries a reviewer verdict.
type DecisionRequest struct {
	Decision models.Decision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Notes    string          `json:"notes,omitempty" validate:"max=2000"`
}

// ApprovalDecision is the outcome of deciding an approval.
type ApprovalDecision struct {
	Proposal *models.Approval `json:"proposal"`
	Entity   *models.Entity   `json:"entity,omitempty"`
}

// PendingChangeDecision is the outcome of deciding a pending change.
type PendingChangeDecision struct {
	PendingChange *models.PendingChange `json:"pendingChange"`
	Entity        *models.Entity        `json:"entity,omitempty"`
}

// UpdateEntityRequest edits an entity. Status is administrator-only.
type UpdateEntityRequest struct {
	Fields models.EntityFields  `json:"fields"`
	Status *models.EntityStatus `json:"status,omitempty"`
	Images *models.StringMap    `json:"images,omitempty"`
}

// UpdateEntityResult holds either the mutated entity or the queued owner change.
type UpdateEntityResult struct {
	Applied        bool                   `json:"applied"`
	Entity         *models.Entity         `json:"entity,omitempty"`
	PendingChange  *models.PendingChange  `json:"pendingChange,omitempty"`
}

// ProposalQuery filters proposal listings.
type ProposalQuery struct {
	Status   models.ProposalStatus `form:"status"`
	Type     models.ApprovalType   `form:"type"`
	EntityID string                `form:"entityId"`
	Source   string                `form:"source"`
	Limit    int                   `form:"limit"`
	Offset   int                   `form:"offset"`
}

// PendingChangeQuery filters pending change listings.
type PendingChangeQuery struct {
	Status   models.ProposalStatus `form:"status"`
	EntityID string                `form:"entityId"`
	Limit    int                   `form:"limit"`
	Offset   int                   `form:"offset"`
}

// EntityQuery filters entity listings.
type EntityQuery struct {
	Status   models.EntityStatus `form:"status"`
	Type     models.EntityType   `form:"type"`
	Category string              `form:"category"`
	OwnerID  string              `form:"ownerId"`
	Search   string              `form:"q"`
	Limit    int                 `form:"limit"`
	Offset   int                 `form:"offset"`
}

// AuditLogQuery filters audit listings.
type AuditLogQuery struct {
	Resource   string `form:"resource"`
	ResourceID string `form:"resourceId"`
	UserID     string `form:"userId"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// RequestMeta carries caller metadata recorded in the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

package models

import (
	"encoding/json"
	"time"
)

// ApprovalType is the variant tag of a proposal.
type ApprovalType string

const (
	ApprovalTypeNewEntity    ApprovalType = "NEW_ENTITY"
	ApprovalTypeUpdateEntity ApprovalType = "UPDATE_ENTITY"
	ApprovalTypeAddTag       ApprovalType = "ADD_TAG"
	ApprovalTypeRemoveTag    ApprovalType = "REMOVE_TAG"
	ApprovalTypeUpdateImage  ApprovalType = "UPDATE_IMAGE"
)

// Valid reports whether t is a known variant.
func (t ApprovalType) Valid() bool {
	switch t {
	case ApprovalTypeNewEntity, ApprovalTypeUpdateEntity, ApprovalTypeAddTag,
		ApprovalTypeRemoveTag, ApprovalTypeUpdateImage:
		return true
	}
	return false
}

// ProposalStatus is shared by approvals and pending changes.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "PENDING"
	ProposalStatusApproved ProposalStatus = "APPROVED"
	ProposalStatusRejected ProposalStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalStatusApproved || s == ProposalStatusRejected
}

// Decision is a reviewer verdict.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Status returns the terminal status the decision leads to.
func (d Decision) Status() ProposalStatus {
	if d == DecisionApprove {
		return ProposalStatusApproved
	}
	return ProposalStatusRejected
}

// Proposal origins.
const (
	SourcePublic = "public"
	SourceAI     = "ai"
	SourceOwner  = "owner"
	SourceAdmin  = "admin"
)

// Approval is a queued proposal. Payload holds the variant-specific data.
type Approval struct {
	ID             string          `json:"id"`
	Type           ApprovalType    `json:"type"`
	Status         ProposalStatus  `json:"status"`
	EntityID       *string         `json:"entityId,omitempty"`
	Payload        ApprovalPayload `json:"-"`
	SubmittedBy    *string         `json:"submittedBy,omitempty"`
	SubmitterEmail string          `json:"submitterEmail,omitempty"`
	Source         string          `json:"source"`
	ReviewedBy     *string         `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewedAt,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// MarshalJSON renders the payload as entityData/oldValue/newValue.
func (a Approval) MarshalJSON() ([]byte, error) {
	type plain Approval
	out := struct {
		plain
		EntityData json.RawMessage `json:"entityData,omitempty"`
		OldValue   json.RawMessage `json:"oldValue,omitempty"`
		NewValue   json.RawMessage `json:"newValue,omitempty"`
	}{plain: plain(a)}
	if a.Payload != nil {
		cols, err := EncodePayload(a.Payload)
		if err != nil {
			return nil, err
		}
		out.EntityData = rawColumn(cols.EntityData.Valid, cols.EntityData.JSONText)
		out.OldValue = rawColumn(cols.OldValue.Valid, cols.OldValue.JSONText)
		out.NewValue = rawColumn(cols.NewValue.Valid, cols.NewValue.JSONText)
	}
	return json.Marshal(out)
}

func rawColumn(valid bool, raw []byte) json.RawMessage {
	if !valid {
		return nil
	}
	return json.RawMessage(raw)
}

// ApprovalFilter narrows approval listings.
type ApprovalFilter struct {
	Status   ProposalStatus
	Type     ApprovalType
	EntityID string
	Source   string
	Limit    int
	Offset   int
}

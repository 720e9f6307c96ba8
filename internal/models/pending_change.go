package models

import (
	"encoding/json"
	"time"
)

// PendingChange is an owner's queued edit of their own entity.
type PendingChange struct {
	ID             string          `json:"id"`
	EntityID       string          `json:"entityId"`
	ChangeType     ApprovalType    `json:"changeType"`
	FieldName      *string         `json:"fieldName,omitempty"`
	Payload        ApprovalPayload `json:"-"`
	SubmittedBy    string          `json:"submittedBy"`
	SubmitterEmail string          `json:"submitterEmail"`
	Status         ProposalStatus  `json:"status"`
	ReviewedBy     *string         `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewedAt,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// PendingChangeTypeAllowed reports whether owners may queue changes of type t.
func PendingChangeTypeAllowed(t ApprovalType) bool {
	return t == ApprovalTypeUpdateEntity || t == ApprovalTypeUpdateImage
}

// MarshalJSON renders the payload as oldValue/newValue.
func (p PendingChange) MarshalJSON() ([]byte, error) {
	type plain PendingChange
	out := struct {
		plain
		OldValue json.RawMessage `json:"oldValue,omitempty"`
		NewValue json.RawMessage `json:"newValue,omitempty"`
	}{plain: plain(p)}
	if p.Payload != nil {
		cols, err := EncodePayload(p.Payload)
		if err != nil {
			return nil, err
		}
		out.OldValue = rawColumn(cols.OldValue.Valid, cols.OldValue.JSONText)
		out.NewValue = rawColumn(cols.NewValue.Valid, cols.NewValue.JSONText)
	}
	return json.Marshal(out)
}

// PendingChangeFilter narrows pending change listings.
type PendingChangeFilter struct {
	Status   ProposalStatus
	EntityID string
	Limit    int
	Offset   int
}

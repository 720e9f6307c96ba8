package models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"
)

// ApprovalPayload is the closed set of proposal payloads. Only the types in this
// file implement it.
type ApprovalPayload interface {
	Type() ApprovalType
	Accept(ctx context.Context, v PayloadVisitor) error
	sealed()
}

// PayloadVisitor handles every payload variant. Adding a variant adds a method here,
// so each implementation stops compiling until it handles the new case.
type PayloadVisitor interface {
	VisitNewEntity(ctx context.Context, p *NewEntityPayload) error
	VisitUpdateEntity(ctx context.Context, p *UpdateEntityPayload) error
	VisitAddTag(ctx context.Context, p *AddTagPayload) error
	VisitRemoveTag(ctx context.Context, p *RemoveTagPayload) error
	VisitUpdateImage(ctx context.Context, p *UpdateImagePayload) error
}

// NewEntityPayload carries the proposed listing with category and tag slugs.
type NewEntityPayload struct {
	Name                    string     `json:"name" validate:"required,min=2,max=200"`
	NameTranslations        StringMap  `json:"nameTranslations,omitempty"`
	Description             string     `json:"description,omitempty" validate:"max=5000"`
	DescriptionTranslations StringMap  `json:"descriptionTranslations,omitempty"`
	Address                 string     `json:"address,omitempty" validate:"max=500"`
	Latitude                *float64   `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude               *float64   `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Phone                   string     `json:"phone,omitempty" validate:"max=50"`
	Website                 string     `json:"website,omitempty" validate:"omitempty,url"`
	SocialMedia             StringMap  `json:"socialMedia,omitempty"`
	Hours                   HoursMap   `json:"hours,omitempty"`
	EntityType              EntityType `json:"entityType" validate:"required"`
	Images                  StringMap  `json:"images,omitempty"`
	OwnerID                 *string    `json:"ownerId,omitempty" validate:"omitempty,uuid"`
	CategorySlugs           []string   `json:"categorySlugs" validate:"required,min=1,dive,required"`
	TagSlugs                []string   `json:"tagSlugs,omitempty" validate:"dive,required"`
}

// UpdateEntityPayload is a partial field merge. Old holds the values seen at submission.
type UpdateEntityPayload struct {
	Old EntityFields `json:"old"`
	New EntityFields `json:"new"`
}

// TagRef names a tag by slug. The slug is resolved to a tag id when the proposal is applied.
type TagRef struct {
	TagSlug string `json:"tagSlug"`
}

// AddTagPayload attaches a tag.
type AddTagPayload struct {
	TagRef
}

// RemoveTagPayload detaches a tag.
type RemoveTagPayload struct {
	TagRef
}

// UpdateImagePayload replaces the images map wholesale.
type UpdateImagePayload struct {
	Old StringMap `json:"old"`
	New StringMap `json:"new"`
}

func (*NewEntityPayload) Type() ApprovalType    { return ApprovalTypeNewEntity }
func (*UpdateEntityPayload) Type() ApprovalType { return ApprovalTypeUpdateEntity }
func (*AddTagPayload) Type() ApprovalType       { return ApprovalTypeAddTag }
func (*RemoveTagPayload) Type() ApprovalType    { return ApprovalTypeRemoveTag }
func (*UpdateImagePayload) Type() ApprovalType  { return ApprovalTypeUpdateImage }

func (p *NewEntityPayload) Accept(ctx context.Context, v PayloadVisitor) error    { return v.VisitNewEntity(ctx, p) }
func (p *UpdateEntityPayload) Accept(ctx context.Context, v PayloadVisitor) error { return v.VisitUpdateEntity(ctx, p) }
func (p *AddTagPayload) Accept(ctx context.Context, v PayloadVisitor) error       { return v.VisitAddTag(ctx, p) }
func (p *RemoveTagPayload) Accept(ctx context.Context, v PayloadVisitor) error    { return v.VisitRemoveTag(ctx, p) }
func (p *UpdateImagePayload) Accept(ctx context.Context, v PayloadVisitor) error  { return v.VisitUpdateImage(ctx, p) }

func (*NewEntityPayload) sealed()    {}
func (*UpdateEntityPayload) sealed() {}
func (*AddTagPayload) sealed()       {}
func (*RemoveTagPayload) sealed()    {}
func (*UpdateImagePayload) sealed()  {}

// PayloadColumns is the stored form of a payload: entity_data, old_value and new_value.
type PayloadColumns struct {
	EntityData types.NullJSONText
	OldValue   types.NullJSONText
	NewValue   types.NullJSONText
}

type columnEncoder struct {
	cols PayloadColumns
}

func (e *columnEncoder) VisitNewEntity(_ context.Context, p *NewEntityPayload) error {
	return setColumn(&e.cols.EntityData, p)
}

func (e *columnEncoder) VisitUpdateEntity(_ context.Context, p *UpdateEntityPayload) error {
	if err := setColumn(&e.cols.OldValue, p.Old); err != nil {
		return err
	}
	return setColumn(&e.cols.NewValue, p.New)
}

func (e *columnEncoder) VisitAddTag(_ context.Context, p *AddTagPayload) error {
	return setColumn(&e.cols.NewValue, p.TagRef)
}

func (e *columnEncoder) VisitRemoveTag(_ context.Context, p *RemoveTagPayload) error {
	return setColumn(&e.cols.OldValue, p.TagRef)
}

func (e *columnEncoder) VisitUpdateImage(_ context.Context, p *UpdateImagePayload) error {
	if err := setColumn(&e.cols.OldValue, p.Old); err != nil {
		return err
	}
	return setColumn(&e.cols.NewValue, p.New)
}

func setColumn(col *types.NullJSONText, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	col.JSONText = raw
	col.Valid = true
	return nil
}

// EncodePayload maps a payload onto its storage columns.
func EncodePayload(p ApprovalPayload) (PayloadColumns, error) {
	if p == nil {
		return PayloadColumns{}, fmt.Errorf("encode payload: nil payload")
	}
	enc := &columnEncoder{}
	if err := p.Accept(context.Background(), enc); err != nil {
		return PayloadColumns{}, fmt.Errorf("encode %s payload: %w", p.Type(), err)
	}
	return enc.cols, nil
}

// DecodePayload rebuilds the typed payload for t from its storage columns.
func DecodePayload(t ApprovalType, cols PayloadColumns) (ApprovalPayload, error) {
	var (
		payload ApprovalPayload
		err     error
	)
	switch t {
	case ApprovalTypeNewEntity:
		p := &NewEntityPayload{}
		err = readColumn(cols.EntityData, p)
		payload = p
	case ApprovalTypeUpdateEntity:
		p := &UpdateEntityPayload{}
		if err = readColumn(cols.OldValue, &p.Old); err == nil {
			err = readColumn(cols.NewValue, &p.New)
		}
		payload = p
	case ApprovalTypeAddTag:
		p := &AddTagPayload{}
		err = readColumn(cols.NewValue, &p.TagRef)
		payload = p
	case ApprovalTypeRemoveTag:
		p := &RemoveTagPayload{}
		err = readColumn(cols.OldValue, &p.TagRef)
		payload = p
	case ApprovalTypeUpdateImage:
		p := &UpdateImagePayload{}
		if err = readColumn(cols.OldValue, &p.Old); err == nil {
			err = readColumn(cols.NewValue, &p.New)
		}
		payload = p
	default:
		return nil, fmt.Errorf("decode payload: unknown type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return payload, nil
}

func readColumn(col types.NullJSONText, dest interface{}) error {
	if !col.Valid || len(col.JSONText) == 0 {
		return nil
	}
	return json.Unmarshal(col.JSONText, dest)
}

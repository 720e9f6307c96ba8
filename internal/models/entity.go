package models

import (
	"database/sql/driver"
	"encoding/json"
	"maps"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// EntityStatus is the publication state of a listing.
type EntityStatus string

const (
	EntityStatusPending  EntityStatus = "PENDING"
	EntityStatusActive   EntityStatus = "ACTIVE"
	EntityStatusInactive EntityStatus = "INACTIVE"
)

// Valid reports whether s is a known status.
func (s EntityStatus) Valid() bool {
	switch s {
	case EntityStatusPending, EntityStatusActive, EntityStatusInactive:
		return true
	}
	return false
}

// EntityType classifies how a listing is located.
type EntityType string

const (
	EntityTypeStorefront  EntityType = "STOREFRONT"
	EntityTypePublicSpace EntityType = "PUBLIC_SPACE"
	EntityTypeNonprofit   EntityType = "NONPROFIT"
	EntityTypeMobile      EntityType = "MOBILE"
	EntityTypeHomeBased   EntityType = "HOME_BASED"
	EntityTypeOnline      EntityType = "ONLINE"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeStorefront, EntityTypePublicSpace, EntityTypeNonprofit,
		EntityTypeMobile, EntityTypeHomeBased, EntityTypeOnline:
		return true
	}
	return false
}

// RequiresAddress reports whether listings of this type need a street address.
func (t EntityType) RequiresAddress() bool {
	switch t {
	case EntityTypeStorefront, EntityTypePublicSpace, EntityTypeNonprofit:
		return true
	}
	return false
}

// StringMap is a JSONB string map (locale maps, social links, image slots).
type StringMap map[string]string

// Value implements driver.Valuer.
func (m StringMap) Value() (driver.Value, error) {
	return jsonValue(m)
}

// Scan implements sql.Scanner.
func (m *StringMap) Scan(src interface{}) error {
	out := StringMap{}
	if err := scanJSON(src, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// DayHours describes opening hours for one weekday.
type DayHours struct {
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// HoursMap keys opening hours by lower-case weekday name.
type HoursMap map[string]DayHours

// Value implements driver.Valuer.
func (h HoursMap) Value() (driver.Value, error) {
	return jsonValue(h)
}

// Scan implements sql.Scanner.
func (h *HoursMap) Scan(src interface{}) error {
	out := HoursMap{}
	if err := scanJSON(src, &out); err != nil {
		return err
	}
	*h = out
	return nil
}

func jsonValue[M ~map[string]V, V any](m M) (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func scanJSON(src interface{}, dest interface{}) error {
	var raw types.JSONText
	if err := raw.Scan(src); err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw.Unmarshal(dest)
}

// Entity is a directory listing.
type Entity struct {
	ID                      string       `db:"id" json:"id"`
	Slug                    string       `db:"slug" json:"slug"`
	Name                    string       `db:"name" json:"name"`
	NameTranslations        StringMap    `db:"name_translations" json:"nameTranslations,omitempty"`
	Description             string       `db:"description" json:"description"`
	DescriptionTranslations StringMap    `db:"description_translations" json:"descriptionTranslations,omitempty"`
	Address                 string       `db:"address" json:"address,omitempty"`
	Latitude                *float64     `db:"latitude" json:"latitude,omitempty"`
	Longitude               *float64     `db:"longitude" json:"longitude,omitempty"`
	Phone                   string       `db:"phone" json:"phone,omitempty"`
	Website                 string       `db:"website" json:"website,omitempty"`
	SocialMedia             StringMap    `db:"social_media" json:"socialMedia,omitempty"`
	Hours                   HoursMap     `db:"hours" json:"hours,omitempty"`
	Status                  EntityStatus `db:"status" json:"status"`
	EntityType              EntityType   `db:"entity_type" json:"entityType"`
	OwnerID                 string       `db:"owner_id" json:"ownerId"`
	Images                  StringMap    `db:"images" json:"images,omitempty"`
	CreatedAt               time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time    `db:"updated_at" json:"updatedAt"`

	Categories []Category  `db:"-" json:"categories"`
	Tags       []EntityTag `db:"-" json:"tags"`
}

// EntityTag is one tag association of an entity.
type EntityTag struct {
	EntityID  string    `db:"entity_id" json:"-"`
	TagID     string    `db:"tag_id" json:"tagId"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	Verified  bool      `db:"verified" json:"verified"`
	AddedBy   *string   `db:"added_by" json:"addedBy,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// EntityFilter narrows entity listings.
type EntityFilter struct {
	Status       EntityStatus
	Type         EntityType
	CategorySlug string
	OwnerID      string
	Search       string
	Limit        int
	Offset       int
}

// DuplicateCandidate is an existing entity that may match a submission.
type DuplicateCandidate struct {
	ID      string `db:"id" json:"id"`
	Slug    string `db:"slug" json:"slug"`
	Name    string `db:"name" json:"name"`
	Address string `db:"address" json:"address"`
	Website string `db:"website" json:"website"`
}

// EntityFields is a partial set of editable entity fields. Nil means untouched.
type EntityFields struct {
	Name                    *string     `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	NameTranslations        *StringMap  `json:"nameTranslations,omitempty"`
	Description             *string     `json:"description,omitempty" validate:"omitempty,max=5000"`
	DescriptionTranslations *StringMap  `json:"descriptionTranslations,omitempty"`
	Address                 *string     `json:"address,omitempty" validate:"omitempty,max=500"`
	Latitude                *float64    `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude               *float64    `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Phone                   *string     `json:"phone,omitempty" validate:"omitempty,max=50"`
	Website                 *string     `json:"website,omitempty" validate:"omitempty,url"`
	SocialMedia             *StringMap  `json:"socialMedia,omitempty"`
	Hours                   *HoursMap   `json:"hours,omitempty"`
	EntityType              *EntityType `json:"entityType,omitempty"`
}

type entityField struct {
	name    string
	set     func(f *EntityFields) bool
	apply   func(f *EntityFields, e *Entity)
	capture func(f *EntityFields, e *Entity)
	matches func(f *EntityFields, e *Entity) bool
	empty   func(e *Entity) bool
}

func scalarField[T comparable](name string, get func(*EntityFields) **T, cur func(*Entity) *T) entityField {
	return entityField{
		name:    name,
		set:     func(f *EntityFields) bool { return *get(f) != nil },
		apply:   func(f *EntityFields, e *Entity) { *cur(e) = **get(f) },
		capture: func(f *EntityFields, e *Entity) { v := *cur(e); *get(f) = &v },
		matches: func(f *EntityFields, e *Entity) bool { return **get(f) == *cur(e) },
		empty: func(e *Entity) bool {
			var zero T
			return *cur(e) == zero
		},
	}
}

func optionalFloatField(name string, get func(*EntityFields) **float64, cur func(*Entity) **float64) entityField {
	return entityField{
		name: name,
		set:  func(f *EntityFields) bool { return *get(f) != nil },
		apply: func(f *EntityFields, e *Entity) {
			v := **get(f)
			*cur(e) = &v
		},
		capture: func(f *EntityFields, e *Entity) {
			if c := *cur(e); c != nil {
				v := *c
				*get(f) = &v
				return
			}
			*get(f) = nil
		},
		matches: func(f *EntityFields, e *Entity) bool {
			c := *cur(e)
			return c != nil && *c == **get(f)
		},
		empty: func(e *Entity) bool { return *cur(e) == nil },
	}
}

func mapField[M ~map[string]V, V comparable](name string, get func(*EntityFields) **M, cur func(*Entity) *M) entityField {
	return entityField{
		name:  name,
		set:   func(f *EntityFields) bool { return *get(f) != nil },
		apply: func(f *EntityFields, e *Entity) { *cur(e) = maps.Clone(**get(f)) },
		capture: func(f *EntityFields, e *Entity) {
			v := maps.Clone(*cur(e))
			if v == nil {
				v = M{}
			}
			*get(f) = &v
		},
		matches: func(f *EntityFields, e *Entity) bool { return maps.Equal(**get(f), *cur(e)) },
		empty:   func(e *Entity) bool { return len(*cur(e)) == 0 },
	}
}

var entityFieldTable = []entityField{
	scalarField("name", func(f *EntityFields) **string { return &f.Name }, func(e *Entity) *string { return &e.Name }),
	mapField("nameTranslations", func(f *EntityFields) **StringMap { return &f.NameTranslations }, func(e *Entity) *StringMap { return &e.NameTranslations }),
	scalarField("description", func(f *EntityFields) **string { return &f.Description }, func(e *Entity) *string { return &e.Description }),
	mapField("descriptionTranslations", func(f *EntityFields) **StringMap { return &f.DescriptionTranslations }, func(e *Entity) *StringMap { return &e.DescriptionTranslations }),
	scalarField("address", func(f *EntityFields) **string { return &f.Address }, func(e *Entity) *string { return &e.Address }),
	optionalFloatField("latitude", func(f *EntityFields) **float64 { return &f.Latitude }, func(e *Entity) **float64 { return &e.Latitude }),
	optionalFloatField("longitude", func(f *EntityFields) **float64 { return &f.Longitude }, func(e *Entity) **float64 { return &e.Longitude }),
	scalarField("phone", func(f *EntityFields) **string { return &f.Phone }, func(e *Entity) *string { return &e.Phone }),
	scalarField("website", func(f *EntityFields) **string { return &f.Website }, func(e *Entity) *string { return &e.Website }),
	mapField("socialMedia", func(f *EntityFields) **StringMap { return &f.SocialMedia }, func(e *Entity) *StringMap { return &e.SocialMedia }),
	mapField("hours", func(f *EntityFields) **HoursMap { return &f.Hours }, func(e *Entity) *HoursMap { return &e.Hours }),
	scalarField("entityType", func(f *EntityFields) **EntityType { return &f.EntityType }, func(e *Entity) *EntityType { return &e.EntityType }),
}

// IsEmpty reports whether no field is set.
func (f EntityFields) IsEmpty() bool {
	return len(f.FieldNames()) == 0
}

// FieldNames lists the set fields in declaration order.
func (f EntityFields) FieldNames() []string {
	names := make([]string, 0, len(entityFieldTable))
	for _, field := range entityFieldTable {
		if field.set(&f) {
			names = append(names, field.name)
		}
	}
	return names
}

// ApplyTo merges the set fields onto e.
func (f EntityFields) ApplyTo(e *Entity) {
	for _, field := range entityFieldTable {
		if field.set(&f) {
			field.apply(&f, e)
		}
	}
}

// CurrentValues returns e's values for exactly the fields set in f.
func (f EntityFields) CurrentValues(e *Entity) EntityFields {
	var out EntityFields
	for _, field := range entityFieldTable {
		if field.set(&f) {
			field.capture(&out, e)
		}
	}
	return out
}

// ChangedFrom keeps only the set fields whose value differs from e.
func (f EntityFields) ChangedFrom(e *Entity) EntityFields {
	var out EntityFields
	for _, field := range entityFieldTable {
		if field.set(&f) && !field.matches(&f, e) {
			copyField(field, &f, &out)
		}
	}
	return out
}

// Mismatch compares f, the values captured at submission, against e for every field
// set in f or in changed, and returns the first that differs, or "". A field set in
// changed but absent from f was empty at submission, so e must still be empty.
func (f EntityFields) Mismatch(e *Entity, changed EntityFields) string {
	for _, field := range entityFieldTable {
		switch {
		case field.set(&f):
			if !field.matches(&f, e) {
				return field.name
			}
		case field.set(&changed):
			if !field.empty(e) {
				return field.name
			}
		}
	}
	return ""
}

func copyField(field entityField, src, dst *EntityFields) {
	var scratch Entity
	field.apply(src, &scratch)
	field.capture(dst, &scratch)
}

package models

import "time"

// Category is a canonical listing category.
type Category struct {
	ID        string    `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// Tag is a canonical listing tag.
type Tag struct {
	ID        string    `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// ResolvedRefs holds the category and tag IDs that still exist for a set of slugs.
type ResolvedRefs struct {
	CategoryIDs []string
	TagIDs      []string
}

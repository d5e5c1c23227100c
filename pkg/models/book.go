package models

import "time"

// OfferedBook is a copy a user has put up for exchange.
//
// Title and Author are stored verbatim as the owner typed them;
// TitleNorm and AuthorNorm are the searchable forms, recomputed from
// the raw fields on every write and never set independently.
type OfferedBook struct {
	ID             int64      `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Author         string     `json:"author"`
	TitleNorm      string     `json:"-"`
	AuthorNorm     string     `json:"-"`
	Notes          string     `json:"notes,omitempty"`
	Reserved       bool       `json:"reserved"`
	Active         bool       `json:"active"`
	CoverPath      string     `json:"-"`
	CoverUpdatedAt *time.Time `json:"cover_updated_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

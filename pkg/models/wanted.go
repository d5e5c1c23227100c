package models

import "time"

// WantedBook is a standing search. An empty Title means "anything by
// this author".
type WantedBook struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title,omitempty"`
	Author     string    `json:"author"`
	TitleNorm  string    `json:"-"`
	AuthorNorm string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

package models

import "time"

// ExchangeRequest is one row of the append-only request log.
//
// BookTitle and BookAuthor are copied from the catalog at admission
// time so the record stays readable after the book or either account
// is gone; ToUserID and BookID drop to nil in that case.
type ExchangeRequest struct {
	ID         int64     `json:"id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   *string   `json:"to_user_id,omitempty"`
	BookID     *int64    `json:"book_id,omitempty"`
	BookTitle  string    `json:"book_title"`
	BookAuthor string    `json:"book_author"`
	CreatedAt  time.Time `json:"created_at"`
}

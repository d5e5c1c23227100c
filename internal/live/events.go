package live

import "time"

// ExchangeEvent is what connected clients see when the catalog moves:
// a new book listed or an exchange request admitted.
type ExchangeEvent struct {
	Type          string    `json:"type"` // "book.listed" or "exchange.request"
	FromUsername  string    `json:"from_username,omitempty"`
	OwnerUsername string    `json:"owner_username,omitempty"`
	BookID        int64     `json:"book_id,omitempty"`
	BookTitle     string    `json:"book_title"`
	BookAuthor    string    `json:"book_author"`
	At            time.Time `json:"at"`
}

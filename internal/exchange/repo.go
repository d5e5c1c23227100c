package exchange

import (
	"context"
	"database/sql"
	"fmt"

	"giralibros/pkg/models"
)

// Repo reads the append-only request log. Writes only happen through
// Service.TryCreate.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// HistoryItem is one logged request plus the counterpart's username,
// empty when that account no longer exists.
type HistoryItem struct {
	models.ExchangeRequest
	CounterpartUsername string `json:"counterpart_username,omitempty"`
}

// SentBy returns requests the user made, newest first.
func (r *Repo) SentBy(ctx context.Context, userID string, limit, offset int) ([]HistoryItem, error) {
	return r.history(ctx, `
		SELECT er.id, er.from_user_id, er.to_user_id, er.book_id,
		       er.book_title, er.book_author, er.created_at,
		       COALESCE(u.username, '')
		FROM exchange_requests er
		LEFT JOIN users u ON u.id = er.to_user_id
		WHERE er.from_user_id = ?
		ORDER BY er.created_at DESC, er.id DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset)
}

// ReceivedBy returns requests made for the user's books, newest first.
func (r *Repo) ReceivedBy(ctx context.Context, userID string, limit, offset int) ([]HistoryItem, error) {
	return r.history(ctx, `
		SELECT er.id, er.from_user_id, er.to_user_id, er.book_id,
		       er.book_title, er.book_author, er.created_at,
		       COALESCE(u.username, '')
		FROM exchange_requests er
		LEFT JOIN users u ON u.id = er.from_user_id
		WHERE er.to_user_id = ?
		ORDER BY er.created_at DESC, er.id DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset)
}

func (r *Repo) history(ctx context.Context, query string, args ...any) ([]HistoryItem, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exchange history: %w", err)
	}
	defer rows.Close()

	items := []HistoryItem{}
	for rows.Next() {
		var it HistoryItem
		err := rows.Scan(
			&it.ID, &it.FromUserID, &it.ToUserID, &it.BookID,
			&it.BookTitle, &it.BookAuthor, &it.CreatedAt,
			&it.CounterpartUsername,
		)
		if err != nil {
			return nil, fmt.Errorf("scan exchange history: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query exchange history: %w", err)
	}
	return items, nil
}

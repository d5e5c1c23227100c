package exchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"giralibros/internal/mailer"
	"giralibros/pkg/models"
)

// Config are the admission knobs. Zero values fall back to the defaults
// at construction, never at check time.
type Config struct {
	ExpiryWindowDays int // duplicate suppression window, days
	DailyLimit       int // max requests per user per trailing 24h
}

const (
	DefaultExpiryWindowDays = 15
	DefaultDailyLimit       = 25
)

func (c Config) withDefaults() Config {
	if c.ExpiryWindowDays <= 0 {
		c.ExpiryWindowDays = DefaultExpiryWindowDays
	}
	if c.DailyLimit <= 0 {
		c.DailyLimit = DefaultDailyLimit
	}
	return c
}

// Service gates creation of exchange requests. All checks and the
// insert+notify pair run inside one transaction; the database opens
// write transactions with an immediate lock, so two concurrent
// admissions for the same pair cannot both pass the duplicate check.
type Service struct {
	DB     *sql.DB
	Mailer mailer.Mailer
	Cfg    Config
}

func NewService(db *sql.DB, m mailer.Mailer, cfg Config) *Service {
	return &Service{DB: db, Mailer: m, Cfg: cfg.withDefaults()}
}

// Admission is the success result: the persisted record plus the names
// the caller announces on the live feed.
type Admission struct {
	Record        *models.ExchangeRequest
	FromUsername  string
	OwnerUsername string
}

// TryCreate runs the admission gate for fromUserID requesting bookID.
// On rejection the error is a *Rejection; anything else is a storage
// fault. Exactly one record and one owner notification on success,
// zero of either on any failure.
func (s *Service) TryCreate(ctx context.Context, fromUserID string, bookID int64, now time.Time) (*Admission, error) {
	now = now.UTC()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback()

	// Gate 1: the book must exist and still be offered.
	var (
		ownerID, ownerUsername, ownerEmail string
		bookTitle, bookAuthor              string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT b.user_id, b.title, b.author, u.username,
		       COALESCE(NULLIF(p.contact_email, ''), u.email)
		FROM offered_books b
		JOIN users u ON u.id = b.user_id
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE b.id = ? AND b.active = 1`,
		bookID,
	).Scan(&ownerID, &bookTitle, &bookAuthor, &ownerUsername, &ownerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rejectNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("load book %d: %w", bookID, err)
	}

	// Gate 2: not your own book.
	if ownerID == fromUserID {
		return nil, rejectSelfRequest()
	}

	// Gate 3: the requester must have something to trade.
	var offered int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offered_books WHERE user_id = ? AND active = 1`,
		fromUserID,
	).Scan(&offered)
	if err != nil {
		return nil, fmt.Errorf("count offered books: %w", err)
	}
	if offered == 0 {
		return nil, rejectNoInventory()
	}

	// Gate 4: no live request for the same pair inside the expiry window.
	expiryCutoff := now.Add(-time.Duration(s.Cfg.ExpiryWindowDays) * 24 * time.Hour)
	var dup int
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM exchange_requests
			WHERE from_user_id = ? AND book_id = ? AND created_at >= ?)`,
		fromUserID, bookID, expiryCutoff,
	).Scan(&dup)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if dup == 1 {
		return nil, rejectDuplicate()
	}

	// Gate 5: sliding 24h rate limit, measured from now.
	var sent int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exchange_requests WHERE from_user_id = ? AND created_at >= ?`,
		fromUserID, now.Add(-24*time.Hour),
	).Scan(&sent)
	if err != nil {
		return nil, fmt.Errorf("count recent requests: %w", err)
	}
	if sent >= s.Cfg.DailyLimit {
		return nil, rejectRateLimited()
	}

	// Admit: insert the record with its title/author snapshot.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO exchange_requests (from_user_id, to_user_id, book_id, book_title, book_author, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fromUserID, ownerID, bookID, bookTitle, bookAuthor, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert exchange request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert exchange request: %w", err)
	}

	mail, fromUsername, err := s.buildOwnerMail(ctx, tx, fromUserID, ownerUsername, ownerEmail, bookTitle, bookAuthor)
	if err != nil {
		return nil, err
	}

	// The notification is part of the admission: if it cannot be
	// delivered the insert above rolls back with the transaction.
	if err := s.Mailer.SendExchangeRequest(mail); err != nil {
		return nil, rejectNotificationFailure(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}

	return &Admission{
		Record: &models.ExchangeRequest{
			ID:         id,
			FromUserID: fromUserID,
			ToUserID:   &ownerID,
			BookID:     &bookID,
			BookTitle:  bookTitle,
			BookAuthor: bookAuthor,
			CreatedAt:  now,
		},
		FromUsername:  fromUsername,
		OwnerUsername: ownerUsername,
	}, nil
}

// buildOwnerMail collects what the owner needs to answer: the
// requester's contact details and what they have on offer.
func (s *Service) buildOwnerMail(ctx context.Context, tx *sql.Tx, fromUserID, ownerUsername, ownerEmail, bookTitle, bookAuthor string) (mailer.ExchangeMail, string, error) {
	var (
		fromUsername string
		profile      models.Profile
	)
	err := tx.QueryRowContext(ctx, `
		SELECT u.username,
		       COALESCE(u.first_name, ''),
		       COALESCE(NULLIF(p.contact_email, ''), u.email),
		       COALESCE(p.alternate_contact, ''),
		       COALESCE(p.about, '')
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE u.id = ?`,
		fromUserID,
	).Scan(&fromUsername, &profile.FirstName, &profile.ContactEmail, &profile.AlternateContact, &profile.About)
	if err != nil {
		return mailer.ExchangeMail{}, "", fmt.Errorf("load requester %s: %w", fromUserID, err)
	}
	profile.UserID = fromUserID

	rows, err := tx.QueryContext(ctx,
		`SELECT title, author FROM offered_books WHERE user_id = ? AND active = 1 ORDER BY created_at DESC, id DESC`,
		fromUserID,
	)
	if err != nil {
		return mailer.ExchangeMail{}, "", fmt.Errorf("list requester books: %w", err)
	}
	defer rows.Close()

	var books []models.OfferedBook
	for rows.Next() {
		var b models.OfferedBook
		if err := rows.Scan(&b.Title, &b.Author); err != nil {
			return mailer.ExchangeMail{}, "", fmt.Errorf("scan requester book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return mailer.ExchangeMail{}, "", fmt.Errorf("list requester books: %w", err)
	}

	return mailer.ExchangeMail{
		To:                ownerEmail,
		OwnerUsername:     ownerUsername,
		BookTitle:         bookTitle,
		BookAuthor:        bookAuthor,
		RequesterUsername: fromUsername,
		Requester:         profile,
		RequesterBooks:    books,
	}, fromUsername, nil
}

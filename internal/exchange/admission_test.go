package exchange

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giralibros/internal/mailer"
	"giralibros/pkg/database"
)

// fakeMailer records outgoing mail, or fails on demand to exercise the
// rollback path.
type fakeMailer struct {
	fail bool
	sent []mailer.ExchangeMail
}

func (f *fakeMailer) SendVerification(mailer.VerificationMail) error { return nil }

func (f *fakeMailer) SendExchangeRequest(m mailer.ExchangeMail) error {
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, m)
	return nil
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func addUser(t *testing.T, db *sql.DB, username string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO users (id, username, email, password_hash, verified) VALUES (?, ?, ?, 'x', 1)`,
		id, username, username+"@example.com")
	require.NoError(t, err)
	return id
}

func addProfile(t *testing.T, db *sql.DB, userID, contactEmail, alternate string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO profiles (user_id, contact_email, alternate_contact) VALUES (?, ?, ?)`,
		userID, contactEmail, alternate)
	require.NoError(t, err)
}

func addBook(t *testing.T, db *sql.DB, userID, title, author string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO offered_books (user_id, title, author, title_norm, author_norm, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, title, author, strings.ToLower(title), strings.ToLower(author), time.Now().UTC())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func retireBook(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	_, err := db.Exec(`UPDATE offered_books SET active = 0 WHERE id = ?`, id)
	require.NoError(t, err)
}

func countRequests(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM exchange_requests`).Scan(&n))
	return n
}

func requireRejection(t *testing.T, err error, kind RejectKind) *Rejection {
	t.Helper()
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "want a Rejection, got: %v", err)
	require.Equal(t, kind, rej.Kind)
	return rej
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAdmitPersistsAndNotifies(t *testing.T) {
	db := openDB(t)
	fm := &fakeMailer{}
	svc := NewService(db, fm, Config{})
	ctx := context.Background()

	ana := addUser(t, db, "ana")
	bruno := addUser(t, db, "bruno")
	addProfile(t, db, ana, "ana.canje@example.com", "tel 11-5555")
	addProfile(t, db, bruno, "bruno.canje@example.com", "")

	addBook(t, db, ana, "Rayuela", "Julio Cortázar")
	retired := addBook(t, db, ana, "Vieja edición", "Anónimo")
	retireBook(t, db, retired)
	bookID := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")

	adm, err := svc.TryCreate(ctx, ana, bookID, t0)
	require.NoError(t, err)

	require.NotNil(t, adm.Record)
	assert.Equal(t, ana, adm.Record.FromUserID)
	require.NotNil(t, adm.Record.ToUserID)
	assert.Equal(t, bruno, *adm.Record.ToUserID)
	require.NotNil(t, adm.Record.BookID)
	assert.Equal(t, bookID, *adm.Record.BookID)
	assert.Equal(t, "Ficciones", adm.Record.BookTitle)
	assert.Equal(t, "Jorge Luis Borges", adm.Record.BookAuthor)
	assert.Equal(t, "ana", adm.FromUsername)
	assert.Equal(t, "bruno", adm.OwnerUsername)
	assert.Equal(t, 1, countRequests(t, db))

	require.Len(t, fm.sent, 1)
	m := fm.sent[0]
	assert.Equal(t, "bruno.canje@example.com", m.To)
	assert.Equal(t, "bruno", m.OwnerUsername)
	assert.Equal(t, "ana", m.RequesterUsername)
	assert.Equal(t, "ana.canje@example.com", m.Requester.ContactEmail)
	assert.Equal(t, "tel 11-5555", m.Requester.AlternateContact)

	// Only active inventory goes in the mail.
	require.Len(t, m.RequesterBooks, 1)
	assert.Equal(t, "Rayuela", m.RequesterBooks[0].Title)
}

func TestMailFallsBackToAccountEmail(t *testing.T) {
	db := openDB(t)
	fm := &fakeMailer{}
	svc := NewService(db, fm, Config{})

	ana := addUser(t, db, "ana")
	bruno := addUser(t, db, "bruno") // no profile
	addBook(t, db, ana, "Rayuela", "Julio Cortázar")
	bookID := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")

	_, err := svc.TryCreate(context.Background(), ana, bookID, t0)
	require.NoError(t, err)
	require.Len(t, fm.sent, 1)
	assert.Equal(t, "bruno@example.com", fm.sent[0].To)
}

func TestDuplicateWindowRollsOver(t *testing.T) {
	db := openDB(t)
	fm := &fakeMailer{}
	svc := NewService(db, fm, Config{ExpiryWindowDays: 15})
	ctx := context.Background()

	ana := addUser(t, db, "ana")
	bruno := addUser(t, db, "bruno")
	addBook(t, db, ana, "Rayuela", "Julio Cortázar")
	bookID := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")

	_, err := svc.TryCreate(ctx, ana, bookID, t0)
	require.NoError(t, err)

	// One day later the pair is still suppressed.
	_, err = svc.TryCreate(ctx, ana, bookID, t0.Add(24*time.Hour))
	requireRejection(t, err, KindDuplicate)
	assert.Equal(t, 1, countRequests(t, db))

	// Sixteen days later the window has expired.
	_, err = svc.TryCreate(ctx, ana, bookID, t0.Add(16*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, countRequests(t, db))
}

func TestRateLimitSlidingWindow(t *testing.T) {
	db := openDB(t)
	fm := &fakeMailer{}
	svc := NewService(db, fm, Config{DailyLimit: 2})
	ctx := context.Background()

	ana := addUser(t, db, "ana")
	bruno := addUser(t, db, "bruno")
	addBook(t, db, ana, "Rayuela", "Julio Cortázar")
	b1 := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")
	b2 := addBook(t, db, bruno, "El Aleph", "Jorge Luis Borges")
	b3 := addBook(t, db, bruno, "Bestiario", "Julio Cortázar")

	_, err := svc.TryCreate(ctx, ana, b1, t0)
	require.NoError(t, err)
	_, err = svc.TryCreate(ctx, ana, b2, t0.Add(time.Hour))
	require.NoError(t, err)

	// Third request inside the trailing 24h hits the limit.
	_, err = svc.TryCreate(ctx, ana, b3, t0.Add(2*time.Hour))
	requireRejection(t, err, KindRateLimited)
	assert.Equal(t, 2, countRequests(t, db))

	// 25h after t0 the first request has left the window.
	_, err = svc.TryCreate(ctx, ana, b3, t0.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, countRequests(t, db))
}

func TestMailerFailureRollsBack(t *testing.T) {
	db := openDB(t)
	fm := &fakeMailer{fail: true}
	svc := NewService(db, fm, Config{})

	ana := addUser(t, db, "ana")
	bruno := addUser(t, db, "bruno")
	addBook(t, db, ana, "Rayuela", "Julio Cortázar")
	bookID := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")

	_, err := svc.TryCreate(context.Background(), ana, bookID, t0)
	rej := requireRejection(t, err, KindNotificationFailure)
	assert.ErrorContains(t, rej.Cause, "smtp down")

	// The insert must not survive the failed notification.
	assert.Equal(t, 0, countRequests(t, db))
}

func TestSelfRequestRejected(t *testing.T) {
	db := openDB(t)
	svc := NewService(db, &fakeMailer{}, Config{})

	ana := addUser(t, db, "ana")
	bookID := addBook(t, db, ana, "Rayuela", "Julio Cortázar")

	_, err := svc.TryCreate(context.Background(), ana, bookID, t0)
	requireRejection(t, err, KindSelfRequest)
	assert.Equal(t, 0, countRequests(t, db))
}

func TestNoInventoryRejected(t *testing.T) {
	db := openDB(t)
	svc := NewService(db, &fakeMailer{}, Config{})
	ctx := context.Background()

	ana := addUser(t, db, "ana")
	bruno := addUser(t, db, "bruno")
	bookID := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")

	_, err := svc.TryCreate(ctx, ana, bookID, t0)
	requireRejection(t, err, KindNoInventory)

	// A retired book is not inventory either.
	retired := addBook(t, db, ana, "Rayuela", "Julio Cortázar")
	retireBook(t, db, retired)
	_, err = svc.TryCreate(ctx, ana, bookID, t0)
	requireRejection(t, err, KindNoInventory)
}

func TestMissingOrRetiredBookNotFound(t *testing.T) {
	db := openDB(t)
	svc := NewService(db, &fakeMailer{}, Config{})
	ctx := context.Background()

	// No inventory either, but the missing book wins: gate order.
	ana := addUser(t, db, "ana")
	_, err := svc.TryCreate(ctx, ana, 9999, t0)
	requireRejection(t, err, KindNotFound)

	bruno := addUser(t, db, "bruno")
	bookID := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")
	retireBook(t, db, bookID)
	_, err = svc.TryCreate(ctx, ana, bookID, t0)
	requireRejection(t, err, KindNotFound)
}

func TestHistoryNewestFirst(t *testing.T) {
	db := openDB(t)
	svc := NewService(db, &fakeMailer{}, Config{})
	repo := NewRepo(db)
	ctx := context.Background()

	ana := addUser(t, db, "ana")
	bruno := addUser(t, db, "bruno")
	addBook(t, db, ana, "Rayuela", "Julio Cortázar")
	b1 := addBook(t, db, bruno, "Ficciones", "Jorge Luis Borges")
	b2 := addBook(t, db, bruno, "El Aleph", "Jorge Luis Borges")

	_, err := svc.TryCreate(ctx, ana, b1, t0)
	require.NoError(t, err)
	_, err = svc.TryCreate(ctx, ana, b2, t0.Add(time.Hour))
	require.NoError(t, err)

	sent, err := repo.SentBy(ctx, ana, 20, 0)
	require.NoError(t, err)
	require.Len(t, sent, 2)
	assert.Equal(t, "El Aleph", sent[0].BookTitle)
	assert.Equal(t, "Ficciones", sent[1].BookTitle)
	assert.Equal(t, "bruno", sent[0].CounterpartUsername)

	received, err := repo.ReceivedBy(ctx, bruno, 20, 0)
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, "ana", received[0].CounterpartUsername)

	// Limit caps the page.
	page, err := repo.SentBy(ctx, ana, 1, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "El Aleph", page[0].BookTitle)

	// Nothing received by the requester.
	none, err := repo.ReceivedBy(ctx, ana, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

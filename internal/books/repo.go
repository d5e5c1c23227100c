package books

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"giralibros/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Listing is one row of the shared catalog: the book plus who offers
// it and whether the viewer already has a live request for it.
type Listing struct {
	models.OfferedBook
	OwnerUsername    string `json:"owner_username"`
	AlreadyRequested bool   `json:"already_requested"`
	HasCover         bool   `json:"has_cover"`
}

type ListingQuery struct {
	ViewerID string
	Search   string // free text, normalized before matching
	Wanted   bool   // restrict to books matching the viewer's wanted list
	// Requests at or after this instant count as "already requested".
	RequestedSince time.Time
	Limit          int
	Offset         int
}

const bookColumns = `id, user_id, title, author, title_norm, author_norm, notes, reserved, active, cover_path, cover_updated_at, created_at`

func scanBook(row interface{ Scan(...any) error }) (*models.OfferedBook, error) {
	var (
		b         models.OfferedBook
		reserved  int
		active    int
		coverPath sql.NullString
		coverAt   sql.NullTime
	)
	if err := row.Scan(
		&b.ID, &b.UserID, &b.Title, &b.Author, &b.TitleNorm, &b.AuthorNorm,
		&b.Notes, &reserved, &active, &coverPath, &coverAt, &b.CreatedAt,
	); err != nil {
		return nil, err
	}
	b.Reserved = reserved != 0
	b.Active = active != 0
	b.CoverPath = coverPath.String
	if coverAt.Valid {
		t := coverAt.Time
		b.CoverUpdatedAt = &t
	}
	return &b, nil
}

// Create inserts an offered book, computing the normalized columns
// from the raw title/author. Returns the new id.
func (r *Repo) Create(ctx context.Context, b models.OfferedBook) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO offered_books (user_id, title, author, title_norm, author_norm, notes, reserved, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 1, ?)
	`, b.UserID, b.Title, b.Author, Normalize(b.Title), Normalize(b.Author), b.Notes, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("create book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create book id: %w", err)
	}
	return id, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.OfferedBook, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM offered_books WHERE id = ?`, id)
	b, err := scanBook(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (r *Repo) ListByOwner(ctx context.Context, userID string, activeOnly bool) ([]models.OfferedBook, error) {
	q := `SELECT ` + bookColumns + ` FROM offered_books WHERE user_id = ?`
	if activeOnly {
		q += ` AND active = 1`
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()

	var out []models.OfferedBook
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("list by owner scan: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list by owner rows: %w", err)
	}
	return out, nil
}

// Update rewrites title/author/notes of the owner's book, recomputing
// the normalized columns. Returns false when the book is not the
// owner's (or gone).
func (r *Repo) Update(ctx context.Context, id int64, ownerID, title, author, notes string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE offered_books
		SET title = ?, author = ?, title_norm = ?, author_norm = ?, notes = ?
		WHERE id = ? AND user_id = ? AND active = 1
	`, title, author, Normalize(title), Normalize(author), notes, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("update book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update book rows: %w", err)
	}
	return n > 0, nil
}

// SoftDelete retires the book from the catalog. The row stays so the
// request log's foreign key can drop to NULL only on a real delete.
func (r *Repo) SoftDelete(ctx context.Context, id int64, ownerID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE offered_books SET active = 0 WHERE id = ? AND user_id = ? AND active = 1
	`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete book rows: %w", err)
	}
	return n > 0, nil
}

// MarkTraded retires the book and clears any reservation mark.
func (r *Repo) MarkTraded(ctx context.Context, id int64, ownerID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE offered_books SET active = 0, reserved = 0 WHERE id = ? AND user_id = ? AND active = 1
	`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("trade book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("trade book rows: %w", err)
	}
	return n > 0, nil
}

func (r *Repo) SetReserved(ctx context.Context, id int64, ownerID string, reserved bool) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE offered_books SET reserved = ? WHERE id = ? AND user_id = ? AND active = 1
	`, boolToInt(reserved), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("set reserved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set reserved rows: %w", err)
	}
	return n > 0, nil
}

// SetCover records the stored cover file and bumps the activity
// timestamp the listing sorts by.
func (r *Repo) SetCover(ctx context.Context, id int64, ownerID, path string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE offered_books SET cover_path = ?, cover_updated_at = ? WHERE id = ? AND user_id = ? AND active = 1
	`, path, now.UTC(), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("set cover: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set cover rows: %w", err)
	}
	return n > 0, nil
}

func (r *Repo) CreateWanted(ctx context.Context, w models.WantedBook) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO wanted_books (user_id, title, author, title_norm, author_norm, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.UserID, w.Title, w.Author, Normalize(w.Title), Normalize(w.Author), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("create wanted: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create wanted id: %w", err)
	}
	return id, nil
}

func (r *Repo) ListWanted(ctx context.Context, userID string) ([]models.WantedBook, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_id, title, author, title_norm, author_norm, created_at
		FROM wanted_books
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list wanted: %w", err)
	}
	defer rows.Close()

	var out []models.WantedBook
	for rows.Next() {
		var w models.WantedBook
		if err := rows.Scan(&w.ID, &w.UserID, &w.Title, &w.Author, &w.TitleNorm, &w.AuthorNorm, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("list wanted scan: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wanted rows: %w", err)
	}
	return out, nil
}

func (r *Repo) DeleteWanted(ctx context.Context, id int64, userID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM wanted_books WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete wanted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete wanted rows: %w", err)
	}
	return n > 0, nil
}

// List runs the shared catalog query: active books from owners sharing
// at least one area with the viewer, never the viewer's own, filtered
// by free-text search and/or the viewer's wanted list, newest activity
// first. Count is computed with the same filters.
func (r *Repo) List(ctx context.Context, q ListingQuery) ([]Listing, int, error) {
	var wanted []models.WantedBook
	if q.Wanted {
		var err error
		wanted, err = r.ListWanted(ctx, q.ViewerID)
		if err != nil {
			return nil, 0, err
		}
		// An empty wanted list matches nothing, not everything.
		if len(wanted) == 0 {
			return []Listing{}, 0, nil
		}
	}

	countSQL, countArgs := buildListingSQL(q, wanted, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("listing count: %w", err)
	}

	listSQL, listArgs := buildListingSQL(q, wanted, false)
	rows, err := r.DB.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing query: %w", err)
	}
	defer rows.Close()

	out, err := scanListings(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListProfileShelf returns one owner's active books the way a visitor
// sees them on a profile: no area gate, still annotated with whether
// the viewer has a live request for each.
func (r *Repo) ListProfileShelf(ctx context.Context, ownerID, viewerID string, requestedSince time.Time) ([]Listing, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT b.id, b.user_id, b.title, b.author, b.title_norm, b.author_norm,
		       b.notes, b.reserved, b.active, b.cover_path, b.cover_updated_at, b.created_at,
		       u.username,
		       EXISTS(
		           SELECT 1 FROM exchange_requests er
		           WHERE er.from_user_id = ? AND er.book_id = b.id AND er.created_at >= ?
		       ) AS already_requested
		FROM offered_books b
		JOIN users u ON u.id = b.user_id
		WHERE b.user_id = ? AND b.active = 1
		ORDER BY MAX(b.created_at, COALESCE(b.cover_updated_at, b.created_at)) DESC, b.id DESC`,
		viewerID, requestedSince.UTC(), ownerID)
	if err != nil {
		return nil, fmt.Errorf("profile shelf query: %w", err)
	}
	defer rows.Close()
	return scanListings(rows)
}

func scanListings(rows *sql.Rows) ([]Listing, error) {
	out := []Listing{}
	for rows.Next() {
		var (
			l         Listing
			reserved  int
			active    int
			coverPath sql.NullString
			coverAt   sql.NullTime
			requested int
		)
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Title, &l.Author, &l.TitleNorm, &l.AuthorNorm,
			&l.Notes, &reserved, &active, &coverPath, &coverAt, &l.CreatedAt,
			&l.OwnerUsername, &requested,
		); err != nil {
			return nil, fmt.Errorf("listing scan: %w", err)
		}
		l.Reserved = reserved != 0
		l.Active = active != 0
		l.CoverPath = coverPath.String
		l.HasCover = coverPath.String != ""
		if coverAt.Valid {
			t := coverAt.Time
			l.CoverUpdatedAt = &t
		}
		l.AlreadyRequested = requested != 0
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rows: %w", err)
	}
	return out, nil
}

// buildListingSQL builds either the COUNT(*) or the SELECT form of the
// catalog query. Search terms and wanted entries are normalized before
// binding, so the LIKE patterns carry no metacharacters.
func buildListingSQL(q ListingQuery, wanted []models.WantedBook, countOnly bool) (string, []any) {
	baseSelect := `
		SELECT b.id, b.user_id, b.title, b.author, b.title_norm, b.author_norm,
		       b.notes, b.reserved, b.active, b.cover_path, b.cover_updated_at, b.created_at,
		       u.username,
		       EXISTS(
		           SELECT 1 FROM exchange_requests er
		           WHERE er.from_user_id = ? AND er.book_id = b.id AND er.created_at >= ?
		       ) AS already_requested
		FROM offered_books b
		JOIN users u ON u.id = b.user_id
	`
	args := []any{}
	if countOnly {
		baseSelect = `
		SELECT COUNT(*)
		FROM offered_books b
		JOIN users u ON u.id = b.user_id
	`
	} else {
		args = append(args, q.ViewerID, q.RequestedSince.UTC())
	}

	where := []string{
		"b.active = 1",
		"b.user_id != ?",
		`EXISTS(
			SELECT 1 FROM user_locations ol
			JOIN user_locations vl ON vl.area = ol.area
			WHERE ol.user_id = b.user_id AND vl.user_id = ?
		)`,
	}
	args = append(args, q.ViewerID, q.ViewerID)

	// free-text search: every word must appear in title or author
	for _, word := range strings.Fields(Normalize(q.Search)) {
		where = append(where, "(b.title_norm LIKE ? OR b.author_norm LIKE ?)")
		pat := "%" + word + "%"
		args = append(args, pat, pat)
	}

	// wanted list: any entry may match; empty wanted title matches all
	// titles by that author ("%%")
	if len(wanted) > 0 {
		var entryOr []string
		for _, w := range wanted {
			entryOr = append(entryOr, "(b.author_norm LIKE ? AND b.title_norm LIKE ?)")
			args = append(args, "%"+Normalize(w.Author)+"%", "%"+Normalize(w.Title)+"%")
		}
		where = append(where, "("+strings.Join(entryOr, " OR ")+")")
	}

	sqlStr := baseSelect + " WHERE " + strings.Join(where, " AND ")

	if !countOnly {
		// activity = later of listing time and last cover update
		sqlStr += ` ORDER BY MAX(b.created_at, COALESCE(b.cover_updated_at, b.created_at)) DESC, b.id DESC`
		sqlStr += ` LIMIT ? OFFSET ?`
		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"giralibros/pkg/database"
)

func main() {
	var (
		booksOut    = flag.String("books", "data/books.csv", "output CSV path for offered books")
		requestsOut = flag.String("requests", "data/exchange_requests.csv", "output CSV path for exchange requests")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	if err := exportBooks(ctx, db, *booksOut); err != nil {
		log.Fatalf("export books failed: %v", err)
	}
	if err := exportRequests(ctx, db, *requestsOut); err != nil {
		log.Fatalf("export requests failed: %v", err)
	}

	log.Printf("✅ exported books to %s and exchange requests to %s", *booksOut, *requestsOut)
}

func exportBooks(ctx context.Context, db *sql.DB, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "owner", "title", "author", "notes", "reserved", "active", "created_at"}); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `
        SELECT b.id, u.username, b.title, b.author, b.notes, b.reserved, b.active, b.created_at
        FROM offered_books b
        JOIN users u ON u.id = b.user_id
        ORDER BY b.title
    `)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        int64
			owner     string
			title     string
			author    string
			notes     sql.NullString
			reserved  int
			active    int
			createdAt sql.NullTime
		)

		if err := rows.Scan(&id, &owner, &title, &author, &notes, &reserved, &active, &createdAt); err != nil {
			return err
		}

		created := ""
		if createdAt.Valid {
			created = createdAt.Time.Format(time.RFC3339)
		}

		if err := w.Write([]string{
			strconv.FormatInt(id, 10),
			owner,
			title,
			author,
			notes.String,
			flagWord(reserved),
			flagWord(active),
			created,
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func exportRequests(ctx context.Context, db *sql.DB, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"id", "from_username", "to_username", "book_id", "book_title", "book_author", "created_at"}); err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `
        SELECT er.id, fu.username, tu.username, er.book_id, er.book_title, er.book_author, er.created_at
        FROM exchange_requests er
        JOIN users fu ON fu.id = er.from_user_id
        LEFT JOIN users tu ON tu.id = er.to_user_id
        ORDER BY er.created_at DESC
    `)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         int64
			fromUser   string
			toUser     sql.NullString
			bookID     sql.NullInt64
			bookTitle  string
			bookAuthor string
			createdAt  sql.NullTime
		)

		if err := rows.Scan(&id, &fromUser, &toUser, &bookID, &bookTitle, &bookAuthor, &createdAt); err != nil {
			return err
		}

		book := ""
		if bookID.Valid {
			book = strconv.FormatInt(bookID.Int64, 10)
		}

		created := ""
		if createdAt.Valid {
			created = createdAt.Time.Format(time.RFC3339)
		}

		if err := w.Write([]string{
			strconv.FormatInt(id, 10),
			fromUser,
			toUser.String,
			book,
			bookTitle,
			bookAuthor,
			created,
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func flagWord(v int) string {
	if v != 0 {
		return "yes"
	}
	return "no"
}

package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"giralibros/internal/books"
	"giralibros/pkg/database"
	"giralibros/pkg/models"
)

func main() {
	var (
		usersIn = flag.String("users", "data/users.csv", "input CSV path for users")
		booksIn = flag.String("books", "data/books.csv", "input CSV path for offered books")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	if err := importUsers(ctx, db, *usersIn); err != nil {
		log.Fatalf("import users failed: %v", err)
	}
	if err := importBooks(ctx, db, *booksIn); err != nil {
		log.Fatalf("import books failed: %v", err)
	}

	log.Printf("✅ imported users from %s and books from %s", *usersIn, *booksIn)
}

// importUsers upserts accounts keyed by username. The password column
// holds the plain password and is hashed on the way in, so seed files
// stay readable. Imported accounts default to verified.
func importUsers(ctx context.Context, db *sql.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return err
	}

	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
		  email = excluded.email,
		  password_hash = excluded.password_hash,
		  first_name = excluded.first_name,
		  verified = excluded.verified
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	areaStmt, err := db.PrepareContext(ctx, `
		INSERT INTO user_locations (user_id, area) VALUES (?, ?)
		ON CONFLICT(user_id, area) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer areaStmt.Close()

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}

		username := valueAt(header, row, "username")
		email := strings.ToLower(valueAt(header, row, "email"))
		password := valueAt(header, row, "password")
		if username == "" || email == "" || password == "" {
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", username, err)
		}

		createdAt, err := parseTimeOr(valueAt(header, row, "created_at"), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parse created_at for %s: %w", username, err)
		}

		id := valueAt(header, row, "id")
		if id == "" {
			id = uuid.NewString()
		}

		if _, err := stmt.ExecContext(
			ctx,
			id,
			username,
			email,
			string(hash),
			valueAt(header, row, "first_name"),
			parseFlag(valueAt(header, row, "verified"), true),
			createdAt,
		); err != nil {
			return err
		}

		// The upsert keeps the original id on conflict, so resolve it
		// before attaching areas.
		var userID string
		if err := db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&userID); err != nil {
			return fmt.Errorf("resolve id for %s: %w", username, err)
		}

		for _, area := range splitList(valueAt(header, row, "areas")) {
			if !models.ValidArea(area) {
				return fmt.Errorf("unknown area %q for %s", area, username)
			}
			if _, err := areaStmt.ExecContext(ctx, userID, area); err != nil {
				return err
			}
		}
	}

	return nil
}

// importBooks inserts offered books owned by previously imported users.
// Rows with an id column upsert in place; rows without one get a fresh
// id on every run.
func importBooks(ctx context.Context, db *sql.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return err
	}

	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO offered_books (id, user_id, title, author, title_norm, author_norm, notes, reserved, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
		  user_id = excluded.user_id,
		  title = excluded.title,
		  author = excluded.author,
		  title_norm = excluded.title_norm,
		  author_norm = excluded.author_norm,
		  notes = excluded.notes,
		  reserved = excluded.reserved
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	owners := make(map[string]string)

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if len(row) == 0 {
			continue
		}

		owner := valueAt(header, row, "owner")
		title := valueAt(header, row, "title")
		author := valueAt(header, row, "author")
		if owner == "" || title == "" || author == "" {
			continue
		}

		ownerID, ok := owners[owner]
		if !ok {
			if err := db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, owner).Scan(&ownerID); err != nil {
				if err == sql.ErrNoRows {
					return fmt.Errorf("owner %q not found, import users first", owner)
				}
				return fmt.Errorf("resolve owner %q: %w", owner, err)
			}
			owners[owner] = ownerID
		}

		id, err := parseNullInt(valueAt(header, row, "id"))
		if err != nil {
			return fmt.Errorf("parse id for %q: %w", title, err)
		}

		createdAt, err := parseTimeOr(valueAt(header, row, "created_at"), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parse created_at for %q: %w", title, err)
		}

		if _, err := stmt.ExecContext(
			ctx,
			id,
			ownerID,
			title,
			author,
			books.Normalize(title),
			books.Normalize(author),
			valueAt(header, row, "notes"),
			parseFlag(valueAt(header, row, "reserved"), false),
			createdAt,
		); err != nil {
			return err
		}
	}

	return nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseNullInt(raw string) (sql.NullInt64, error) {
	if raw == "" {
		return sql.NullInt64{}, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: n, Valid: true}, nil
}

func parseTimeOr(raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseFlag reads a yes/no CSV cell, falling back to def when empty.
func parseFlag(raw string, def bool) int {
	v := def
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		v = true
	case "0", "false", "no":
		v = false
	}
	if v {
		return 1
	}
	return 0
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

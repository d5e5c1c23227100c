package database

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// Migrate brings the schema up to schemaVersion. Safe to call on every
// start; it is a no-op once the meta row is current.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migrate: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			verified INTEGER NOT NULL DEFAULT 0,
			token_version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			contact_email TEXT NOT NULL,
			alternate_contact TEXT NOT NULL DEFAULT '',
			about TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS user_locations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			area TEXT NOT NULL,
			UNIQUE(user_id, area)
		);`,
		`CREATE TABLE IF NOT EXISTS offered_books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			title_norm TEXT NOT NULL,
			author_norm TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			reserved INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			cover_path TEXT,
			cover_updated_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_offered_user_active ON offered_books(user_id, active);`,
		`CREATE INDEX IF NOT EXISTS idx_offered_title_norm ON offered_books(title_norm);`,
		`CREATE INDEX IF NOT EXISTS idx_offered_author_norm ON offered_books(author_norm);`,
		`CREATE TABLE IF NOT EXISTS wanted_books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL,
			title_norm TEXT NOT NULL DEFAULT '',
			author_norm TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS exchange_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			to_user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
			book_id INTEGER REFERENCES offered_books(id) ON DELETE SET NULL,
			book_title TEXT NOT NULL,
			book_author TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_from_created ON exchange_requests(from_user_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_from_book ON exchange_requests(from_user_id, book_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_to_created ON exchange_requests(to_user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key, value) VALUES('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

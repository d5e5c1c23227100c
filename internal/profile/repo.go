package profile

import (
	"context"
	"database/sql"
	"fmt"

	"giralibros/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Get returns the stored profile with its area set, or nil when the
// user never completed one.
func (r *Repo) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := r.DB.QueryRowContext(ctx, `
		SELECT p.user_id, u.first_name, p.contact_email, p.alternate_contact, p.about
		FROM profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = ?`,
		userID,
	).Scan(&p.UserID, &p.FirstName, &p.ContactEmail, &p.AlternateContact, &p.About)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	areas, err := r.Areas(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Areas = areas
	return &p, nil
}

// Areas returns the user's exchange areas; usable even before the
// profile row exists.
func (r *Repo) Areas(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT area FROM user_locations WHERE user_id = ? ORDER BY area`, userID)
	if err != nil {
		return nil, fmt.Errorf("get areas: %w", err)
	}
	defer rows.Close()

	areas := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get areas: %w", err)
	}
	return areas, nil
}

// Save upserts the contact fields, writes first_name onto the account,
// and replaces the whole area set, all in one transaction.
func (r *Repo) Save(ctx context.Context, p models.Profile) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save profile: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET first_name = ? WHERE id = ?`, p.FirstName, p.UserID)
	if err != nil {
		return fmt.Errorf("update first name: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update first name rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("save profile: user not found")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, contact_email, alternate_contact, about)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			contact_email = excluded.contact_email,
			alternate_contact = excluded.alternate_contact,
			about = excluded.about`,
		p.UserID, p.ContactEmail, p.AlternateContact, p.About)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	// replace the area set wholesale
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_locations WHERE user_id = ?`, p.UserID); err != nil {
		return fmt.Errorf("clear areas: %w", err)
	}
	for _, area := range p.Areas {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_locations (user_id, area) VALUES (?, ?)`, p.UserID, area); err != nil {
			return fmt.Errorf("insert area %s: %w", area, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save profile: %w", err)
	}
	return nil
}

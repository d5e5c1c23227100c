package profile

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"giralibros/pkg/database"
	"giralibros/pkg/models"
)

func tempRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepo(db)
}

func seedUser(t *testing.T, r *Repo, username string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := r.DB.Exec(`INSERT INTO users (id, username, email, password_hash, verified) VALUES (?, ?, ?, 'x', 1)`,
		id, username, username+"@example.com")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func TestSaveThenGetRoundTrip(t *testing.T) {
	r := tempRepo(t)
	ctx := context.Background()
	id := seedUser(t, r, "ana")

	p := models.Profile{
		UserID:           id,
		FirstName:        "Ana",
		ContactEmail:     "ana.canje@example.com",
		AlternateContact: "@ana_libros",
		About:            "Cambio novelas por poesía.",
		Areas:            []string{models.AreaCABA, models.AreaGBASur},
	}
	if err := r.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := r.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("profile missing after save")
	}
	if got.FirstName != "Ana" || got.ContactEmail != "ana.canje@example.com" || got.About != p.About {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !reflect.DeepEqual(got.Areas, []string{models.AreaCABA, models.AreaGBASur}) {
		t.Fatalf("areas = %v", got.Areas)
	}

	// first_name lands on the account row
	var first string
	if err := r.DB.QueryRow(`SELECT first_name FROM users WHERE id = ?`, id).Scan(&first); err != nil {
		t.Fatalf("read first_name: %v", err)
	}
	if first != "Ana" {
		t.Fatalf("users.first_name = %q", first)
	}
}

func TestSaveReplacesAreas(t *testing.T) {
	r := tempRepo(t)
	ctx := context.Background()
	id := seedUser(t, r, "ana")

	first := models.Profile{UserID: id, FirstName: "Ana", ContactEmail: "a@x.com",
		Areas: []string{models.AreaCABA, models.AreaGBANorte}}
	if err := r.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := first
	second.ContactEmail = "nueva@x.com"
	second.Areas = []string{models.AreaGBAOeste}
	if err := r.Save(ctx, second); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := r.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContactEmail != "nueva@x.com" {
		t.Fatalf("contact not updated: %q", got.ContactEmail)
	}
	if !reflect.DeepEqual(got.Areas, []string{models.AreaGBAOeste}) {
		t.Fatalf("areas not replaced: %v", got.Areas)
	}
}

func TestGetWithoutProfileIsNil(t *testing.T) {
	r := tempRepo(t)
	id := seedUser(t, r, "ana")

	got, err := r.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing profile, got %+v", got)
	}
}

func TestSaveUnknownUserFails(t *testing.T) {
	r := tempRepo(t)
	err := r.Save(context.Background(), models.Profile{
		UserID: "no-such-user", FirstName: "X", ContactEmail: "x@x.com",
		Areas: []string{models.AreaCABA},
	})
	if err == nil {
		t.Fatal("saving a profile for a missing user must fail")
	}
}

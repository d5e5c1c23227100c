package books

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

func addUser(t *testing.T, r *Repo, username string, areas ...string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := r.DB.Exec(`INSERT INTO users (id, username, email, password_hash, verified) VALUES (?, ?, ?, 'x', 1)`,
		id, username, username+"@example.com")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	for _, a := range areas {
		if _, err := r.DB.Exec(`INSERT INTO user_locations (user_id, area) VALUES (?, ?)`, id, a); err != nil {
			t.Fatalf("insert location: %v", err)
		}
	}
	return id
}

func addBook(t *testing.T, r *Repo, userID, title, author string) int64 {
	t.Helper()
	id, err := r.Create(context.Background(), models.OfferedBook{UserID: userID, Title: title, Author: author})
	if err != nil {
		t.Fatalf("create book %q: %v", title, err)
	}
	return id
}

func addWanted(t *testing.T, r *Repo, userID, title, author string) {
	t.Helper()
	if _, err := r.CreateWanted(context.Background(), models.WantedBook{UserID: userID, Title: title, Author: author}); err != nil {
		t.Fatalf("create wanted %q/%q: %v", title, author, err)
	}
}

func listingTitles(items []Listing) []string {
	out := make([]string, 0, len(items))
	for _, l := range items {
		out = append(out, l.Title)
	}
	return out
}

func sameTitleSet(got []Listing, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := map[string]int{}
	for _, l := range got {
		seen[l.Title]++
	}
	for _, w := range want {
		seen[w]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

func standardCatalog(t *testing.T, r *Repo) (owner, viewer string) {
	t.Helper()
	owner = addUser(t, r, "ana", models.AreaCABA)
	viewer = addUser(t, r, "bruno", models.AreaCABA)
	addBook(t, r, owner, "Rayuela", "Julio Cortázar")
	addBook(t, r, owner, "Ficciones", "Jorge Luis Borges")
	addBook(t, r, owner, "El Aleph", "Jorge Luis Borges")
	return owner, viewer
}

func TestSearchWordOrderInvariance(t *testing.T) {
	r := tempRepo(t)
	_, viewer := standardCatalog(t, r)

	a, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Search: "Rayuela Cortázar"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	b, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Search: "Cortázar Rayuela"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if !sameTitleSet(a, "Rayuela") || !sameTitleSet(b, "Rayuela") {
		t.Fatalf("want {Rayuela} for both orders, got %v and %v", listingTitles(a), listingTitles(b))
	}
}

func TestSearchAndAcrossWordsOrAcrossFields(t *testing.T) {
	r := tempRepo(t)
	_, viewer := standardCatalog(t, r)

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Search: "Ficciones Borges"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !sameTitleSet(got, "Ficciones") {
		t.Fatalf("want {Ficciones}, got %v", listingTitles(got))
	}

	got, _, err = r.List(context.Background(), ListingQuery{ViewerID: viewer, Search: "Ficciones Cortázar"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want no matches mixing title and wrong author, got %v", listingTitles(got))
	}
}

func TestSearchSubstringNotToken(t *testing.T) {
	r := tempRepo(t)
	_, viewer := standardCatalog(t, r)

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Search: "corta"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !sameTitleSet(got, "Rayuela") {
		t.Fatalf(`want "corta" to reach Cortázar, got %v`, listingTitles(got))
	}
}

func TestSearchEmptyAndGarbageMeanNoFilter(t *testing.T) {
	r := tempRepo(t)
	_, viewer := standardCatalog(t, r)

	for _, q := range []string{"", "   ", "¡¡¡...!!!"} {
		got, total, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Search: q})
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		if total != 3 || len(got) != 3 {
			t.Fatalf("query %q: want full catalog, got %v", q, listingTitles(got))
		}
	}
}

func TestWantedEmptyTitleIsAuthorWildcard(t *testing.T) {
	r := tempRepo(t)
	owner, viewer := standardCatalog(t, r)
	addBook(t, r, owner, "Bestiario", "Julio Cortázar")
	addWanted(t, r, viewer, "", "Julio Cortázar")

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Wanted: true})
	if err != nil {
		t.Fatalf("match wanted: %v", err)
	}
	if !sameTitleSet(got, "Rayuela", "Bestiario") {
		t.Fatalf("want every Cortázar book, got %v", listingTitles(got))
	}
}

func TestWantedRequiresAuthorAndTitle(t *testing.T) {
	r := tempRepo(t)
	_, viewer := standardCatalog(t, r)
	addWanted(t, r, viewer, "Ficciones", "Jorge Luis Borges")

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Wanted: true})
	if err != nil {
		t.Fatalf("match wanted: %v", err)
	}
	if !sameTitleSet(got, "Ficciones") {
		t.Fatalf("want only Ficciones (not El Aleph), got %v", listingTitles(got))
	}
}

func TestWantedUnionDeduplicates(t *testing.T) {
	r := tempRepo(t)
	_, viewer := standardCatalog(t, r)
	addWanted(t, r, viewer, "", "Cortázar")
	addWanted(t, r, viewer, "Rayuela", "Cortázar")

	got, total, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Wanted: true})
	if err != nil {
		t.Fatalf("match wanted: %v", err)
	}
	if total != 1 || !sameTitleSet(got, "Rayuela") {
		t.Fatalf("want Rayuela exactly once, got %v (total %d)", listingTitles(got), total)
	}
}

func TestWantedEmptyListMatchesNothing(t *testing.T) {
	r := tempRepo(t)
	_, viewer := standardCatalog(t, r)

	got, total, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Wanted: true})
	if err != nil {
		t.Fatalf("match wanted: %v", err)
	}
	if total != 0 || len(got) != 0 {
		t.Fatalf("empty wanted list must match nothing, got %v", listingTitles(got))
	}
}

func TestWantedScenarioCortazarAndFicciones(t *testing.T) {
	r := tempRepo(t)
	owner := addUser(t, r, "ana", models.AreaCABA)
	viewer := addUser(t, r, "bruno", models.AreaCABA)
	addBook(t, r, owner, "Rayuela", "Julio Cortázar")
	addBook(t, r, owner, "Ficciones", "Jorge Luis Borges")
	addBook(t, r, owner, "El Aleph", "Jorge Luis Borges")
	addWanted(t, r, viewer, "", "Cortázar")
	addWanted(t, r, viewer, "Ficciones", "Borges")

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer, Wanted: true})
	if err != nil {
		t.Fatalf("match wanted: %v", err)
	}
	if !sameTitleSet(got, "Rayuela", "Ficciones") {
		t.Fatalf("want exactly {Rayuela, Ficciones}, got %v", listingTitles(got))
	}
}

func TestListingExcludesOwnBooks(t *testing.T) {
	r := tempRepo(t)
	owner, _ := standardCatalog(t, r)

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: owner})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("owner must not see their own books, got %v", listingTitles(got))
	}
}

func TestListingExcludesRetiredBooks(t *testing.T) {
	r := tempRepo(t)
	owner, viewer := standardCatalog(t, r)

	books, err := r.ListByOwner(context.Background(), owner, true)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if _, err := r.SoftDelete(context.Background(), books[0].ID, owner); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 books after retiring one, got %v", listingTitles(got))
	}
}

func TestListingRequiresSharedArea(t *testing.T) {
	r := tempRepo(t)
	owner := addUser(t, r, "ana", models.AreaCABA)
	addBook(t, r, owner, "Rayuela", "Julio Cortázar")

	far := addUser(t, r, "carla", models.AreaGBASur)
	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: far})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("no shared area, want empty listing, got %v", listingTitles(got))
	}

	near := addUser(t, r, "diego", models.AreaGBASur, models.AreaCABA)
	got, _, err = r.List(context.Background(), ListingQuery{ViewerID: near})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !sameTitleSet(got, "Rayuela") {
		t.Fatalf("one shared area is enough, got %v", listingTitles(got))
	}
}

func TestListingOrdersByActivityThenID(t *testing.T) {
	r := tempRepo(t)
	owner := addUser(t, r, "ana", models.AreaCABA)
	viewer := addUser(t, r, "bruno", models.AreaCABA)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := addBook(t, r, owner, "Rayuela", "Julio Cortázar")
	second := addBook(t, r, owner, "Ficciones", "Jorge Luis Borges")
	third := addBook(t, r, owner, "El Aleph", "Jorge Luis Borges")

	setCreated := func(id int64, at time.Time) {
		t.Helper()
		if _, err := r.DB.Exec(`UPDATE offered_books SET created_at = ? WHERE id = ?`, at, id); err != nil {
			t.Fatalf("set created_at: %v", err)
		}
	}
	setCreated(first, base)
	setCreated(second, base.Add(1*time.Hour))
	setCreated(third, base.Add(1*time.Hour)) // tie with second

	got, _, err := r.List(context.Background(), ListingQuery{ViewerID: viewer})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"El Aleph", "Ficciones", "Rayuela"} // tie broken by id desc
	for i, title := range want {
		if got[i].Title != title {
			t.Fatalf("position %d: want %q, got %v", i, title, listingTitles(got))
		}
	}

	// a cover upload on the oldest book floats it to the top
	if _, err := r.SetCover(context.Background(), first, owner, "book-1.webp", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("set cover: %v", err)
	}
	got, _, err = r.List(context.Background(), ListingQuery{ViewerID: viewer})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].Title != "Rayuela" {
		t.Fatalf("cover update must define activity, got %v", listingTitles(got))
	}
}

func TestListingAnnotatesAlreadyRequested(t *testing.T) {
	r := tempRepo(t)
	owner, viewer := standardCatalog(t, r)

	books, err := r.ListByOwner(context.Background(), owner, true)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	rayuela := books[0]

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	_, err = r.DB.Exec(`
		INSERT INTO exchange_requests (from_user_id, to_user_id, book_id, book_title, book_author, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, viewer, owner, rayuela.ID, rayuela.Title, rayuela.Author, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("insert request: %v", err)
	}

	got, _, err := r.List(context.Background(), ListingQuery{
		ViewerID:       viewer,
		RequestedSince: now.Add(-15 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, l := range got {
		want := l.ID == rayuela.ID
		if l.AlreadyRequested != want {
			t.Fatalf("book %q: already_requested = %v, want %v", l.Title, l.AlreadyRequested, want)
		}
	}

	// outside the live window the flag drops
	got, _, err = r.List(context.Background(), ListingQuery{
		ViewerID:       viewer,
		RequestedSince: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, l := range got {
		if l.AlreadyRequested {
			t.Fatalf("book %q: stale request still annotated", l.Title)
		}
	}
}

func TestUpdateRecomputesNormalizedColumns(t *testing.T) {
	r := tempRepo(t)
	owner := addUser(t, r, "ana", models.AreaCABA)
	id := addBook(t, r, owner, "Rayuela", "Julio Cortázar")

	ok, err := r.Update(context.Background(), id, owner, "100 años de soledad", "Gabriel García Márquez", "")
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}

	b, err := r.GetByID(context.Background(), id)
	if err != nil || b == nil {
		t.Fatalf("get: %v", err)
	}
	if b.TitleNorm != "cien años de soledad" {
		t.Fatalf("title_norm = %q", b.TitleNorm)
	}
	if b.AuthorNorm != "gabriel garcia marquez" {
		t.Fatalf("author_norm = %q", b.AuthorNorm)
	}
}

func TestUpdateRejectsForeignBook(t *testing.T) {
	r := tempRepo(t)
	owner := addUser(t, r, "ana", models.AreaCABA)
	other := addUser(t, r, "bruno", models.AreaCABA)
	id := addBook(t, r, owner, "Rayuela", "Julio Cortázar")

	ok, err := r.Update(context.Background(), id, other, "X", "Y", "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatalf("update must not touch another user's book")
	}
}

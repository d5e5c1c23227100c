package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"giralibros/internal/books"
)

const defaultBaseURL = "http://localhost:8080"

type tokenData struct {
	Token string `json:"token"`
}

type authResponse struct {
	Token string `json:"token"`
}

type listResponse struct {
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
	Items  []books.Listing `json:"items"`
}

func main() {
	global := flag.NewFlagSet("giralibros", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "API base URL")
	tokenPath := global.String("token", defaultTokenPath(), "token file path")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := args[0]
	sub := ""
	if len(args) > 1 {
		sub = args[1]
	}

	client := &http.Client{Timeout: 15 * time.Second}

	switch cmd {
	case "auth":
		handleAuth(ctx, client, *baseURL, *tokenPath, sub, args[2:])
	case "books":
		handleBooks(ctx, client, *baseURL, *tokenPath, sub, args[2:])
	case "wanted":
		handleWanted(ctx, client, *baseURL, *tokenPath, sub, args[2:])
	case "exchange":
		handleExchange(ctx, client, *baseURL, *tokenPath, sub, args[2:])
	case "profile":
		handleProfile(ctx, client, *baseURL, *tokenPath, sub, args[2:])
	case "live":
		handleLive(*baseURL, sub, args[2:])
	case "export":
		handleExport(ctx, client, *baseURL, *tokenPath, sub, args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	switch sub {
	case "register":
		fs := flag.NewFlagSet("auth register", flag.ExitOnError)
		username := fs.String("username", "", "username")
		email := fs.String("email", "", "email address")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *username == "" || *email == "" || *password == "" {
			log.Fatal("username, email, and password are required")
		}

		payload := map[string]string{"username": *username, "email": *email, "password": *password}
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPost, baseURL+"/auth/register", "", payload, &resp); err != nil {
			log.Fatalf("register failed: %v", err)
		}
		fmt.Println("✅ registered, check your inbox for the verification link")
	case "login":
		fs := flag.NewFlagSet("auth login", flag.ExitOnError)
		login := fs.String("login", "", "username or email")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *login == "" || *password == "" {
			log.Fatal("login and password are required")
		}

		payload := map[string]string{"login": *login, "password": *password}
		var resp authResponse
		if err := doJSON(ctx, client, http.MethodPost, baseURL+"/auth/login", "", payload, &resp); err != nil {
			log.Fatalf("login failed: %v", err)
		}
		if err := saveToken(tokenPath, resp.Token); err != nil {
			log.Fatalf("save token: %v", err)
		}
		fmt.Println("✅ logged in")
	case "verify":
		fs := flag.NewFlagSet("auth verify", flag.ExitOnError)
		verifyTok := fs.String("token", "", "verification token from the mail link")
		_ = fs.Parse(args)
		if *verifyTok == "" {
			log.Fatal("verification token is required")
		}

		u, err := url.Parse(baseURL + "/auth/verify")
		if err != nil {
			log.Fatalf("invalid base url: %v", err)
		}
		qv := u.Query()
		qv.Set("token", *verifyTok)
		u.RawQuery = qv.Encode()

		var resp authResponse
		if err := doJSON(ctx, client, http.MethodGet, u.String(), "", nil, &resp); err != nil {
			log.Fatalf("verify failed: %v", err)
		}
		if err := saveToken(tokenPath, resp.Token); err != nil {
			log.Fatalf("save token: %v", err)
		}
		fmt.Println("✅ account verified and logged in")
	case "logout":
		// Invalidate the session server-side first so the token stops
		// working everywhere, then drop the local copy.
		if token, err := readToken(tokenPath); err == nil && token != "" {
			var resp map[string]any
			if err := doJSON(ctx, client, http.MethodPost, baseURL+"/auth/logout", token, nil, &resp); err != nil {
				log.Printf("server logout: %v", err)
			}
		}
		if err := clearToken(tokenPath); err != nil {
			log.Fatalf("logout failed: %v", err)
		}
		fmt.Println("✅ logged out")
	default:
		log.Fatal("usage: giralibros auth <register|login|verify|logout>")
	}
}

func handleBooks(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)
	switch sub {
	case "list":
		fs := flag.NewFlagSet("books list", flag.ExitOnError)
		query := fs.String("q", "", "search words (matched against title and author)")
		wanted := fs.Bool("wanted", false, "only books matching my wanted list")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		u, err := url.Parse(baseURL + "/books")
		if err != nil {
			log.Fatalf("invalid base url: %v", err)
		}
		qv := u.Query()
		if *query != "" {
			qv.Set("q", *query)
		}
		if *wanted {
			qv.Set("match", "wanted")
		}
		qv.Set("limit", fmt.Sprintf("%d", *limit))
		qv.Set("offset", fmt.Sprintf("%d", *offset))
		u.RawQuery = qv.Encode()

		var resp listResponse
		if err := doJSON(ctx, client, http.MethodGet, u.String(), token, nil, &resp); err != nil {
			log.Fatalf("list failed: %v", err)
		}
		printJSON(resp)
	case "show":
		fs := flag.NewFlagSet("books show", flag.ExitOnError)
		id := fs.Int64("id", 0, "book id")
		_ = fs.Parse(args)
		if *id <= 0 {
			log.Fatal("book id is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, fmt.Sprintf("%s/books/%d", baseURL, *id), token, nil, &resp); err != nil {
			log.Fatalf("show failed: %v", err)
		}
		printJSON(resp)
	case "mine":
		fs := flag.NewFlagSet("books mine", flag.ExitOnError)
		all := fs.Bool("all", false, "include traded and removed copies")
		_ = fs.Parse(args)

		u, err := url.Parse(baseURL + "/my/books")
		if err != nil {
			log.Fatalf("invalid base url: %v", err)
		}
		if *all {
			qv := u.Query()
			qv.Set("all", "true")
			u.RawQuery = qv.Encode()
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, u.String(), token, nil, &resp); err != nil {
			log.Fatalf("mine failed: %v", err)
		}
		printJSON(resp)
	case "add":
		fs := flag.NewFlagSet("books add", flag.ExitOnError)
		title := fs.String("title", "", "book title")
		author := fs.String("author", "", "book author")
		notes := fs.String("notes", "", "condition or edition notes")
		_ = fs.Parse(args)
		if *title == "" || *author == "" {
			log.Fatal("title and author are required")
		}

		payload := map[string]string{"title": *title, "author": *author, "notes": *notes}
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPost, baseURL+"/my/books", token, payload, &resp); err != nil {
			log.Fatalf("add failed: %v", err)
		}
		printJSON(resp)
	case "update":
		fs := flag.NewFlagSet("books update", flag.ExitOnError)
		id := fs.Int64("id", 0, "book id")
		title := fs.String("title", "", "book title")
		author := fs.String("author", "", "book author")
		notes := fs.String("notes", "", "condition or edition notes")
		_ = fs.Parse(args)
		if *id <= 0 {
			log.Fatal("book id is required")
		}
		if *title == "" || *author == "" {
			log.Fatal("title and author are required")
		}

		payload := map[string]string{"title": *title, "author": *author, "notes": *notes}
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPut, fmt.Sprintf("%s/my/books/%d", baseURL, *id), token, payload, &resp); err != nil {
			log.Fatalf("update failed: %v", err)
		}
		printJSON(resp)
	case "remove":
		bookAction(ctx, client, baseURL, token, args, http.MethodDelete, "%s/my/books/%d", "remove")
	case "trade":
		bookAction(ctx, client, baseURL, token, args, http.MethodPost, "%s/my/books/%d/trade", "trade")
	case "reserve":
		bookAction(ctx, client, baseURL, token, args, http.MethodPost, "%s/my/books/%d/reserve", "reserve")
	case "unreserve":
		bookAction(ctx, client, baseURL, token, args, http.MethodPost, "%s/my/books/%d/unreserve", "unreserve")
	default:
		log.Fatal("usage: giralibros books <list|show|mine|add|update|remove|trade|reserve|unreserve>")
	}
}

// bookAction covers the id-only book subcommands that differ only in
// method and path.
func bookAction(ctx context.Context, client *http.Client, baseURL, token string, args []string, method, pathFmt, name string) {
	fs := flag.NewFlagSet("books "+name, flag.ExitOnError)
	id := fs.Int64("id", 0, "book id")
	_ = fs.Parse(args)
	if *id <= 0 {
		log.Fatal("book id is required")
	}

	var resp map[string]any
	if err := doJSON(ctx, client, method, fmt.Sprintf(pathFmt, baseURL, *id), token, nil, &resp); err != nil {
		log.Fatalf("%s failed: %v", name, err)
	}
	printJSON(resp)
}

func handleWanted(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)
	switch sub {
	case "list":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, baseURL+"/my/wanted", token, nil, &resp); err != nil {
			log.Fatalf("list failed: %v", err)
		}
		printJSON(resp)
	case "add":
		fs := flag.NewFlagSet("wanted add", flag.ExitOnError)
		title := fs.String("title", "", "title (empty matches any book by the author)")
		author := fs.String("author", "", "author")
		_ = fs.Parse(args)
		if *author == "" {
			log.Fatal("author is required")
		}

		payload := map[string]string{"title": *title, "author": *author}
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPost, baseURL+"/my/wanted", token, payload, &resp); err != nil {
			log.Fatalf("add failed: %v", err)
		}
		printJSON(resp)
	case "remove":
		fs := flag.NewFlagSet("wanted remove", flag.ExitOnError)
		id := fs.Int64("id", 0, "wanted entry id")
		_ = fs.Parse(args)
		if *id <= 0 {
			log.Fatal("wanted entry id is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodDelete, fmt.Sprintf("%s/my/wanted/%d", baseURL, *id), token, nil, &resp); err != nil {
			log.Fatalf("remove failed: %v", err)
		}
		printJSON(resp)
	default:
		log.Fatal("usage: giralibros wanted <list|add|remove>")
	}
}

func handleExchange(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)
	switch sub {
	case "request":
		fs := flag.NewFlagSet("exchange request", flag.ExitOnError)
		bookID := fs.Int64("book-id", 0, "book id to request")
		_ = fs.Parse(args)
		if *bookID <= 0 {
			log.Fatal("book-id is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPost, fmt.Sprintf("%s/books/%d/request", baseURL, *bookID), token, nil, &resp); err != nil {
			log.Fatalf("request failed: %v", err)
		}
		printJSON(resp)
	case "sent":
		exchangeHistory(ctx, client, baseURL+"/my/requests", token, args)
	case "received":
		exchangeHistory(ctx, client, baseURL+"/my/requests/received", token, args)
	default:
		log.Fatal("usage: giralibros exchange <request|sent|received>")
	}
}

func exchangeHistory(ctx context.Context, client *http.Client, endpoint, token string, args []string) {
	fs := flag.NewFlagSet("exchange history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "page size")
	offset := fs.Int("offset", 0, "offset")
	_ = fs.Parse(args)

	u, err := url.Parse(endpoint)
	if err != nil {
		log.Fatalf("invalid base url: %v", err)
	}
	qv := u.Query()
	qv.Set("limit", fmt.Sprintf("%d", *limit))
	qv.Set("offset", fmt.Sprintf("%d", *offset))
	u.RawQuery = qv.Encode()

	var resp map[string]any
	if err := doJSON(ctx, client, http.MethodGet, u.String(), token, nil, &resp); err != nil {
		log.Fatalf("history failed: %v", err)
	}
	printJSON(resp)
}

func handleProfile(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)
	switch sub {
	case "show":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, baseURL+"/profile", token, nil, &resp); err != nil {
			log.Fatalf("show failed: %v", err)
		}
		printJSON(resp)
	case "set":
		fs := flag.NewFlagSet("profile set", flag.ExitOnError)
		firstName := fs.String("first-name", "", "first name shown to other users")
		contactEmail := fs.String("contact-email", "", "email shared with exchange partners")
		altContact := fs.String("alt-contact", "", "alternate contact (phone, telegram, etc.)")
		about := fs.String("about", "", "short presentation")
		areas := fs.String("areas", "", "comma-separated exchange areas")
		_ = fs.Parse(args)

		if *firstName == "" || *contactEmail == "" || *areas == "" {
			log.Fatal("first-name, contact-email, and areas are required")
		}

		payload := map[string]any{
			"first_name":        *firstName,
			"contact_email":     *contactEmail,
			"alternate_contact": *altContact,
			"about":             *about,
			"areas":             splitList(*areas),
		}
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodPut, baseURL+"/profile", token, payload, &resp); err != nil {
			log.Fatalf("set failed: %v", err)
		}
		printJSON(resp)
	case "view":
		fs := flag.NewFlagSet("profile view", flag.ExitOnError)
		username := fs.String("username", "", "username to look up")
		_ = fs.Parse(args)
		if *username == "" {
			log.Fatal("username is required")
		}

		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, baseURL+"/users/"+url.PathEscape(*username), token, nil, &resp); err != nil {
			log.Fatalf("view failed: %v", err)
		}
		printJSON(resp)
	default:
		log.Fatal("usage: giralibros profile <show|set|view>")
	}
}

func handleLive(baseURL, sub string, args []string) {
	switch sub {
	case "listen":
		fs := flag.NewFlagSet("live listen", flag.ExitOnError)
		addr := fs.String("addr", "127.0.0.1:7070", "TCP live feed address")
		pretty := fs.Bool("pretty", true, "pretty print JSON events")
		_ = fs.Parse(args)
		for {
			if err := runFeedTCP(*addr, *pretty); err != nil {
				log.Printf("[live] disconnected: %v", err)
			}
			time.Sleep(1 * time.Second)
		}
	case "subscribe":
		fs := flag.NewFlagSet("live subscribe", flag.ExitOnError)
		wsURL := fs.String("ws", "", "WebSocket URL (defaults to /ws on API host)")
		_ = fs.Parse(args)

		endpoint := *wsURL
		if endpoint == "" {
			var err error
			endpoint, err = websocketURL(baseURL, "/ws")
			if err != nil {
				log.Fatalf("ws url: %v", err)
			}
		}
		if err := runWebSocket(endpoint); err != nil {
			log.Fatalf("subscribe failed: %v", err)
		}
	default:
		log.Fatal("usage: giralibros live <listen|subscribe>")
	}
}

func handleExport(ctx context.Context, client *http.Client, baseURL, tokenPath, sub string, args []string) {
	token := mustToken(tokenPath)
	switch sub {
	case "json":
		fs := flag.NewFlagSet("export json", flag.ExitOnError)
		out := fs.String("out", "data/books.json", "output JSON path")
		limit := fs.Int("limit", 200, "max listings to export")
		_ = fs.Parse(args)

		items, err := fetchListings(ctx, client, baseURL, token, *limit)
		if err != nil {
			log.Fatalf("export json failed: %v", err)
		}
		if err := writeJSON(*out, items); err != nil {
			log.Fatalf("write json failed: %v", err)
		}
		log.Printf("✅ exported %d listings to %s", len(items), *out)
	case "csv":
		fs := flag.NewFlagSet("export csv", flag.ExitOnError)
		out := fs.String("out", "data/books.csv", "output CSV path")
		limit := fs.Int("limit", 200, "max listings to export")
		_ = fs.Parse(args)

		items, err := fetchListings(ctx, client, baseURL, token, *limit)
		if err != nil {
			log.Fatalf("export csv failed: %v", err)
		}
		if err := writeCSV(*out, items); err != nil {
			log.Fatalf("write csv failed: %v", err)
		}
		log.Printf("✅ exported %d listings to %s", len(items), *out)
	default:
		log.Fatal("usage: giralibros export <json|csv>")
	}
}

func runFeedTCP(addr string, pretty bool) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Printf("[live] connected to %s", addr)
	reader := bufio.NewScanner(conn)
	for reader.Scan() {
		line := reader.Bytes()
		if !pretty {
			fmt.Println(string(line))
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			fmt.Println(string(line))
			continue
		}
		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Println(string(b))
	}
	if err := reader.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}

func runWebSocket(wsURL string) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[live] connected to %s", wsURL)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(string(msg))
	}
}

func fetchListings(ctx context.Context, client *http.Client, baseURL, token string, limit int) ([]books.Listing, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	var out []books.Listing
	offset := 0
	for len(out) < limit {
		pageSize := 50
		if remaining := limit - len(out); remaining < pageSize {
			pageSize = remaining
		}
		u, err := url.Parse(baseURL + "/books")
		if err != nil {
			return nil, err
		}
		qv := u.Query()
		qv.Set("limit", fmt.Sprintf("%d", pageSize))
		qv.Set("offset", fmt.Sprintf("%d", offset))
		u.RawQuery = qv.Encode()

		var resp listResponse
		if err := doJSON(ctx, client, http.MethodGet, u.String(), token, nil, &resp); err != nil {
			return nil, err
		}
		if len(resp.Items) == 0 {
			break
		}
		out = append(out, resp.Items...)
		offset += len(resp.Items)
		if offset >= resp.Total {
			break
		}
	}

	return out, nil
}

func writeJSON(path string, items []books.Listing) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV(path string, items []books.Listing) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"id", "title", "author", "owner", "notes", "reserved", "created_at",
	}); err != nil {
		return err
	}
	for _, item := range items {
		reserved := "no"
		if item.Reserved {
			reserved = "yes"
		}
		if err := writer.Write([]string{
			fmt.Sprintf("%d", item.ID),
			item.Title,
			item.Author,
			item.OwnerUsername,
			item.Notes,
			reserved,
			item.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func doJSON(ctx context.Context, client *http.Client, method, endpoint, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return err
	}
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("json: %v", err)
	}
	fmt.Println(string(b))
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

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.giralibros-token.json"
	}
	return filepath.Join(home, ".giralibros", "token.json")
}

func saveToken(path, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	return strings.TrimSpace(td.Token), nil
}

func mustToken(path string) string {
	token, err := readToken(path)
	if err != nil {
		log.Fatalf("token not found, please login: %v", err)
	}
	if token == "" {
		log.Fatal("token empty, please login")
	}
	return token
}

func clearToken(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   path,
	}).String(), nil
}

func printUsage() {
	fmt.Println("giralibros <command> [subcommand] [flags]")
	fmt.Println("commands:")
	fmt.Println("  auth register|login|verify|logout")
	fmt.Println("  books list|show|mine|add|update|remove|trade|reserve|unreserve")
	fmt.Println("  wanted list|add|remove")
	fmt.Println("  exchange request|sent|received")
	fmt.Println("  profile show|set|view")
	fmt.Println("  live listen|subscribe")
	fmt.Println("  export json|csv")
}

package utils

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv pulls a local .env into the process environment. A missing
// file is fine; deployed instances carry real env vars.
func LoadEnv() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env file")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

func LoadAuthConfig() AuthConfig {
	return AuthConfig{
		// dev default (change for demo / production)
		JWTSecret:   envOr("GIRALIBROS_JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:   envOr("GIRALIBROS_JWT_ISSUER", "giralibros"),
		JWTDuration: time.Duration(envIntOr("GIRALIBROS_JWT_TTL_HOURS", 24)) * time.Hour,
	}
}

type ExchangeConfig struct {
	ExpiryWindowDays int
	DailyLimit       int
}

func LoadExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		ExpiryWindowDays: envIntOr("GIRALIBROS_EXPIRY_DAYS", 15),
		DailyLimit:       envIntOr("GIRALIBROS_DAILY_LIMIT", 25),
	}
}

type MailConfig struct {
	SMTPAddr string // host:port; empty selects the log-only mailer
	SMTPUser string
	SMTPPass string
	From     string
	BaseURL  string // public base URL used in verification links
}

func LoadMailConfig() MailConfig {
	return MailConfig{
		SMTPAddr: os.Getenv("GIRALIBROS_SMTP_ADDR"),
		SMTPUser: os.Getenv("GIRALIBROS_SMTP_USER"),
		SMTPPass: os.Getenv("GIRALIBROS_SMTP_PASS"),
		From:     envOr("GIRALIBROS_SMTP_FROM", "noreply@giralibros.com"),
		BaseURL:  envOr("GIRALIBROS_BASE_URL", "http://localhost:8080"),
	}
}

func LoadCoverDir() string {
	if p := os.Getenv("GIRALIBROS_COVER_DIR"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".giralibros", "covers")
}

type ServerConfig struct {
	HTTPAddr string
	LiveAddr string // TCP feed for the live event stream
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr: ":" + envOr("PORT", "8080"),
		LiveAddr: envOr("GIRALIBROS_LIVE_ADDR", ":7070"),
	}
}

// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	Env        string

	// DB
	DatabaseURL string

	// Auth
	JWTSecret string

	// Replicate (image generation)
	ReplicateAPIToken string

	// GitHub (durable image storage)
	GitHubToken  string
	GitHubRepo   string // "owner/name"
	GitHubBranch string

	// SMTP (verification mail; disabled when SMTP_HOST is empty)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPFromName string

	// HTTP
	AppBaseURL      string // external base URL, used in email links
	AllowedOrigins  string
	RateLimitPerMin int
	StaticDir       string // pre-built SPA bundle; empty disables static serving
}

func Load() *Config {
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Load() // optional .env for local
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		log.Fatalf("❌ Invalid SMTP_PORT: %v", err)
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MIN", "60"))
	if err != nil {
		log.Fatalf("❌ Invalid RATE_LIMIT_PER_MIN: %v", err)
	}

	cfg := &Config{
		ServerPort: getEnv("PORT", "8080"),
		Env:        getEnv("ENV", "development"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		ReplicateAPIToken: os.Getenv("REPLICATE_API_TOKEN"),

		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		GitHubRepo:   os.Getenv("GITHUB_REPO"),
		GitHubBranch: getEnv("GITHUB_BRANCH", "main"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "DaVeenci AI"),

		AppBaseURL:      getEnv("APP_BASE_URL", "http://localhost:8080"),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		RateLimitPerMin: rateLimit,
		StaticDir:       os.Getenv("STATIC_DIR"),
	}

	for key, value := range map[string]string{
		"DATABASE_URL":        cfg.DatabaseURL,
		"JWT_SECRET":          cfg.JWTSecret,
		"REPLICATE_API_TOKEN": cfg.ReplicateAPIToken,
		"GITHUB_TOKEN":        cfg.GitHubToken,
		"GITHUB_REPO":         cfg.GitHubRepo,
	} {
		if value == "" {
			log.Fatalf("❌ Missing required env var: %s", key)
		}
	}
	if !strings.Contains(cfg.GitHubRepo, "/") {
		log.Fatalf("❌ GITHUB_REPO must be in owner/name form, got %q", cfg.GitHubRepo)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	MigrationsDir string
	CORSOrigin    string
	MeiliURL      string
	MeiliAPIKey   string
	// Draft generation collaborator
	ComposeURL    string
	ComposeAPIKey string
	ComposeModel  string
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	// Redis Configuration
	RedisURL string
}

// Load reads configuration from the environment. The JWT secret and database
// URL carry no default: a deployment that omits them must fail at startup
// rather than run with a guessable secret.
func Load() (Config, error) {
	cfg := Config{
		Addr:          getenv("API_ADDR", ":8790"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("LEADDESK_JWT_SECRET"),
		AccessTTL:     time.Duration(getenvInt("LEADDESK_ACCESS_TTL_SECONDS", 3600)) * time.Second,
		RefreshTTL:    time.Duration(getenvInt("LEADDESK_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		MigrationsDir: getenv("LEADDESK_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:    getenv("LEADDESK_CORS_ORIGIN", "*"),
		MeiliURL:      getenv("MEILI_URL", ""),
		MeiliAPIKey:   getenv("MEILI_MASTER_KEY", ""),
		ComposeURL:    getenv("COMPOSE_API_URL", ""),
		ComposeAPIKey: getenv("COMPOSE_API_KEY", ""),
		ComposeModel:  getenv("COMPOSE_MODEL", "grok-3"),
		// SMTP - empty by default, campaign delivery disabled if not configured
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "LeadDesk"),
		RedisURL:     getenv("REDIS_URL", ""),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("LEADDESK_JWT_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

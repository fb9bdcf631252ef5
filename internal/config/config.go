package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LLMConfig holds the connection settings for the chat/embedding backend.
type LLMConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
}

// ChatConfig holds the feature flags for the chat answering core. Loaded once
// at startup; handlers never re-read the environment.
type ChatConfig struct {
	Enabled                bool
	LLMFallbackEnabled     bool
	HybridEnabled          bool
	RouterEmbeddings       bool
	RouterLLMTiebreaker    bool
	EmbeddingsModel        string
	LowConfidenceThreshold float64
}

// RAGConfig holds the document retriever settings.
type RAGConfig struct {
	Store           string
	PersistDir      string
	TopK            int
	MaxContextChars int
}

// AlertConfig holds the daily stockout alert settings.
type AlertConfig struct {
	CronToken     string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	EmailFrom     string
	EmailTo       []string
	WebhookURL    string
	SigningSecret string
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	ListenAddr     string
	DatabaseURL    string
	RedisURL       string
	SecretKey      string
	JWTSecret      string
	AccessMinutes  int
	RefreshDays    int
	AllowedOrigins []string
	TZ             *time.Location
	LogDir         string

	LLM    LLMConfig
	Chat   ChatConfig
	RAG    RAGConfig
	Alerts AlertConfig
}

// Load loads the configuration from a .env file and environment variables.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	tzName := getEnv("APP_TZ", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TZ %q: %w", tzName, err)
	}

	timeoutSecs := getEnvInt("LMSTUDIO_TIMEOUT", 60)
	if timeoutSecs < 1 {
		timeoutSecs = 60
	}

	cfg := &AppConfig{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		SecretKey:      getEnv("SECRET_KEY", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AccessMinutes:  getEnvInt("ACCESS_MINUTES", 30),
		RefreshDays:    getEnvInt("REFRESH_DAYS", 7),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
		TZ:             loc,
		LogDir:         getEnv("LOGS_FOLDER", "logs"),
		LLM: LLMConfig{
			BaseURL:    getEnv("LMSTUDIO_BASE_URL", "http://localhost:1234"),
			ChatModel:  getEnv("LMSTUDIO_CHAT_MODEL", ""),
			EmbedModel: getEnv("LMSTUDIO_EMBED_MODEL", ""),
			Timeout:    time.Duration(timeoutSecs) * time.Second,
		},
		Chat: ChatConfig{
			Enabled:                getEnvBool("CHAT_ENABLED", true),
			LLMFallbackEnabled:     getEnvBool("CHAT_LLM_FALLBACK_ENABLED", true),
			HybridEnabled:          getEnvBool("HYBRID_CHAT_ENABLED", false),
			RouterEmbeddings:       getEnvBool("HYBRID_ROUTER_EMBEDDINGS_ENABLED", true),
			RouterLLMTiebreaker:    getEnvBool("HYBRID_ROUTER_LLM_TIEBREAKER_ENABLED", false),
			EmbeddingsModel:        getEnv("EMBEDDINGS_MODEL", ""),
			LowConfidenceThreshold: 0.55,
		},
		RAG: RAGConfig{
			Store:           getEnv("RAG_STORE", "none"),
			PersistDir:      getEnv("RAG_PERSIST_DIR", ""),
			TopK:            getEnvInt("RAG_TOP_K", 5),
			MaxContextChars: getEnvInt("RAG_MAX_CONTEXT_CHARS", 6000),
		},
		Alerts: AlertConfig{
			CronToken:     getEnv("ALERT_CRON_TOKEN", ""),
			SMTPHost:      getEnv("SMTP_HOST", ""),
			SMTPPort:      getEnvInt("SMTP_PORT", 587),
			SMTPUser:      getEnv("SMTP_USER", ""),
			SMTPPass:      getEnv("SMTP_PASS", ""),
			EmailFrom:     getEnv("ALERT_EMAIL_FROM", ""),
			EmailTo:       splitCSV(getEnv("ALERT_EMAIL_TO", "")),
			WebhookURL:    getEnv("ALERT_WEBHOOK_URL", ""),
			SigningSecret: getEnv("ALERT_SIGNING_SECRET", ""),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

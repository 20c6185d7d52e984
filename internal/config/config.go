package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	GeminiAPIKey string

	ListenAddr string
	PublicURL  string
	LogLevel   string

	PreferIPv4 bool

	DataDir      string
	DatabasePath string
	AssetsDir    string

	GeminiBaseURL    string
	GeminiAPIVersion string
	DescribeModel    string
	ImageModel       string

	RequestTimeout time.Duration
	CallTimeout    time.Duration
	HTTPTimeout    time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
	RatePerSecond  float64

	DescribeCacheTTL time.Duration
	GeneratedTTL     time.Duration

	TokenSecret string
	TokenTTL    time.Duration

	MaxUploadBytes int64

	PrimaryEmail string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	StylistField string

	TelegramToken     string
	TelegramOpsChatID int64
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr: strings.TrimSpace(getEnv("LISTEN_ADDR", ":8080")),
		PublicURL:  strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_URL", "http://localhost:8080")), "/"),
		LogLevel:   strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),

		PreferIPv4: getEnvBool("PREFER_IPV4", true),

		DataDir:      strings.TrimSpace(getEnv("DATA_DIR", "data")),
		DatabasePath: strings.TrimSpace(os.Getenv("DATABASE_PATH")),
		AssetsDir:    strings.TrimSpace(os.Getenv("ASSETS_DIR")),

		GeminiBaseURL:    strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion: strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		DescribeModel:    strings.TrimSpace(getEnv("DESCRIBE_MODEL", "gemini-1.5-flash")),
		ImageModel:       strings.TrimSpace(getEnv("IMAGE_MODEL", "imagen-3.0-generate-002")),

		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		CallTimeout:    time.Duration(getEnvInt("CALL_TIMEOUT_SECONDS", 60)) * time.Second,
		HTTPTimeout:    time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 90)) * time.Second,
		RetryAttempts:  getEnvInt("RETRY_ATTEMPTS", 3),
		RetryBackoff:   time.Duration(getEnvInt("RETRY_BACKOFF_SECONDS", 2)) * time.Second,
		RatePerSecond:  getEnvFloat("API_RATE_LIMIT", 8),

		DescribeCacheTTL: time.Duration(getEnvInt("DESCRIBE_CACHE_TTL_SECONDS", 600)) * time.Second,
		GeneratedTTL:     time.Duration(getEnvInt("GENERATED_TTL_SECONDS", 3600)) * time.Second,

		TokenSecret: strings.TrimSpace(os.Getenv("TOKEN_SECRET")),
		TokenTTL:    time.Duration(getEnvInt("TOKEN_TTL_SECONDS", 1800)) * time.Second,

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,

		PrimaryEmail: strings.TrimSpace(os.Getenv("PRIMARY_EMAIL")),
		SMTPHost:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     strings.TrimSpace(os.Getenv("SMTP_USER")),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     strings.TrimSpace(getEnv("SMTP_FROM", "no-reply@localhost")),

		StylistField: strings.TrimSpace(getEnv("STYLIST_FIELD", "stylist")),

		TelegramToken:     strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramOpsChatID: getEnvInt64("TELEGRAM_OPS_CHAT_ID", 0),
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "tryon.db")
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 90 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string
	SQLitePath  string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// LLMProvider selects the responder: "placeholder" or "openai".
	// The openai responder also serves ollama-compatible endpoints via
	// OpenAIBaseURL.
	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	MemoryContextLimit int
	ChatHistoryLimit   int
}

// Load reads environment variables and applies safe defaults. A .env file in
// the working directory is folded in first when present.
func Load() (Config, error) {
	// Missing .env is the normal case outside local dev.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "meggy"),
		AllowAnyOrigin:     false,
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		SQLitePath:         stringsTrimSpace("SQLITE_PATH"),
		JWTSecret:          stringsTrimSpace("JWT_SECRET"),
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		LLMProvider:        envOrDefault("LLM_PROVIDER", "placeholder"),
		OpenAIAPIKey:       stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:      stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:        stringsTrimSpace("OPENAI_MODEL"),
		MemoryContextLimit: 10,
		ChatHistoryLimit:   20,
		ShutdownTimeout:    15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessTTL, err = durationFromEnv("JWT_ACCESS_TTL", cfg.AccessTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.RefreshTTL, err = durationFromEnv("JWT_REFRESH_TTL", cfg.RefreshTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryContextLimit, err = intFromEnv("MEMORY_CONTEXT_LIMIT", cfg.MemoryContextLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatHistoryLimit, err = intFromEnv("CHAT_HISTORY_LIMIT", cfg.ChatHistoryLimit)
	if err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.AccessTTL <= 0 {
		return Config{}, fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return Config{}, fmt.Errorf("JWT_REFRESH_TTL must exceed JWT_ACCESS_TTL")
	}
	if cfg.MemoryContextLimit <= 0 {
		return Config{}, fmt.Errorf("MEMORY_CONTEXT_LIMIT must be positive")
	}
	if cfg.ChatHistoryLimit <= 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_LIMIT must be positive")
	}
	switch cfg.LLMProvider {
	case "placeholder", "openai":
	default:
		return Config{}, fmt.Errorf("LLM_PROVIDER must be placeholder or openai")
	}
	if cfg.LLMProvider == "openai" && cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
		return Config{}, fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY or OPENAI_BASE_URL")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

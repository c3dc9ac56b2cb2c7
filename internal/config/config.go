package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	// MaxMessages caps the per-conversation memory window.
	MaxMessages int

	OllamaBaseURL     string
	ChatModel         string
	VisionModel       string
	EmbedModel        string
	ModelTimeout      time.Duration
	RetrievalTopK     int
	RetrievalEmbedDim int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "vibemate"),
		AllowAnyOrigin:    false,
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		MaxMessages:       20,
		OllamaBaseURL:     envOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		ChatModel:         envOrDefault("OLLAMA_CHAT_MODEL", "llama3.2"),
		VisionModel:       envOrDefault("OLLAMA_VISION_MODEL", "llava"),
		EmbedModel:        envOrDefault("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		ModelTimeout:      120 * time.Second,
		RetrievalTopK:     5,
		RetrievalEmbedDim: 768,
		ShutdownTimeout:   15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ModelTimeout, err = durationFromEnv("MODEL_REQUEST_TIMEOUT", cfg.ModelTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessages, err = intFromEnv("CHAT_MAX_MESSAGES", cfg.MaxMessages)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalTopK, err = intFromEnv("RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrievalEmbedDim, err = intFromEnv("RETRIEVAL_EMBED_DIM", cfg.RetrievalEmbedDim)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxMessages <= 0 {
		return Config{}, fmt.Errorf("CHAT_MAX_MESSAGES must be positive")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if cfg.RetrievalEmbedDim <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_EMBED_DIM must be positive")
	}
	if cfg.ModelTimeout < time.Second {
		return Config{}, fmt.Errorf("MODEL_REQUEST_TIMEOUT must be at least 1s")
	}
	if strings.TrimSpace(cfg.OllamaBaseURL) == "" {
		return Config{}, fmt.Errorf("OLLAMA_BASE_URL must not be empty")
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

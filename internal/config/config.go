package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the screening chat client and
// the dev relay.
type Config struct {
	// APIBaseURL is the assessment API the chat client talks to. Defaults
	// to a locally running relay.
	APIBaseURL string
	// APIToken is the bearer token attached to every request. Empty means
	// the Authorization header is omitted.
	APIToken       string
	RequestTimeout time.Duration

	BindAddr        string
	ShutdownTimeout time.Duration
	DatabaseURL     string
	AllowAnyOrigin  bool

	MetricsNamespace string

	// EvaluateRetries and EvaluateBackoffBase shape the CLI's retry policy
	// around finalization; the session core itself never retries.
	EvaluateRetries     int
	EvaluateBackoffBase time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		APIBaseURL:          envOrDefault("COGSCREEN_API_URL", "http://localhost:8080"),
		APIToken:            trimmedEnv("COGSCREEN_API_TOKEN"),
		RequestTimeout:      15 * time.Second,
		BindAddr:            envOrDefault("COGSCREEN_BIND_ADDR", ":8080"),
		ShutdownTimeout:     15 * time.Second,
		DatabaseURL:         trimmedEnv("COGSCREEN_DATABASE_URL"),
		MetricsNamespace:    envOrDefault("COGSCREEN_METRICS_NAMESPACE", "cogscreen"),
		EvaluateRetries:     2,
		EvaluateBackoffBase: 500 * time.Millisecond,
	}

	var err error
	cfg.RequestTimeout, err = durationFromEnv("COGSCREEN_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("COGSCREEN_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EvaluateBackoffBase, err = durationFromEnv("COGSCREEN_EVALUATE_BACKOFF_BASE", cfg.EvaluateBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.EvaluateRetries, err = intFromEnv("COGSCREEN_EVALUATE_RETRIES", cfg.EvaluateRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("COGSCREEN_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("COGSCREEN_API_URL must not be empty")
	}
	if cfg.RequestTimeout < time.Second {
		return Config{}, fmt.Errorf("COGSCREEN_REQUEST_TIMEOUT must be at least 1s")
	}
	if cfg.ShutdownTimeout < time.Second {
		return Config{}, fmt.Errorf("COGSCREEN_SHUTDOWN_TIMEOUT must be at least 1s")
	}
	if cfg.EvaluateRetries < 0 {
		return Config{}, fmt.Errorf("COGSCREEN_EVALUATE_RETRIES must be >= 0")
	}
	if cfg.EvaluateBackoffBase <= 0 {
		return Config{}, fmt.Errorf("COGSCREEN_EVALUATE_BACKOFF_BASE must be positive")
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

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
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
	v := strings.ToLower(trimmedEnv(key))
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

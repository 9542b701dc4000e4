package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full environment surface of every process. Load validates it
// up front; a process must not start with a partial configuration.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	DatabaseURL string
	RedisURL    string
	RabbitURL   string

	DBPoolSize    int
	RedisPoolSize int

	CacheTTL time.Duration
	HotPages int
	PageSize int

	WorkerConcurrency int
	RateLimitMax      int
	RateLimitWindow   time.Duration

	JobMaxAttempts int
	JobBackoffBase time.Duration
	// JobTimeout bounds a single job execution. Zero disables the timeout.
	JobTimeout         time.Duration
	CompletedRetention time.Duration

	LogLevel slog.Level
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var problems []string

	cfg := Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8000"),
		MetricsAddr:        getenv("METRICS_ADDR", ":9090"),
		DatabaseURL:        requireEnv("DATABASE_URL", &problems),
		RedisURL:           requireEnv("REDIS_URL", &problems),
		RabbitURL:          requireEnv("RABBITMQ_URL", &problems),
		DBPoolSize:         intEnv("DB_POOL_SIZE", 20, &problems),
		RedisPoolSize:      intEnv("REDIS_POOL_SIZE", 10, &problems),
		CacheTTL:           secondsEnv("CACHE_TTL_SECONDS", 300, &problems),
		HotPages:           intEnv("HOT_PAGES", 5, &problems),
		PageSize:           intEnv("PAGE_SIZE", 1000, &problems),
		WorkerConcurrency:  intEnv("WORKER_CONCURRENCY", 5, &problems),
		RateLimitMax:       intEnv("RATE_LIMIT_MAX", 50, &problems),
		RateLimitWindow:    millisEnv("RATE_LIMIT_WINDOW_MS", 1000, &problems),
		JobMaxAttempts:     intEnv("JOB_MAX_ATTEMPTS", 3, &problems),
		JobBackoffBase:     millisEnv("JOB_BACKOFF_BASE_MS", 500, &problems),
		JobTimeout:         optionalMillisEnv("JOB_TIMEOUT_MS", &problems),
		CompletedRetention: secondsEnv("COMPLETED_RETENTION_SECONDS", 3600, &problems),
	}

	switch level := strings.ToLower(getenv("LOG_LEVEL", "info")); level {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "info":
		cfg.LogLevel = slog.LevelInfo
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL: unknown level %q", level))
	}

	if len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func requireEnv(key string, problems *[]string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		*problems = append(*problems, key+": required")
	}
	return v
}

func intEnv(key string, def int, problems *[]string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*problems = append(*problems, fmt.Sprintf("%s: must be a positive integer, got %q", key, v))
		return def
	}
	return n
}

func secondsEnv(key string, def int, problems *[]string) time.Duration {
	return time.Duration(intEnv(key, def, problems)) * time.Second
}

func millisEnv(key string, def int, problems *[]string) time.Duration {
	return time.Duration(intEnv(key, def, problems)) * time.Millisecond
}

// optionalMillisEnv allows zero, which callers treat as "disabled".
func optionalMillisEnv(key string, problems *[]string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*problems = append(*problems, fmt.Sprintf("%s: must be a non-negative integer, got %q", key, v))
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Twitter/X API ingestion configuration.
	BearerTokens   []string
	TwitterBaseURL string
	FetchTimeout   time.Duration
	MaxRetries     int
	BackoffFactor  float64

	// Ingestion storage and audit trail.
	StoragePath        string
	AtomicWrites       bool
	RequestHistoryPath string
	SuccessLogPath     string

	// Normalizer configuration.
	MinCleanLength int

	// Model service (prediction) configuration.
	ModelURL     string
	ModelTimeout time.Duration

	// Classification event store.
	EventDBPath string

	// Optional Kafka event stream (enabled when brokers are set).
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool

	// CORS allowed origins for the API surface.
	AllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	modelTimeout, err := parseDuration("MODEL_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}

	maxRetries, err := parseInt("FETCH_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	minCleanLength, err := parseInt("MIN_CLEAN_LENGTH", 3)
	if err != nil {
		return nil, err
	}

	backoffFactor, err := parseFloat("FETCH_BACKOFF_FACTOR", 1.5)
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseList(os.Getenv("KAFKA_BROKERS"))

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BearerTokens:   parseList(bearerTokenEnv()),
		TwitterBaseURL: envOrDefault("TWITTER_BASE_URL", "https://api.x.com"),
		FetchTimeout:   fetchTimeout,
		MaxRetries:     maxRetries,
		BackoffFactor:  backoffFactor,

		StoragePath:        envOrDefault("STORAGE_PATH", "data/tweets.jsonl"),
		AtomicWrites:       envOrDefault("ATOMIC_WRITES", "true") == "true",
		RequestHistoryPath: envOrDefault("REQUEST_HISTORY_PATH", "logs/x_request_history.json"),
		SuccessLogPath:     envOrDefault("SUCCESS_LOG_PATH", "logs/x_success.json"),

		MinCleanLength: minCleanLength,

		ModelURL:     modelURL(),
		ModelTimeout: modelTimeout,

		EventDBPath: envOrDefault("EVENT_DB_PATH", "data/events.db"),

		KafkaBrokers:   kafkaBrokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "classified-tweets"),
		KafkaEnabled:   len(kafkaBrokers) > 0,

		AllowedOrigins: parseList(envOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	if cfg.MaxRetries < 1 {
		return nil, errors.New("FETCH_MAX_RETRIES must be at least 1")
	}
	if cfg.BackoffFactor <= 0 {
		return nil, errors.New("FETCH_BACKOFF_FACTOR must be positive")
	}
	if cfg.MinCleanLength < 0 {
		return nil, errors.New("MIN_CLEAN_LENGTH must not be negative")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_SINK_TOPIC is empty")
	}

	return cfg, nil
}

// RequireBearerTokens validates that at least one credential is configured.
// Called by the ingest command; the API server does not need Twitter access.
func (c *Config) RequireBearerTokens() error {
	if len(c.BearerTokens) == 0 {
		return errors.New("no bearer tokens found: set TWITTER_BEARER_TOKENS (comma-separated)")
	}
	return nil
}

// RequireModelURL validates that the prediction service address is configured.
func (c *Config) RequireModelURL() error {
	if c.ModelURL == "" {
		return errors.New("model service address not set: set MODEL_URL or MODEL_SERVICE_HOST")
	}
	return nil
}

// bearerTokenEnv resolves the credential source, trying the plural variable
// first and falling back to the legacy singular names.
func bearerTokenEnv() string {
	for _, key := range []string{"TWITTER_BEARER_TOKENS", "TWITTER_BEARER_TOKEN", "X_BEARER_TOKEN"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// modelURL builds the model service base URL from MODEL_URL, or from the
// MODEL_SERVICE_HOST/MODEL_SERVICE_PORT pair when the full URL is not set.
func modelURL() string {
	if v := os.Getenv("MODEL_URL"); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	host := os.Getenv("MODEL_SERVICE_HOST")
	if host == "" {
		return ""
	}
	port := envOrDefault("MODEL_SERVICE_PORT", "8000")
	return fmt.Sprintf("http://%s:%s", host, port)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := envOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return f, nil
}

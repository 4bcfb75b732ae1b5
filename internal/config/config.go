package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

const (
	DispatchInProc = "inproc"
	DispatchNATS   = "nats"
)

type Config struct {
	APIPort  string
	LogLevel string

	GoogleAPIKey       string
	LLMModel           string
	EmbeddingModel     string
	EmbeddingDimension int

	QdrantURL       string
	QdrantAPIKey    string
	VectorIndexName string

	CompaniesFile  string
	DataDir        string
	ExportXLSXPath string

	ChunkSize          int
	EmbedBatchSize     int
	RetrieverTopK      int
	AgentMaxIterations int

	IndexDispatch       string
	IndexTimeoutSeconds int
	NATSURL             string
	NATSSubject         string
	PostgresDSN         string

	ScraperTimeoutSeconds int

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int

	ResilienceMaxAttempts         int
	ResilienceInitialBackoffMS    int
	ResilienceMaxBackoffMS        int
	ResilienceBreakerEnabled      bool
	ResilienceBreakerMinRequests  int
	ResilienceBreakerFailureRatio float64
	ResilienceBreakerOpenSeconds  int

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		GoogleAPIKey:       mustEnv("GOOGLE_API_KEY", ""),
		LLMModel:           mustEnv("LLM_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:     mustEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDimension: mustEnvInt("EMBEDDING_DIMENSION", 768),

		QdrantURL:       mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:    mustEnv("QDRANT_API_KEY", ""),
		VectorIndexName: mustEnv("VECTOR_INDEX_NAME", "financial-data"),

		CompaniesFile:  mustEnv("COMPANIES_FILE", ""),
		DataDir:        mustEnv("DATA_DIR", "./data"),
		ExportXLSXPath: mustEnv("EXPORT_XLSX_PATH", "processed_csv/financial_data.xlsx"),

		ChunkSize:          mustEnvInt("CHUNK_SIZE", 2000),
		EmbedBatchSize:     mustEnvInt("EMBED_BATCH_SIZE", 32),
		RetrieverTopK:      mustEnvInt("RETRIEVER_TOP_K", 5),
		AgentMaxIterations: mustEnvInt("AGENT_MAX_ITERATIONS", 10),

		IndexDispatch:       strings.ToLower(mustEnv("INDEX_DISPATCH", DispatchInProc)),
		IndexTimeoutSeconds: mustEnvInt("INDEX_TIMEOUT_SECONDS", 1800),
		NATSURL:             mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject:         mustEnv("NATS_SUBJECT", "financials.index"),
		PostgresDSN:         mustEnv("POSTGRES_DSN", ""),

		ScraperTimeoutSeconds: mustEnvInt("SCRAPER_TIMEOUT_SECONDS", 60),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 0),

		ResilienceMaxAttempts:         mustEnvInt("RESILIENCE_MAX_ATTEMPTS", 1),
		ResilienceInitialBackoffMS:    mustEnvInt("RESILIENCE_INITIAL_BACKOFF_MS", 250),
		ResilienceMaxBackoffMS:        mustEnvInt("RESILIENCE_MAX_BACKOFF_MS", 2000),
		ResilienceBreakerEnabled:      mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests:  mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 5),
		ResilienceBreakerFailureRatio: mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.6),
		ResilienceBreakerOpenSeconds:  mustEnvInt("RESILIENCE_BREAKER_OPEN_SECONDS", 30),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// Validate reports settings that would fail at first use.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GoogleAPIKey) == "" {
		errs = append(errs, errors.New("GOOGLE_API_KEY is required"))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.RetrieverTopK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVER_TOP_K must be positive, got %d", c.RetrieverTopK))
	}
	if c.AgentMaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_MAX_ITERATIONS must be positive, got %d", c.AgentMaxIterations))
	}
	if strings.TrimSpace(c.VectorIndexName) == "" {
		errs = append(errs, errors.New("VECTOR_INDEX_NAME is required"))
	}
	switch c.IndexDispatch {
	case DispatchInProc:
	case DispatchNATS:
		if strings.TrimSpace(c.NATSURL) == "" || strings.TrimSpace(c.NATSSubject) == "" {
			errs = append(errs, errors.New("NATS_URL and NATS_SUBJECT are required when INDEX_DISPATCH=nats"))
		}
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when INDEX_DISPATCH=nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("INDEX_DISPATCH must be %q or %q, got %q", DispatchInProc, DispatchNATS, c.IndexDispatch))
	}
	return errors.Join(errs...)
}

func (c Config) IndexTimeout() time.Duration {
	return time.Duration(c.IndexTimeoutSeconds) * time.Second
}

func (c Config) Resilience() resilience.Config {
	return resilience.Config{
		MaxAttempts:         c.ResilienceMaxAttempts,
		InitialBackoff:      time.Duration(c.ResilienceInitialBackoffMS) * time.Millisecond,
		MaxBackoff:          time.Duration(c.ResilienceMaxBackoffMS) * time.Millisecond,
		Multiplier:          2.0,
		BreakerEnabled:      c.ResilienceBreakerEnabled,
		BreakerMinRequests:  uint32(max(c.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio: c.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:  time.Duration(c.ResilienceBreakerOpenSeconds) * time.Second,
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

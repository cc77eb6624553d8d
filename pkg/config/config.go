// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the chat backend.
type Config struct {
	// Application
	AppName  string
	Port     string
	LogLevel string

	// CORS
	CORSEnabled    bool
	AllowedOrigins []string

	// OpenAI configuration
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAIEmbeddingModel string

	// Weaviate vector index
	WeaviateURL    string
	WeaviateScheme string
	WeaviateAPIKey string
	WeaviateClass  string

	// SQLite relational store
	DatabasePath string

	// Redis embedding cache (optional)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisCacheTTL time.Duration

	// RAG pipeline tuning
	RAGTopK                int
	RAGSimilarityThreshold float64
	RAGPageScopedThreshold float64
	RAGMaxCitations        int
	RAGMaxContextTokens    int
	RAGCharsPerToken       int

	// Retention
	SessionTTL       time.Duration
	MessageRetention time.Duration
	PurgeInterval    time.Duration

	// Safety guardrails
	SafetyEnabled bool

	// Server timeouts
	RequestTimeout   time.Duration
	GracefulShutdown time.Duration
}

// Default returns the configuration defaults used when environment variables
// are absent.
func Default() *Config {
	return &Config{
		AppName:  "smart-humanoid-chatbot",
		Port:     "8080",
		LogLevel: "info",

		CORSEnabled:    true,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8080"},

		OpenAIBaseURL:        "https://api.openai.com/v1",
		OpenAIModel:          "gpt-4o",
		OpenAIEmbeddingModel: "text-embedding-3-small",

		WeaviateScheme: "https",
		WeaviateClass:  "TextbookChunk",

		DatabasePath: "chatbot.db",

		RedisAddr:     "localhost:6379",
		RedisCacheTTL: 24 * time.Hour,

		RAGTopK:                10,
		RAGSimilarityThreshold: 0.5,
		RAGPageScopedThreshold: 0.3,
		RAGMaxCitations:        5,
		RAGMaxContextTokens:    4000,
		RAGCharsPerToken:       4,

		SessionTTL:       24 * time.Hour,
		MessageRetention: 24 * time.Hour,
		PurgeInterval:    1 * time.Hour,

		SafetyEnabled: true,

		RequestTimeout:   60 * time.Second,
		GracefulShutdown: 15 * time.Second,
	}
}

// Load reads configuration from the environment, layering values over the
// defaults and validating the result. A .env file in the working directory is
// honored when present.
func Load() (*Config, error) {
	// Best-effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Default()

	if val := os.Getenv("APP_NAME"); val != "" {
		cfg.AppName = val
	}
	if val := os.Getenv("PORT"); val != "" {
		cfg.Port = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = strings.ToLower(val)
	}

	if val := os.Getenv("CORS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.CORSEnabled = b
		}
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		cfg.AllowedOrigins = splitAndTrim(val)
	}

	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		cfg.OpenAIAPIKey = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		cfg.OpenAIBaseURL = strings.TrimSuffix(val, "/")
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		cfg.OpenAIModel = val
	}
	if val := os.Getenv("OPENAI_EMBEDDING_MODEL"); val != "" {
		cfg.OpenAIEmbeddingModel = val
	}

	if val := os.Getenv("WEAVIATE_URL"); val != "" {
		cfg.WeaviateURL = val
	}
	if val := os.Getenv("WEAVIATE_SCHEME"); val != "" {
		cfg.WeaviateScheme = val
	}
	if val := os.Getenv("WEAVIATE_API_KEY"); val != "" {
		cfg.WeaviateAPIKey = val
	}
	if val := os.Getenv("WEAVIATE_CLASS"); val != "" {
		cfg.WeaviateClass = val
	}

	if val := os.Getenv("DATABASE_PATH"); val != "" {
		cfg.DatabasePath = val
	}

	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.RedisEnabled = b
		}
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.RedisAddr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.RedisPassword = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.RedisDB = n
		}
	}
	if val := os.Getenv("REDIS_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.RedisCacheTTL = d
		}
	}

	if val := os.Getenv("RAG_TOP_K"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.RAGTopK = n
		}
	}
	if val := os.Getenv("RAG_SIMILARITY_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.RAGSimilarityThreshold = f
		}
	}
	if val := os.Getenv("RAG_PAGE_SCOPED_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.RAGPageScopedThreshold = f
		}
	}
	if val := os.Getenv("RAG_MAX_CITATIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.RAGMaxCitations = n
		}
	}
	if val := os.Getenv("RAG_MAX_CONTEXT_TOKENS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.RAGMaxContextTokens = n
		}
	}
	if val := os.Getenv("RAG_CHARS_PER_TOKEN"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.RAGCharsPerToken = n
		}
	}

	if val := os.Getenv("SESSION_TTL_HOURS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.SessionTTL = time.Duration(n) * time.Hour
		}
	}
	if val := os.Getenv("MESSAGE_RETENTION_HOURS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.MessageRetention = time.Duration(n) * time.Hour
		}
	}
	if val := os.Getenv("PURGE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.PurgeInterval = d
		}
	}

	if val := os.Getenv("SAFETY_KEYWORDS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.SafetyEnabled = b
		}
	}

	if val := os.Getenv("REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if val := os.Getenv("GRACEFUL_SHUTDOWN"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.GracefulShutdown = d
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and tunables are in
// range.
func (c *Config) Validate() error {
	var problems []string

	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if c.WeaviateURL == "" {
		problems = append(problems, "WEAVIATE_URL is required")
	}
	if c.DatabasePath == "" {
		problems = append(problems, "DATABASE_PATH cannot be empty")
	}
	if c.RAGSimilarityThreshold < 0 || c.RAGSimilarityThreshold > 1 {
		problems = append(problems, "RAG_SIMILARITY_THRESHOLD must be in [0, 1]")
	}
	if c.RAGPageScopedThreshold < 0 || c.RAGPageScopedThreshold > 1 {
		problems = append(problems, "RAG_PAGE_SCOPED_THRESHOLD must be in [0, 1]")
	}
	if c.RAGMaxCitations < 1 || c.RAGMaxCitations > 10 {
		problems = append(problems, "RAG_MAX_CITATIONS must be between 1 and 10")
	}
	if c.RAGMaxContextTokens < 500 || c.RAGMaxContextTokens > 16000 {
		problems = append(problems, "RAG_MAX_CONTEXT_TOKENS must be between 500 and 16000")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

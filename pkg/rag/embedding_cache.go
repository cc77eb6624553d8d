package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCacheConfig holds Redis embedding cache configuration.
type RedisCacheConfig struct {
	Addr      string        `json:"addr"`
	Password  string        `json:"password"`
	Database  int           `json:"database"`
	TTL       time.Duration `json:"ttl"`
	KeyPrefix string        `json:"key_prefix"`
}

func getDefaultRedisCacheConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		Addr:      "localhost:6379",
		TTL:       24 * time.Hour,
		KeyPrefix: "chatbot:embedding",
	}
}

// RedisEmbeddingCache caches embedding vectors in Redis, keyed by model and
// a hash of the input text. Embeddings for a fixed corpus and model are
// stable, so a TTL measured in hours is purely a memory bound.
type RedisEmbeddingCache struct {
	client *redis.Client
	config *RedisCacheConfig
	logger *slog.Logger
}

// NewRedisEmbeddingCache creates a Redis-backed embedding cache.
func NewRedisEmbeddingCache(config *RedisCacheConfig) *RedisEmbeddingCache {
	if config == nil {
		config = getDefaultRedisCacheConfig()
	}
	if config.TTL == 0 {
		config.TTL = 24 * time.Hour
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "chatbot:embedding"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.Database,
	})

	return &RedisEmbeddingCache{
		client: client,
		config: config,
		logger: slog.Default().With("component", "embedding-cache"),
	}
}

type cachedEmbedding struct {
	Model     string    `json:"model"`
	Embedding []float32 `json:"embedding"`
	CreatedAt time.Time `json:"created_at"`
}

// Get returns the cached embedding for (model, text) if present. Any Redis
// fault is logged and reported as a miss.
func (c *RedisEmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, c.key(model, text)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Embedding cache read failed", "error", err)
		return nil, false
	}

	var entry cachedEmbedding
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("Embedding cache entry corrupt, discarding", "error", err)
		return nil, false
	}
	return entry.Embedding, true
}

// Set stores the embedding for (model, text). Failures are logged only.
func (c *RedisEmbeddingCache) Set(ctx context.Context, model, text string, embedding []float32) {
	raw, err := json.Marshal(cachedEmbedding{
		Model:     model,
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn("Failed to encode embedding cache entry", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(model, text), raw, c.config.TTL).Err(); err != nil {
		c.logger.Warn("Embedding cache write failed", "error", err)
	}
}

// Close releases the underlying Redis connection.
func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}

func (c *RedisEmbeddingCache) key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%s:%s", c.config.KeyPrefix, model, hex.EncodeToString(sum[:]))
}

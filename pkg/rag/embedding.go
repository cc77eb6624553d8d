package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// EmbeddingConfig holds configuration for the embedding service.
type EmbeddingConfig struct {
	APIKey         string        `json:"api_key"`
	BaseURL        string        `json:"base_url"`
	ModelName      string        `json:"model_name"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

func getDefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		BaseURL:        "https://api.openai.com/v1",
		ModelName:      "text-embedding-3-small",
		RequestTimeout: 30 * time.Second,
	}
}

// EmbeddingCache is a read-through cache for embedding vectors. A cache
// failure is treated as a miss, never surfaced to the caller.
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool)
	Set(ctx context.Context, model, text string, embedding []float32)
}

// EmbeddingService generates query embeddings through an OpenAI-compatible
// provider. It performs exactly one round trip per call and never retries;
// retry policy belongs to callers.
type EmbeddingService struct {
	config     *EmbeddingConfig
	httpClient *http.Client
	cache      EmbeddingCache
	logger     *slog.Logger
}

// NewEmbeddingService creates an embedding service. cache may be nil.
func NewEmbeddingService(config *EmbeddingConfig, cache EmbeddingCache) *EmbeddingService {
	if config == nil {
		config = getDefaultEmbeddingConfig()
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &EmbeddingService{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		cache:      cache,
		logger:     slog.Default().With("component", "embedding-service"),
	}
}

type embeddingAPIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingAPIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed generates the embedding vector for text. Empty or all-whitespace
// input fails before any network call.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, svcerr.New(svcerr.ErrorTypeInvalidInput, "text cannot be empty")
	}

	if s.cache != nil {
		if embedding, ok := s.cache.Get(ctx, s.config.ModelName, text); ok {
			return embedding, nil
		}
	}

	embeddings, err := s.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, s.config.ModelName, text, embeddings[0])
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one round trip.
// Every element is validated before the network call; the first offending
// index is reported.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, svcerr.Invalidf("text at index %d cannot be empty", i)
		}
	}
	return s.request(ctx, texts)
}

// request performs the provider call. Provider faults are wrapped; the raw
// error text is logged here and never propagated.
func (s *EmbeddingService) request(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingAPIRequest{Model: s.config.ModelName, Input: input})
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeInternal, "failed to encode embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeInternal, "failed to build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("Embedding provider request failed", "error", err)
		return nil, svcerr.Wrap(svcerr.ErrorTypeEmbeddingUnavailable, "embedding service unavailable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.Error("Failed to read embedding response", "error", err)
		return nil, svcerr.Wrap(svcerr.ErrorTypeEmbeddingUnavailable, "embedding service unavailable", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Error("Embedding provider returned error status",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, svcerr.Wrap(svcerr.ErrorTypeEmbeddingUnavailable, "embedding service unavailable",
			fmt.Errorf("provider status %d", resp.StatusCode))
	}

	var parsed embeddingAPIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		s.logger.Error("Failed to decode embedding response", "error", err)
		return nil, svcerr.Wrap(svcerr.ErrorTypeEmbeddingUnavailable, "embedding service unavailable", err)
	}
	if len(parsed.Data) != len(input) {
		return nil, svcerr.Wrap(svcerr.ErrorTypeEmbeddingUnavailable, "embedding service unavailable",
			fmt.Errorf("provider returned %d embeddings for %d inputs", len(parsed.Data), len(input)))
	}

	embeddings := make([][]float32, len(input))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, svcerr.Wrap(svcerr.ErrorTypeEmbeddingUnavailable, "embedding service unavailable",
				fmt.Errorf("provider returned out-of-range index %d", item.Index))
		}
		embeddings[item.Index] = item.Embedding
	}
	return embeddings, nil
}

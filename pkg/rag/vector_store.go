package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// WeaviateConfig holds configuration for the vector store client.
type WeaviateConfig struct {
	Host   string `json:"host"`
	Scheme string `json:"scheme"`
	APIKey string `json:"api_key"`

	// ClassName is the indexed corpus class.
	ClassName string `json:"class_name"`

	// DefaultThreshold is the similarity post-filter applied when a caller
	// does not supply its own.
	DefaultThreshold float64 `json:"default_threshold"`

	Timeout time.Duration `json:"timeout"`
}

func getDefaultWeaviateConfig() *WeaviateConfig {
	return &WeaviateConfig{
		Scheme:           "https",
		ClassName:        "TextbookChunk",
		DefaultThreshold: 0.5,
		Timeout:          30 * time.Second,
	}
}

// VectorStoreClient retrieves ranked textbook chunks from Weaviate. The
// index's similarity (certainty) is taken as the relevance score unmodified,
// and its descending ordering is trusted without a re-sort.
type VectorStoreClient struct {
	client *weaviate.Client
	config *WeaviateConfig
	logger *slog.Logger
}

// NewVectorStoreClient creates a Weaviate-backed vector store client.
func NewVectorStoreClient(config *WeaviateConfig) (*VectorStoreClient, error) {
	if config == nil {
		config = getDefaultWeaviateConfig()
	}
	if config.Host == "" {
		return nil, fmt.Errorf("weaviate host cannot be empty")
	}
	if config.Scheme == "" {
		config.Scheme = "https"
	}
	if config.ClassName == "" {
		config.ClassName = "TextbookChunk"
	}
	if config.DefaultThreshold == 0 {
		config.DefaultThreshold = 0.5
	}

	clientConfig := weaviate.Config{
		Host:   config.Host,
		Scheme: config.Scheme,
	}
	if config.APIKey != "" {
		clientConfig.AuthConfig = auth.ApiKey{Value: config.APIKey}
	}

	client, err := weaviate.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &VectorStoreClient{
		client: client,
		config: config,
		logger: slog.Default().With("component", "vector-store"),
	}, nil
}

// EnsureSchema creates the corpus class if it does not exist. The class
// carries its own vectors; no server-side vectorizer is configured.
func (vs *VectorStoreClient) EnsureSchema(ctx context.Context) error {
	class := &models.Class{
		Class:       vs.config.ClassName,
		Description: "Sectioned excerpts of the textbook corpus with retrieval metadata",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "moduleId", DataType: []string{"int"}, Description: "Course module number"},
			{Name: "chapterId", DataType: []string{"int"}, Description: "Chapter number (1-20)"},
			{Name: "sectionId", DataType: []string{"text"}, Description: "Section slug (e.g. 2.3.1)"},
			{Name: "heading", DataType: []string{"text"}, Description: "Section heading"},
			{Name: "text", DataType: []string{"text"}, Description: "Chunk content"},
			{Name: "persona", DataType: []string{"text"}, Description: "Corpus-side persona tag"},
			{Name: "path", DataType: []string{"text"}, Description: "Deep link to the source location"},
			{Name: "chunkIndex", DataType: []string{"int"}, Description: "Ordinal within section"},
		},
	}

	err := vs.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			vs.logger.Info("Corpus class already exists", "class", vs.config.ClassName)
			return nil
		}
		return fmt.Errorf("failed to create class %s: %w", vs.config.ClassName, err)
	}

	vs.logger.Info("Created corpus class", "class", vs.config.ClassName)
	return nil
}

// Ready probes the Weaviate instance for readiness checks.
func (vs *VectorStoreClient) Ready(ctx context.Context) error {
	ready, err := vs.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate readiness probe failed: %w", err)
	}
	if !ready {
		return fmt.Errorf("weaviate reports not ready")
	}
	return nil
}

// Search returns chunks ranked by similarity to queryVector. All present
// filter fields are combined conjunctively. threshold <= 0 selects the
// configured default; chunks scoring below it are dropped as an explicit
// post-filter even though the index already ranked by similarity.
func (vs *VectorStoreClient) Search(ctx context.Context, queryVector []float32, searchFilters *SearchFilters, limit int, threshold float64) ([]ContentChunk, error) {
	if len(queryVector) == 0 {
		return nil, svcerr.New(svcerr.ErrorTypeInvalidInput, "query vector cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}
	if threshold <= 0 {
		threshold = vs.config.DefaultThreshold
	}

	nearVector := vs.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)

	query := vs.client.GraphQL().Get().
		WithClassName(vs.config.ClassName).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(
			graphql.Field{Name: "moduleId"},
			graphql.Field{Name: "chapterId"},
			graphql.Field{Name: "sectionId"},
			graphql.Field{Name: "heading"},
			graphql.Field{Name: "text"},
			graphql.Field{Name: "persona"},
			graphql.Field{Name: "path"},
			graphql.Field{Name: "chunkIndex"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "id"},
				{Name: "certainty"},
			}},
		)

	if where := buildWhereFilter(searchFilters); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		vs.logger.Error("Weaviate search failed", "error", err)
		return nil, svcerr.Wrap(svcerr.ErrorTypeIndexUnavailable, "search index unavailable", err)
	}
	if len(result.Errors) > 0 {
		vs.logger.Error("Weaviate search returned errors", "message", result.Errors[0].Message)
		return nil, svcerr.Wrap(svcerr.ErrorTypeIndexUnavailable, "search index unavailable",
			fmt.Errorf("graphql: %s", result.Errors[0].Message))
	}

	chunks := parseSearchChunks(result.Data, vs.config.ClassName, threshold)

	vs.logger.Info("Vector search completed",
		"class", vs.config.ClassName,
		"limit", limit,
		"threshold", threshold,
		"results", len(chunks),
	)
	return chunks, nil
}

// buildWhereFilter combines present filter fields into a conjunctive where
// clause; nil means no constraint.
func buildWhereFilter(f *SearchFilters) *filters.WhereBuilder {
	if f.Empty() {
		return nil
	}

	var operands []*filters.WhereBuilder
	if f.ChapterID != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"chapterId"}).
			WithOperator(filters.Equal).
			WithValueInt(int64(*f.ChapterID)))
	}
	if f.ModuleID != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"moduleId"}).
			WithOperator(filters.Equal).
			WithValueInt(int64(*f.ModuleID)))
	}
	if f.Persona != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{"persona"}).
			WithOperator(filters.Equal).
			WithValueText(*f.Persona))
	}

	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

// parseSearchChunks extracts chunks from a GraphQL Get response, dropping
// entries below threshold. Missing payload fields default rather than fail;
// the corpus may be partially indexed.
func parseSearchChunks(data map[string]models.JSONObject, className string, threshold float64) []ContentChunk {
	chunks := make([]ContentChunk, 0)

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return chunks
	}
	items, ok := get[className].([]interface{})
	if !ok {
		return chunks
	}

	for _, item := range items {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		chunk := ContentChunk{Persona: "Default"}

		if val, ok := itemMap["moduleId"].(float64); ok {
			chunk.ModuleID = int(val)
		}
		if val, ok := itemMap["chapterId"].(float64); ok {
			chunk.ChapterID = int(val)
		}
		if val, ok := itemMap["sectionId"].(string); ok {
			chunk.SectionID = val
		}
		if val, ok := itemMap["heading"].(string); ok {
			chunk.Heading = val
		}
		if val, ok := itemMap["text"].(string); ok {
			chunk.Text = val
		}
		if val, ok := itemMap["persona"].(string); ok && val != "" {
			chunk.Persona = val
		}
		if val, ok := itemMap["path"].(string); ok {
			chunk.Path = val
		}
		if val, ok := itemMap["chunkIndex"].(float64); ok {
			chunk.ChunkIndex = int(val)
		}

		if additional, ok := itemMap["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				chunk.ID = id
			}
			if certainty, ok := additional["certainty"].(float64); ok {
				chunk.RelevanceScore = certainty
			}
		}

		if chunk.RelevanceScore >= threshold {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

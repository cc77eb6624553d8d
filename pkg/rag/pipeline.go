package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

// PipelineConfig holds tuning for the RAG pipeline.
type PipelineConfig struct {
	// RelevanceThreshold gates out-of-scope detection and global retrieval.
	RelevanceThreshold float64 `json:"relevance_threshold"`

	// PageScopedThreshold is the lower retrieval gate used when the learner
	// is viewing a known chapter. A deliberate precision/recall trade-off:
	// imprecise phrasing should still surface that chapter's chunks.
	PageScopedThreshold float64 `json:"page_scoped_threshold"`

	MaxCitations     int `json:"max_citations"`
	MaxContextTokens int `json:"max_context_tokens"`
	CharsPerToken    int `json:"chars_per_token"`
}

func getDefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		RelevanceThreshold:  RelevanceThreshold,
		PageScopedThreshold: 0.3,
		MaxCitations:        MaxCitations,
		MaxContextTokens:    4000,
		CharsPerToken:       DefaultCharsPerToken,
	}
}

// Pipeline orchestrates one retrieval round: embed the query, search the
// vector index, classify scope, stitch context, and process citations.
// Dependencies are injected; the pipeline holds no ambient state and is safe
// for concurrent use.
type Pipeline struct {
	embedder       Embedder
	vectorSearcher VectorSearcher
	contextBuilder *ContextBuilder
	extractor      *CitationExtractor
	config         *PipelineConfig
	logger         *slog.Logger
}

// QueryOptions adjusts a single pipeline run.
type QueryOptions struct {
	Filters *SearchFilters

	// PageScoped marks the query as limited to the chapter the learner is
	// viewing: retrieval uses the lower threshold and out-of-scope detection
	// is bypassed.
	PageScoped bool
}

// NewPipeline creates a RAG pipeline. config may be nil for defaults.
func NewPipeline(embedder Embedder, vectorSearcher VectorSearcher, config *PipelineConfig) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if vectorSearcher == nil {
		return nil, fmt.Errorf("vector searcher cannot be nil")
	}
	if config == nil {
		config = getDefaultPipelineConfig()
	}
	if config.MaxCitations <= 0 {
		config.MaxCitations = MaxCitations
	}

	return &Pipeline{
		embedder:       embedder,
		vectorSearcher: vectorSearcher,
		contextBuilder: &ContextBuilder{CharsPerToken: config.CharsPerToken},
		extractor:      NewCitationExtractor(),
		config:         config,
		logger:         slog.Default().With("component", "rag-pipeline"),
	}, nil
}

// Query runs the full retrieval round for message. Out-of-scope queries
// short-circuit with empty context and no citations.
func (p *Pipeline) Query(ctx context.Context, message string, opts QueryOptions) (*Result, error) {
	queryVector, err := p.embedder.Embed(ctx, message)
	if err != nil {
		return nil, err
	}

	threshold := p.config.RelevanceThreshold
	if opts.PageScoped {
		threshold = p.config.PageScopedThreshold
	}

	// Retrieve more than we surface; deduplication needs headroom.
	limit := p.config.MaxCitations * 2

	chunks, err := p.vectorSearcher.Search(ctx, queryVector, opts.Filters, limit, threshold)
	if err != nil {
		return nil, err
	}

	if !opts.PageScoped && DetectOutOfScope(chunks, p.config.RelevanceThreshold) {
		p.logger.Info("Query classified out of scope", "results", len(chunks))
		return &Result{
			Context:          "",
			Citations:        []types.Citation{},
			IsOutOfScope:     true,
			ConflictWarnings: []ConflictWarning{},
		}, nil
	}

	context := p.contextBuilder.StitchCrossChapter(chunks)

	citations := p.extractor.Extract(chunks, p.config.MaxCitations)
	citations = p.extractor.Deduplicate(citations)
	conflicts := p.extractor.DetectConflicts(citations)

	p.logger.Info("RAG query completed",
		"chunks", len(chunks),
		"citations", len(citations),
		"conflicts", len(conflicts),
		"page_scoped", opts.PageScoped,
	)

	return &Result{
		Context:          context,
		Citations:        citations,
		IsOutOfScope:     false,
		ConflictWarnings: conflicts,
	}, nil
}

// QuerySelection answers from learner-highlighted text only, bypassing
// retrieval entirely. An insufficient selection short-circuits with its own
// flag; it is a successful outcome distinct from out-of-scope, because the
// learner should be asked for a larger selection rather than told the topic
// is not in the corpus.
func (p *Pipeline) QuerySelection(ctx context.Context, selectedText, query string) (*Result, error) {
	if !CheckSelectionSufficiency(selectedText) {
		return &Result{
			Context:                 "",
			Citations:               []types.Citation{},
			ConflictWarnings:        []ConflictWarning{},
			IsInsufficientSelection: true,
		}, nil
	}

	return &Result{
		Context:          fmt.Sprintf("[Selected Text]\n%s\n", selectedText),
		Citations:        []types.Citation{},
		ConflictWarnings: []ConflictWarning{},
	}, nil
}

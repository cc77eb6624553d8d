// Package rag implements the retrieval-augmented-generation pipeline:
// query embedding, filtered vector search, scope classification, context
// assembly, and citation processing over the fixed textbook corpus.
package rag

import (
	"context"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

// ContentChunk is one retrieved unit of source text. Chunks are constructed
// fresh per search call from vector index results and never mutated.
// RelevanceScore is the index's raw similarity; the pipeline never
// recomputes it.
type ContentChunk struct {
	ID             string  `json:"id"`
	ModuleID       int     `json:"module_id"`
	ChapterID      int     `json:"chapter_id"`
	SectionID      string  `json:"section_id"`
	Heading        string  `json:"heading"`
	Text           string  `json:"text"`
	Persona        string  `json:"persona"`
	Path           string  `json:"path"`
	ChunkIndex     int     `json:"chunk_index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SearchFilters scopes retrieval. All fields are independent; a nil filter or
// all-zero fields mean an unfiltered corpus-wide search.
type SearchFilters struct {
	ChapterID *int    `json:"chapter_id,omitempty"`
	ModuleID  *int    `json:"module_id,omitempty"`
	Persona   *string `json:"persona,omitempty"`
}

// Empty reports whether no filter field is set.
func (f *SearchFilters) Empty() bool {
	return f == nil || (f.ChapterID == nil && f.ModuleID == nil && f.Persona == nil)
}

// ConflictWarning flags a possible contradiction between two citations.
// Advisory only; it never blocks or alters the answer.
type ConflictWarning struct {
	CitationIndices []int  `json:"citation_indices"`
	Description     string `json:"description"`
	Severity        string `json:"severity"` // low | medium | high
}

// Result is the pipeline's output for one retrieval round. IsOutOfScope
// implies empty context and no citations.
type Result struct {
	Context                 string            `json:"context"`
	Citations               []types.Citation  `json:"citations"`
	IsOutOfScope            bool              `json:"is_out_of_scope"`
	ConflictWarnings        []ConflictWarning `json:"conflict_warnings,omitempty"`
	IsInsufficientSelection bool              `json:"is_insufficient_selection,omitempty"`
}

// Embedder turns text into fixed-length vectors via an external provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearcher returns ranked content chunks for a query vector. Results
// arrive sorted by relevance descending; threshold <= 0 uses the searcher's
// configured default.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, filters *SearchFilters, limit int, threshold float64) ([]ContentChunk, error)
}

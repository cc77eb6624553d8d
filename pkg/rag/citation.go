package rag

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

// MaxQuoteLength bounds verbatim citation quotes.
const MaxQuoteLength = 500

// MaxCitations bounds how many citations ever surface to a caller.
const MaxCitations = 5

// CitationExtractor converts retrieved chunks into learner-facing citations
// with deduplication and best-effort conflict flagging. All operations are
// pure; none perform I/O.
type CitationExtractor struct{}

// NewCitationExtractor creates a citation extractor.
func NewCitationExtractor() *CitationExtractor {
	return &CitationExtractor{}
}

// Extract sorts chunks by relevance descending and maps the top limit chunks
// to citations with word-boundary-truncated quotes.
func (ce *CitationExtractor) Extract(chunks []ContentChunk, limit int) []types.Citation {
	if len(chunks) == 0 || limit <= 0 {
		return []types.Citation{}
	}

	sorted := make([]ContentChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RelevanceScore > sorted[j].RelevanceScore
	})

	if limit > len(sorted) {
		limit = len(sorted)
	}

	citations := make([]types.Citation, 0, limit)
	for _, chunk := range sorted[:limit] {
		citations = append(citations, types.Citation{
			Chapter:        chunk.ChapterID,
			Section:        chunk.SectionID,
			Heading:        chunk.Heading,
			Quote:          generateQuote(chunk.Text),
			Link:           chunk.Path,
			RelevanceScore: chunk.RelevanceScore,
		})
	}
	return citations
}

// Deduplicate keeps the highest-relevance citation per (chapter, section)
// pair and returns the survivors sorted by relevance descending. The
// operation is commutative over input order and idempotent.
func (ce *CitationExtractor) Deduplicate(citations []types.Citation) []types.Citation {
	if len(citations) == 0 {
		return []types.Citation{}
	}

	type key struct {
		chapter int
		section string
	}

	seen := make(map[key]types.Citation)
	for _, citation := range citations {
		k := key{chapter: citation.Chapter, section: citation.Section}
		if existing, ok := seen[k]; !ok || citation.RelevanceScore > existing.RelevanceScore {
			seen[k] = citation
		}
	}

	result := make([]types.Citation, 0, len(seen))
	for _, citation := range seen {
		result = append(result, citation)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RelevanceScore > result[j].RelevanceScore
	})
	return result
}

var pythonVersionPattern = regexp.MustCompile(`(?i)Python\s+(\d+\.\d+)`)

// DetectConflicts runs a narrow heuristic over every unordered citation
// pair: when both quotes mention Python versions and the version sets
// differ, a medium-severity warning names both. Best-effort only, not
// semantic contradiction detection.
func (ce *CitationExtractor) DetectConflicts(citations []types.Citation) []ConflictWarning {
	if len(citations) < 2 {
		return []ConflictWarning{}
	}

	conflicts := make([]ConflictWarning, 0)
	for i := 0; i < len(citations); i++ {
		for j := i + 1; j < len(citations); j++ {
			if warning := checkVersionConflict(citations[i], citations[j], i, j); warning != nil {
				conflicts = append(conflicts, *warning)
			}
		}
	}
	return conflicts
}

// generateQuote returns text verbatim when it fits, otherwise truncates to
// the quote bound at a word boundary and appends an ellipsis.
func generateQuote(text string) string {
	if len(text) <= MaxQuoteLength {
		return text
	}

	truncated := text[:MaxQuoteLength-3]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

func checkVersionConflict(a, b types.Citation, idxA, idxB int) *ConflictWarning {
	versionsA := pythonVersionSet(a.Quote)
	versionsB := pythonVersionSet(b.Quote)

	if len(versionsA) == 0 || len(versionsB) == 0 || equalVersionSets(versionsA, versionsB) {
		return nil
	}

	return &ConflictWarning{
		CitationIndices: []int{idxA, idxB},
		Description: fmt.Sprintf("Potential Python version conflict: %s vs %s",
			formatVersionSet(versionsA), formatVersionSet(versionsB)),
		Severity: "medium",
	}
}

func pythonVersionSet(quote string) map[string]struct{} {
	versions := make(map[string]struct{})
	for _, match := range pythonVersionPattern.FindAllStringSubmatch(quote, -1) {
		versions[match[1]] = struct{}{}
	}
	return versions
}

func equalVersionSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}

func formatVersionSet(set map[string]struct{}) string {
	versions := make([]string, 0, len(set))
	for v := range set {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return "{" + strings.Join(versions, ", ") + "}"
}

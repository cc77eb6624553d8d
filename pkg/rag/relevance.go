package rag

import (
	"regexp"
	"strings"
)

// RelevanceThreshold is the default minimum similarity for a global query to
// count as in-scope.
const RelevanceThreshold = 0.5

// DetectOutOfScope reports whether a global query falls outside the corpus:
// no results, or no result reaching threshold. Page-scoped queries never go
// through this check; the caller has already asserted the topic is in-corpus
// and narrowed the retrieval threshold instead.
func DetectOutOfScope(results []ContentChunk, threshold float64) bool {
	if len(results) == 0 {
		return true
	}
	maxScore := results[0].RelevanceScore
	for _, chunk := range results[1:] {
		if chunk.RelevanceScore > maxScore {
			maxScore = chunk.RelevanceScore
		}
	}
	return maxScore < threshold
}

// specificTermPatterns recognize concrete technical vocabulary. Any hit makes
// a query specific regardless of vague phrasing.
var specificTermPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bros\s*2?\b`),
	regexp.MustCompile(`(?i)\bnodes?\b`),
	regexp.MustCompile(`(?i)\btopics?\b`),
	regexp.MustCompile(`(?i)\bservices?\b`),
	regexp.MustCompile(`(?i)\burdf\b`),
	regexp.MustCompile(`(?i)\bmessage\s+passing\b`),
	regexp.MustCompile(`(?i)\bpublishers?\b`),
	regexp.MustCompile(`(?i)\bsubscribers?\b`),
	regexp.MustCompile(`(?i)\bdocker\b`),
	regexp.MustCompile(`(?i)\bcontainers?\b`),
	regexp.MustCompile(`(?i)\bkinematics\b`),
	regexp.MustCompile(`(?i)\bmoveit\b`),
	regexp.MustCompile(`(?i)\bgazebo\b`),
	regexp.MustCompile(`(?i)\bsimulations?\b`),
	regexp.MustCompile(`(?i)\bframeworks?\b`),
	regexp.MustCompile(`(?i)\bsections?\b`),
	regexp.MustCompile(`(?i)\bchapters?\b`),
	regexp.MustCompile(`(?i)\bembodied\s+intelligence\b`),
	regexp.MustCompile(`(?i)\bprogramming\s+languages?\b`),
	regexp.MustCompile(`(?i)\bpython\b`),
	regexp.MustCompile(`(?i)\brobots?\b`),
	regexp.MustCompile(`(?i)\bsensors?\b`),
	regexp.MustCompile(`(?i)\bactuators?\b`),
}

// vaguePhrasingPatterns recognize queries that point at "this page"/"this"
// instead of naming a topic.
var vaguePhrasingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bexplain\s+this\b`),
	regexp.MustCompile(`(?i)\bwhat(?:'s|\s+is)\s+this\b`),
	regexp.MustCompile(`(?i)\bsummarize\s+this\b`),
	regexp.MustCompile(`(?i)\btell\s+me\s+about\s+this\b`),
	regexp.MustCompile(`(?i)\bwhat\s+does\s+this(?:\s+page)?\s+cover\b`),
	regexp.MustCompile(`(?i)\bhelp\s+me\s+understand\s+this\b`),
	regexp.MustCompile(`(?i)\bwhat\s+am\s+i\s+looking\s+at\b`),
	regexp.MustCompile(`(?i)\bdescribe\s+this\b`),
	regexp.MustCompile(`(?i)\boverview\b`),
	regexp.MustCompile(`(?i)\bbreak\s+this\s+down\b`),
	regexp.MustCompile(`(?i)\bwhat(?:'s|\s+is)\s+going\s+on\s+here\b`),
	regexp.MustCompile(`(?i)\bthis\s+page\b`),
}

// IsVagueContextualQuery reports whether query refers generically to the
// current page rather than naming a topic, and so should be answered from
// externally supplied page content instead of vector retrieval. Specificity
// always wins: any technical term disqualifies. Empty input is never vague.
func IsVagueContextualQuery(query string) bool {
	if strings.TrimSpace(query) == "" {
		return false
	}

	for _, pattern := range specificTermPatterns {
		if pattern.MatchString(query) {
			return false
		}
	}
	for _, pattern := range vaguePhrasingPatterns {
		if pattern.MatchString(query) {
			return true
		}
	}
	return false
}

package rag

import (
	"fmt"
	"strings"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

// DefaultCharsPerToken approximates tokens as characters / 4. It is a
// documented simplification, not a tokenizer; keep it a parameter so an
// exact tokenizer can replace the estimate without changing the contract.
const DefaultCharsPerToken = 4

// Selection sufficiency floor: a selection must carry at least this many
// characters and words to be answerable on its own.
const (
	minSelectionChars = 20
	minSelectionWords = 3
)

// ContextBuilder assembles token-budgeted context strings from retrieved
// chunks and conversation history. All methods are pure.
type ContextBuilder struct {
	CharsPerToken int
}

// NewContextBuilder returns a builder with the default chars-per-token
// estimate.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{CharsPerToken: DefaultCharsPerToken}
}

func (cb *ContextBuilder) charsPerToken() int {
	if cb.CharsPerToken > 0 {
		return cb.CharsPerToken
	}
	return DefaultCharsPerToken
}

// BuildContext concatenates chunks as "[heading]\ntext\n" in input order
// under a token budget. When the next chunk would exceed the budget, a
// truncated ellipsis-terminated fragment is appended only if at least 50
// characters of budget remain; later chunks are dropped, never reordered.
func (cb *ContextBuilder) BuildContext(chunks []ContentChunk, maxTokens int) string {
	if len(chunks) == 0 {
		return ""
	}

	maxChars := maxTokens * cb.charsPerToken()

	var parts []string
	currentLength := 0

	for _, chunk := range chunks {
		chunkText := fmt.Sprintf("[%s]\n%s\n", chunk.Heading, chunk.Text)
		chunkLength := len(chunkText)

		if currentLength+chunkLength > maxChars {
			remaining := maxChars - currentLength
			if remaining > 50 {
				parts = append(parts, chunkText[:remaining-3]+"...")
			}
			break
		}

		parts = append(parts, chunkText)
		currentLength += chunkLength
	}

	return strings.Join(parts, "\n")
}

// StitchCrossChapter combines chunks in input order with a
// "--- From Chapter N ---" marker before the first chunk and before every
// chapter transition. Chunks sharing a chapter get no marker between them.
// This is the builder used on the request path; it supersedes the plain
// budgeted BuildContext for citation context.
func (cb *ContextBuilder) StitchCrossChapter(chunks []ContentChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var parts []string
	currentChapter := -1

	for _, chunk := range chunks {
		if currentChapter == -1 {
			parts = append(parts, fmt.Sprintf("--- From Chapter %d ---\n", chunk.ChapterID))
		} else if chunk.ChapterID != currentChapter {
			parts = append(parts, fmt.Sprintf("\n--- From Chapter %d ---\n", chunk.ChapterID))
		}
		currentChapter = chunk.ChapterID

		parts = append(parts, fmt.Sprintf("[%s]\n%s\n", chunk.Heading, chunk.Text))
	}

	return strings.Join(parts, "\n")
}

// SummarizeHistory compresses conversation history under a token budget. The
// last two turns are always preserved verbatim; older turns collapse to a
// count-only placeholder when the recent text leaves room. No model call is
// made here.
func (cb *ContextBuilder) SummarizeHistory(history []types.ChatMessage, maxTokens int) string {
	if len(history) == 0 {
		return ""
	}

	maxChars := maxTokens * cb.charsPerToken()

	recentCount := 2
	if len(history) < recentCount {
		recentCount = len(history)
	}
	recent := history[len(history)-recentCount:]
	older := history[:len(history)-recentCount]

	var sb strings.Builder
	for _, msg := range recent {
		sb.WriteString(capitalizeRole(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	recentText := sb.String()

	if len(recentText) < maxChars && len(older) > 0 {
		summary := fmt.Sprintf("[Previous %d messages summarized]\n", len(older))
		if len(summary)+len(recentText) < maxChars {
			return summary + recentText
		}
	}

	if len(recentText) > maxChars {
		// A budget too small for even the truncation marker yields nothing.
		if maxChars <= 3 {
			return ""
		}
		recentText = recentText[:maxChars-3] + "..."
	}
	return recentText
}

// CheckSelectionSufficiency reports whether selected text is substantial
// enough to answer from: at least 20 characters and 3 words. The decision is
// independent of the question being asked about the selection.
func CheckSelectionSufficiency(selectedText string) bool {
	trimmed := strings.TrimSpace(selectedText)
	return len(trimmed) >= minSelectionChars && len(strings.Fields(trimmed)) >= minSelectionWords
}

func capitalizeRole(role types.MessageRole) string {
	s := string(role)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

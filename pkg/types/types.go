// Package types defines the request, response, and streaming schemas shared
// by the transport layer and the RAG core.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Persona identifies a learner profile that tunes explanation style. It is
// distinct from the corpus-side persona tag used for content filtering.
type Persona string

const (
	PersonaExplorer Persona = "Explorer"
	PersonaBuilder  Persona = "Builder"
	PersonaEngineer Persona = "Engineer"
	PersonaDefault  Persona = "Default"
)

// Valid reports whether p is one of the four known personas.
func (p Persona) Valid() bool {
	switch p {
	case PersonaExplorer, PersonaBuilder, PersonaEngineer, PersonaDefault:
		return true
	}
	return false
}

// QueryType scopes a chat query.
type QueryType string

const (
	// QueryGlobal searches the entire corpus.
	QueryGlobal QueryType = "global"
	// QueryPage prioritizes the chapter the learner is currently viewing.
	QueryPage QueryType = "page"
	// QuerySelection answers from learner-highlighted text only.
	QuerySelection QueryType = "selection"
)

// Valid reports whether q is a known query type.
func (q QueryType) Valid() bool {
	switch q {
	case QueryGlobal, QueryPage, QuerySelection:
		return true
	}
	return false
}

// MessageRole identifies the author of a conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Citation is a learner-facing source reference.
type Citation struct {
	Chapter        int     `json:"chapter"`
	Section        string  `json:"section"`
	Heading        string  `json:"heading"`
	Quote          string  `json:"quote"`
	Link           string  `json:"link"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ChatMessage is one turn of conversation history handed to the orchestrator.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ChatRequest is the canonical chat request. The transport layer validates it
// before any field reaches the core.
type ChatRequest struct {
	Message        string    `json:"message"`
	SessionID      string    `json:"session_id,omitempty"`
	Persona        Persona   `json:"persona,omitempty"`
	QueryType      QueryType `json:"query_type,omitempty"`
	CurrentChapter int       `json:"current_chapter,omitempty"`
	SelectedText   string    `json:"selected_text,omitempty"`
}

const (
	maxMessageLength      = 2000
	maxSelectedTextLength = 2000
	maxChapter            = 20
)

// Normalize fills defaulted fields in place.
func (r *ChatRequest) Normalize() {
	r.Message = strings.TrimSpace(r.Message)
	if r.Persona == "" {
		r.Persona = PersonaDefault
	}
	if r.QueryType == "" {
		r.QueryType = QueryGlobal
	}
}

// Validate checks field constraints. Callers should Normalize first.
func (r *ChatRequest) Validate() error {
	if r.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(r.Message) > maxMessageLength {
		return fmt.Errorf("message exceeds %d characters", maxMessageLength)
	}
	if !r.Persona.Valid() {
		return fmt.Errorf("unknown persona %q", r.Persona)
	}
	if !r.QueryType.Valid() {
		return fmt.Errorf("unknown query_type %q", r.QueryType)
	}
	if r.CurrentChapter != 0 && (r.CurrentChapter < 1 || r.CurrentChapter > maxChapter) {
		return fmt.Errorf("current_chapter must be between 1 and %d", maxChapter)
	}
	if len(r.SelectedText) > maxSelectedTextLength {
		return fmt.Errorf("selected_text exceeds %d characters", maxSelectedTextLength)
	}
	if r.QueryType == QuerySelection && strings.TrimSpace(r.SelectedText) == "" {
		return fmt.Errorf("selected_text is required for selection queries")
	}
	return nil
}

// ChatResponse is the blocking (non-streamed) chat reply. Citations never
// exceed five entries.
type ChatResponse struct {
	SessionID           string     `json:"session_id"`
	MessageID           string     `json:"message_id"`
	Content             string     `json:"content"`
	Citations           []Citation `json:"citations"`
	HasSafetyDisclaimer bool       `json:"has_safety_disclaimer"`
	QueryType           QueryType  `json:"query_type"`
	IsSelectionScoped   bool       `json:"is_selection_scoped"`
}

// StreamChunkType tags one unit of the generation output stream.
type StreamChunkType string

const (
	ChunkContent  StreamChunkType = "content"
	ChunkCitation StreamChunkType = "citation"
	ChunkDone     StreamChunkType = "done"
	ChunkError    StreamChunkType = "error"
)

// StreamChunk is one unit of the generation output stream. Exactly the fields
// for its Type are set; Content preserves provider whitespace verbatim.
type StreamChunk struct {
	Type     StreamChunkType `json:"type"`
	Content  string          `json:"content,omitempty"`
	Citation *Citation       `json:"citation,omitempty"`
	Error    string          `json:"error,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ErrorResponse is the wire shape for request failures.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateSessionRequest starts a new chat session.
type CreateSessionRequest struct {
	Persona        Persona `json:"persona,omitempty"`
	CurrentChapter int     `json:"current_chapter,omitempty"`
	CurrentPage    string  `json:"current_page,omitempty"`
}

// SessionResponse describes a chat session.
type SessionResponse struct {
	ID             string    `json:"id"`
	Persona        Persona   `json:"persona"`
	CurrentChapter int       `json:"current_chapter,omitempty"`
	CurrentPage    string    `json:"current_page,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	IsActive       bool      `json:"is_active"`
}

// MessageSummary is one persisted message in a session listing.
type MessageSummary struct {
	ID                  string      `json:"id"`
	Role                MessageRole `json:"role"`
	Content             string      `json:"content"`
	CreatedAt           time.Time   `json:"created_at"`
	QueryType           QueryType   `json:"query_type"`
	Citations           []Citation  `json:"citations,omitempty"`
	HasSafetyDisclaimer bool        `json:"has_safety_disclaimer,omitempty"`
}

// MessageListResponse is a cursor-paginated message listing.
type MessageListResponse struct {
	Messages   []MessageSummary `json:"messages"`
	HasMore    bool             `json:"has_more"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Package handlers exposes the chat backend over HTTP: a blocking JSON
// endpoint, a Server-Sent Events stream, a WebSocket channel, and session
// CRUD. All request validation happens here so the core packages only see
// canonical requests, and all upstream faults are mapped to fixed
// learner-facing bodies before they cross the wire.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/agent"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/llm"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/monitoring"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/rag"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// OutOfScopeStreamMessage is the short out-of-scope notice used on the
// streaming transports; the blocking endpoint returns the longer guidance
// text emitted by the turn runner.
const OutOfScopeStreamMessage = "I don't have information about this topic in the textbook."

const (
	maxRequestBody = 64 * 1024

	// defaultHistoryLimit caps the conversation turns replayed to the model.
	defaultHistoryLimit = 20

	// defaultPageContentLimit caps the page text a WebSocket client may
	// attach as context.
	defaultPageContentLimit = 8000
)

// TurnRunner executes one chat turn. The concrete agent runner satisfies it;
// tests substitute fakes.
type TurnRunner interface {
	Run(ctx context.Context, req agent.TurnRequest) (<-chan types.StreamChunk, <-chan agent.TurnResult)
}

// Config holds chat handler configuration.
type Config struct {
	RequestTimeout   time.Duration `json:"request_timeout"`
	HistoryLimit     int           `json:"history_limit"`
	PageContentLimit int           `json:"page_content_limit"`

	// AllowedOrigins gates WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins"`
}

func getDefaultHandlerConfig() *Config {
	return &Config{
		RequestTimeout:   60 * time.Second,
		HistoryLimit:     defaultHistoryLimit,
		PageContentLimit: defaultPageContentLimit,
	}
}

// ChatHandler serves the chat endpoints.
type ChatHandler struct {
	runner  TurnRunner
	store   *store.Store
	metrics *monitoring.Metrics
	config  *Config
	logger  *slog.Logger
}

// NewChatHandler creates the chat handler. config may be nil for defaults.
func NewChatHandler(runner TurnRunner, st *store.Store, metrics *monitoring.Metrics, config *Config) *ChatHandler {
	if config == nil {
		config = getDefaultHandlerConfig()
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaultHistoryLimit
	}
	if config.PageContentLimit <= 0 {
		config.PageContentLimit = defaultPageContentLimit
	}
	return &ChatHandler{
		runner:  runner,
		store:   st,
		metrics: metrics,
		config:  config,
		logger:  slog.Default().With("component", "chat-handler"),
	}
}

// RegisterRoutes attaches the chat endpoints to router.
func (h *ChatHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/chat", h.HandleChat).Methods(http.MethodPost)
	router.HandleFunc("/chat/stream", h.HandleChatStream).Methods(http.MethodPost)
	router.HandleFunc("/ws/chat/{session_id}", h.HandleWebSocket).Methods(http.MethodGet)
}

// decodeChatRequest reads, normalizes, and validates the request body.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (*types.ChatRequest, bool) {
	var req types.ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be valid JSON.")
		return nil, false
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return nil, false
	}
	return &req, true
}

// resolveSession loads the referenced session or creates a new one.
func (h *ChatHandler) resolveSession(ctx context.Context, req *types.ChatRequest) (*store.Session, error) {
	if req.SessionID != "" {
		return h.store.GetSession(ctx, req.SessionID)
	}
	return h.store.CreateSession(ctx, req.Persona, req.CurrentChapter, "")
}

// loadHistory returns the session's recent turns as model messages, oldest
// first, bounded by the history limit.
func (h *ChatHandler) loadHistory(ctx context.Context, sessionID string) []llm.Message {
	summaries, err := h.store.ListMessages(ctx, sessionID, 0)
	if err != nil {
		h.logger.Warn("Failed to load history, continuing without it", "session_id", sessionID, "error", err)
		return nil
	}
	if len(summaries) > h.config.HistoryLimit {
		summaries = summaries[len(summaries)-h.config.HistoryLimit:]
	}
	history := make([]llm.Message, 0, len(summaries))
	for _, msg := range summaries {
		history = append(history, llm.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return history
}

// buildSearchFilters mirrors retrieval scoping: a filter exists only when the
// learner is on a known chapter or has a non-default persona.
func buildSearchFilters(currentChapter int, persona types.Persona) *rag.SearchFilters {
	filterPersona := persona != "" && persona != types.PersonaDefault
	if currentChapter == 0 && !filterPersona {
		return nil
	}
	f := &rag.SearchFilters{}
	if currentChapter != 0 {
		chapter := currentChapter
		f.ChapterID = &chapter
	}
	if filterPersona {
		p := string(persona)
		f.Persona = &p
	}
	return f
}

// isPageScoped reports whether retrieval should use the page-scoped
// threshold: explicit page queries, or any non-selection query issued while
// the learner is on a known chapter.
func isPageScoped(queryType types.QueryType, currentChapter int) bool {
	if queryType == types.QueryPage {
		return true
	}
	return currentChapter != 0 && queryType != types.QuerySelection
}

// buildTurnRequest assembles the runner request for one validated query.
func buildTurnRequest(req *types.ChatRequest, history []llm.Message, pageContent string) agent.TurnRequest {
	return agent.TurnRequest{
		Message:      req.Message,
		Persona:      req.Persona,
		QueryType:    req.QueryType,
		Filters:      buildSearchFilters(req.CurrentChapter, req.Persona),
		PageScoped:   isPageScoped(req.QueryType, req.CurrentChapter),
		SelectedText: req.SelectedText,
		PageContent:  pageContent,
		History:      history,
	}
}

// upstreamErrorBody maps an error classification to the fixed 503 body.
func upstreamErrorBody(errType string) (code, message string) {
	if errType == string(svcerr.ErrorTypeIndexUnavailable) {
		return "INDEX_UNAVAILABLE", agent.IndexUnavailableMessage
	}
	return "SERVICE_UNAVAILABLE", agent.ServiceUnavailableMessage
}

// turnOutcome classifies a finished turn for metrics.
func turnOutcome(result agent.TurnResult, failed bool) string {
	switch {
	case failed:
		return monitoring.OutcomeError
	case result.IsOutOfScope:
		return monitoring.OutcomeOutOfScope
	case result.IsInsufficientSelection:
		return monitoring.OutcomeInsufficientSelection
	case result.HighRisk:
		return monitoring.OutcomeRefusedHighRisk
	default:
		return monitoring.OutcomeAnswered
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: message})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/agent"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

// HandleChat serves the blocking chat endpoint. The full turn runs to
// completion before a single JSON response is written.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.RequestTimeout)
	defer cancel()

	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	session, err := h.resolveSession(ctx, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "The session does not exist or has expired.")
			return
		}
		h.logger.Error("Failed to resolve session", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}

	history := h.loadHistory(ctx, session.ID)
	userMsg, err := h.store.SaveMessage(ctx, session.ID, types.RoleUser, req.Message, req.QueryType, req.SelectedText, false, nil)
	if err != nil {
		h.logger.Error("Failed to save user message", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	if err := h.store.RecordQueryEvent(ctx, session.ID, userMsg.ID, string(req.Persona), req.CurrentChapter, string(req.QueryType)); err != nil {
		h.logger.Warn("Failed to record query event", "error", err)
	}

	start := time.Now()
	chunks, results := h.runner.Run(ctx, buildTurnRequest(req, history, ""))
	result := <-results
	h.metrics.RecordRetrieval(time.Since(start))

	var content strings.Builder
	var firstToken time.Duration
	var errChunk *types.StreamChunk
	for chunk := range chunks {
		switch chunk.Type {
		case types.ChunkContent:
			if firstToken == 0 {
				firstToken = time.Since(start)
			}
			content.WriteString(chunk.Content)
		case types.ChunkError:
			c := chunk
			errChunk = &c
		}
	}

	h.metrics.RecordQuery(string(req.QueryType), turnOutcome(result, errChunk != nil))
	if errChunk != nil {
		code, message := upstreamErrorBody(errChunk.Error)
		writeError(w, http.StatusServiceUnavailable, code, message)
		return
	}

	hasDisclaimer := result.SafetyDisclaimer != ""
	assistant, err := h.store.SaveMessage(ctx, session.ID, types.RoleAssistant, content.String(), req.QueryType, "", hasDisclaimer, result.Citations)
	if err != nil {
		h.logger.Error("Failed to save assistant message", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	h.recordTurn(ctx, session.ID, assistant.ID, req, result, firstToken, time.Since(start))

	writeJSON(w, http.StatusOK, types.ChatResponse{
		SessionID:           session.ID,
		MessageID:           assistant.ID,
		Content:             content.String(),
		Citations:           nonNilCitations(result.Citations),
		HasSafetyDisclaimer: hasDisclaimer,
		QueryType:           req.QueryType,
		IsSelectionScoped:   req.QueryType == types.QuerySelection,
	})
}

// HandleChatStream serves the chat endpoint as a Server-Sent Events stream.
// Event order on the wire: session, citations, content, done.
func (h *ChatHandler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming is not supported.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.RequestTimeout)
	defer cancel()

	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	session, err := h.resolveSession(ctx, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "The session does not exist or has expired.")
			return
		}
		h.logger.Error("Failed to resolve session", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}

	history := h.loadHistory(ctx, session.ID)
	userMsg, err := h.store.SaveMessage(ctx, session.ID, types.RoleUser, req.Message, req.QueryType, req.SelectedText, false, nil)
	if err != nil {
		h.logger.Error("Failed to save user message", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	if err := h.store.RecordQueryEvent(ctx, session.ID, userMsg.ID, string(req.Persona), req.CurrentChapter, string(req.QueryType)); err != nil {
		h.logger.Warn("Failed to record query event", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	messageID := uuid.NewString()
	writeSSE(w, flusher, map[string]string{
		"type":       "session",
		"session_id": session.ID,
		"message_id": messageID,
	})

	start := time.Now()
	chunks, results := h.runner.Run(ctx, buildTurnRequest(req, history, ""))
	result := <-results
	h.metrics.RecordRetrieval(time.Since(start))

	var content strings.Builder
	var firstToken time.Duration
	failed := false

	if result.IsOutOfScope {
		for range chunks {
		}
		content.WriteString(OutOfScopeStreamMessage)
		writeSSE(w, flusher, map[string]string{"type": "content", "content": OutOfScopeStreamMessage})
		writeSSE(w, flusher, map[string]string{"type": "done"})
	} else {
		for chunk := range chunks {
			switch chunk.Type {
			case types.ChunkCitation:
				writeSSE(w, flusher, sseCitationEvent(chunk.Citation))
			case types.ChunkContent:
				if firstToken == 0 {
					firstToken = time.Since(start)
				}
				content.WriteString(chunk.Content)
				writeSSE(w, flusher, map[string]string{"type": "content", "content": chunk.Content})
			case types.ChunkDone:
				writeSSE(w, flusher, map[string]string{"type": "done"})
			case types.ChunkError:
				failed = true
				writeSSE(w, flusher, map[string]string{"type": "error", "error": chunk.Error, "message": chunk.Message})
			}
		}
	}

	h.metrics.RecordQuery(string(req.QueryType), turnOutcome(result, failed))
	if failed {
		return
	}

	hasDisclaimer := result.SafetyDisclaimer != ""
	if _, err := h.store.SaveMessageWithID(ctx, messageID, session.ID, types.RoleAssistant, content.String(), req.QueryType, "", hasDisclaimer, result.Citations); err != nil {
		h.logger.Error("Failed to save assistant message", "error", err)
		return
	}
	h.recordTurn(ctx, session.ID, messageID, req, result, firstToken, time.Since(start))
}

// recordTurn files the per-turn analytics event and metrics.
func (h *ChatHandler) recordTurn(ctx context.Context, sessionID, messageID string, req *types.ChatRequest, result agent.TurnResult, firstToken, total time.Duration) {
	metrics := store.ResponseMetrics{
		HasCitations:  len(result.Citations) > 0,
		HasDisclaimer: result.SafetyDisclaimer != "",
		FirstTokenMs:  firstToken.Milliseconds(),
		TotalMs:       total.Milliseconds(),
	}
	if err := h.store.RecordResponseEvent(ctx, sessionID, messageID, string(req.Persona), req.CurrentChapter, string(req.QueryType), metrics); err != nil {
		h.logger.Warn("Failed to record response event", "error", err)
	}

	h.metrics.RecordCitations(len(result.Citations))
	h.metrics.RecordTurn(total)
	if firstToken > 0 {
		h.metrics.RecordFirstToken(firstToken)
	}
}

// sseCitationEvent builds the citation event payload, relevance score
// included.
func sseCitationEvent(citation *types.Citation) map[string]interface{} {
	return map[string]interface{}{
		"type":     "citation",
		"citation": citation,
	}
}

// writeSSE emits one event in "data: {json}" framing and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func nonNilCitations(citations []types.Citation) []types.Citation {
	if citations == nil {
		return []types.Citation{}
	}
	return citations
}

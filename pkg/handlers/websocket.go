package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/llm"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/rag"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

// wsCitation is the WebSocket wire shape for a citation. The relevance score
// stays server-side on this transport.
type wsCitation struct {
	Chapter int    `json:"chapter"`
	Section string `json:"section"`
	Heading string `json:"heading"`
	Quote   string `json:"quote"`
	Link    string `json:"link"`
}

// wsConn holds per-connection state. Frames are handled sequentially on the
// read loop, so no locking is needed.
type wsConn struct {
	conn    *websocket.Conn
	session *store.Session

	// Learner page state from "context" frames.
	currentChapter int
	currentPage    string
	pageContent    string

	history []llm.Message
}

// HandleWebSocket upgrades the connection and serves the bidirectional chat
// protocol for an existing session.
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "The session does not exist or has expired.")
			return
		}
		h.logger.Error("Failed to load session for websocket", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkWSOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.metrics.WSConnected()
	defer h.metrics.WSDisconnected()

	c := &wsConn{conn: conn, session: session}
	if session.CurrentChapter.Valid {
		c.currentChapter = int(session.CurrentChapter.Int64)
	}

	if err := conn.WriteJSON(map[string]string{"type": "welcome", "session_id": session.ID}); err != nil {
		return
	}

	h.readLoop(r.Context(), c)
}

// checkWSOrigin applies the configured origin allowlist to the upgrade
// request. Absent an allowlist, any origin may connect.
func (h *ChatHandler) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *ChatHandler) readLoop(ctx context.Context, c *wsConn) {
	for {
		var envelope types.WSEnvelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocket closed unexpectedly", "session_id", c.session.ID, "error", err)
			}
			return
		}

		switch envelope.Type {
		case types.WSInboundPing:
			if err := c.conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				return
			}
		case types.WSInboundContext:
			h.handleContextFrame(c, &envelope)
		case types.WSInboundMessage:
			h.handleMessageFrame(ctx, c, &envelope)
		default:
			h.writeWSError(c, "INVALID_REQUEST", "Unknown frame type.")
		}
	}
}

func (h *ChatHandler) handleContextFrame(c *wsConn, envelope *types.WSEnvelope) {
	data, err := envelope.DecodeContext()
	if err != nil {
		h.writeWSError(c, "INVALID_REQUEST", "Invalid context payload.")
		return
	}
	if data.CurrentChapter != 0 {
		c.currentChapter = data.CurrentChapter
	}
	if data.CurrentPage != "" {
		c.currentPage = data.CurrentPage
	}
	if data.PageContent != "" {
		content := data.PageContent
		if len(content) > h.config.PageContentLimit {
			content = content[:h.config.PageContentLimit]
		}
		c.pageContent = content
	}
}

func (h *ChatHandler) handleMessageFrame(ctx context.Context, c *wsConn, envelope *types.WSEnvelope) {
	data, err := envelope.DecodeMessage()
	if err != nil {
		h.writeWSError(c, "INVALID_REQUEST", "Invalid message payload.")
		return
	}

	persona := data.Persona
	if persona == "" {
		persona = c.session.Persona
	}
	req := &types.ChatRequest{
		Message:        data.Content,
		SessionID:      c.session.ID,
		Persona:        persona,
		QueryType:      data.QueryType,
		CurrentChapter: data.CurrentChapter,
		SelectedText:   data.SelectedText,
	}
	req.Normalize()
	// The page context chapter carries over when the frame names none.
	if req.CurrentChapter == 0 {
		req.CurrentChapter = c.currentChapter
	}
	if err := req.Validate(); err != nil {
		h.writeWSError(c, "INVALID_REQUEST", err.Error())
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, h.config.RequestTimeout)
	defer cancel()

	// Page content is injected only for vague contextual questions; specific
	// queries rely on retrieval alone.
	pageContent := ""
	if c.pageContent != "" && rag.IsVagueContextualQuery(req.Message) {
		pageContent = c.pageContent
	}

	history := append([]llm.Message(nil), c.history...)
	c.history = appendHistory(c.history, llm.Message{Role: "user", Content: req.Message}, h.config.HistoryLimit)

	userMsg, err := h.store.SaveMessage(turnCtx, c.session.ID, types.RoleUser, req.Message, req.QueryType, req.SelectedText, false, nil)
	if err != nil {
		h.logger.Error("Failed to save user message", "error", err)
		h.writeWSError(c, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	if err := h.store.RecordQueryEvent(turnCtx, c.session.ID, userMsg.ID, string(req.Persona), req.CurrentChapter, string(req.QueryType)); err != nil {
		h.logger.Warn("Failed to record query event", "error", err)
	}

	messageID := uuid.NewString()
	if err := c.conn.WriteJSON(map[string]string{"type": "message_start", "message_id": messageID}); err != nil {
		return
	}

	start := time.Now()
	chunks, results := h.runner.Run(turnCtx, buildTurnRequest(req, history, pageContent))
	result := <-results
	h.metrics.RecordRetrieval(time.Since(start))

	var content strings.Builder
	var firstToken time.Duration
	failed := false

	if result.IsOutOfScope {
		for range chunks {
		}
		content.WriteString(OutOfScopeStreamMessage)
		failed = c.conn.WriteJSON(map[string]string{"type": "content", "content": OutOfScopeStreamMessage}) != nil ||
			c.conn.WriteJSON(map[string]string{"type": "done"}) != nil
	} else {
		for chunk := range chunks {
			var writeErr error
			switch chunk.Type {
			case types.ChunkCitation:
				writeErr = c.conn.WriteJSON(map[string]interface{}{
					"type": "citation",
					"citation": wsCitation{
						Chapter: chunk.Citation.Chapter,
						Section: chunk.Citation.Section,
						Heading: chunk.Citation.Heading,
						Quote:   chunk.Citation.Quote,
						Link:    chunk.Citation.Link,
					},
				})
			case types.ChunkContent:
				if firstToken == 0 {
					firstToken = time.Since(start)
				}
				content.WriteString(chunk.Content)
				writeErr = c.conn.WriteJSON(map[string]string{"type": "content", "content": chunk.Content})
			case types.ChunkDone:
				writeErr = c.conn.WriteJSON(map[string]string{"type": "done"})
			case types.ChunkError:
				failed = true
				writeErr = c.conn.WriteJSON(map[string]string{"type": "error", "error": chunk.Error, "message": chunk.Message})
			}
			if writeErr != nil {
				h.logger.Warn("WebSocket write failed mid-turn", "session_id", c.session.ID, "error", writeErr)
				failed = true
				break
			}
		}
	}

	h.metrics.RecordQuery(string(req.QueryType), turnOutcome(result, failed))
	if failed {
		return
	}

	c.history = appendHistory(c.history, llm.Message{Role: "assistant", Content: content.String()}, h.config.HistoryLimit)

	hasDisclaimer := result.SafetyDisclaimer != ""
	if _, err := h.store.SaveMessageWithID(turnCtx, messageID, c.session.ID, types.RoleAssistant, content.String(), req.QueryType, "", hasDisclaimer, result.Citations); err != nil {
		h.logger.Error("Failed to save assistant message", "error", err)
		return
	}
	h.recordTurn(turnCtx, c.session.ID, messageID, req, result, firstToken, time.Since(start))
}

// appendHistory appends one turn and trims to the most recent limit entries.
func appendHistory(history []llm.Message, msg llm.Message, limit int) []llm.Message {
	history = append(history, msg)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func (h *ChatHandler) writeWSError(c *wsConn, code, message string) {
	if err := c.conn.WriteJSON(map[string]string{"type": "error", "error": code, "message": message}); err != nil {
		h.logger.Warn("Failed to write websocket error frame", "error", err)
	}
}

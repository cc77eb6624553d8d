package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// SessionHandler serves session CRUD.
type SessionHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSessionHandler creates the session handler.
func NewSessionHandler(st *store.Store) *SessionHandler {
	return &SessionHandler{
		store:  st,
		logger: slog.Default().With("component", "session-handler"),
	}
}

// RegisterRoutes attaches the session endpoints to router.
func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions", h.HandleCreate).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{session_id}", h.HandleGet).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{session_id}", h.HandleEnd).Methods(http.MethodDelete)
	router.HandleFunc("/sessions/{session_id}/messages", h.HandleListMessages).Methods(http.MethodGet)
}

// HandleCreate starts a new chat session.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be valid JSON.")
		return
	}

	session, err := h.store.CreateSession(r.Context(), req.Persona, req.CurrentChapter, req.CurrentPage)
	if err != nil {
		if svcerr.IsType(err, svcerr.ErrorTypeInvalidInput) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		h.logger.Error("Failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(session))
}

// HandleGet returns one session.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.Context(), mux.Vars(r)["session_id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "The session does not exist or has expired.")
			return
		}
		h.logger.Error("Failed to load session", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(session))
}

// HandleEnd marks a session inactive. Ending an already-ended or unknown
// session succeeds.
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.store.EndSession(r.Context(), mux.Vars(r)["session_id"]); err != nil {
		h.logger.Error("Failed to end session", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListMessages returns a session's messages in chronological order.
func (h *SessionHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "The session does not exist or has expired.")
			return
		}
		h.logger.Error("Failed to load session", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}

	limit := 50
	if val := r.URL.Query().Get("limit"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed < 1 || parsed > 200 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	messages, err := h.store.ListMessages(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong. Please try again later.")
		return
	}
	writeJSON(w, http.StatusOK, types.MessageListResponse{
		Messages: messages,
		HasMore:  len(messages) == limit,
	})
}

func sessionResponse(session *store.Session) types.SessionResponse {
	resp := types.SessionResponse{
		ID:        session.ID,
		Persona:   session.Persona,
		CreatedAt: session.CreatedAt,
		IsActive:  session.IsActive,
	}
	if session.CurrentChapter.Valid {
		resp.CurrentChapter = int(session.CurrentChapter.Int64)
	}
	if session.CurrentPage.Valid {
		resp.CurrentPage = session.CurrentPage.String
	}
	return resp
}

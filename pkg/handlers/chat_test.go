package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/agent"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/monitoring"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

type fakeRunner struct {
	mu     sync.Mutex
	got    []agent.TurnRequest
	result agent.TurnResult
	chunks []types.StreamChunk
}

func (f *fakeRunner) Run(ctx context.Context, req agent.TurnRequest) (<-chan types.StreamChunk, <-chan agent.TurnResult) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()

	chunks := make(chan types.StreamChunk, len(f.chunks))
	results := make(chan agent.TurnResult, 1)
	results <- f.result
	for _, c := range f.chunks {
		chunks <- c
	}
	close(chunks)
	close(results)
	return chunks, results
}

func (f *fakeRunner) lastRequest(t *testing.T) agent.TurnRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.got)
	return f.got[len(f.got)-1]
}

func newTestChatHandler(t *testing.T, runner TurnRunner) (*ChatHandler, *store.Store) {
	t.Helper()
	st, err := store.NewStore(&store.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewChatHandler(runner, st, monitoring.NewMetrics(), nil), st
}

func testCitation() types.Citation {
	return types.Citation{
		Chapter:        3,
		Section:        "3.2",
		Heading:        "ROS 2 Nodes",
		Quote:          "A node is the basic unit of computation.",
		Link:           "/module-1/chapter-3#ros-2-nodes",
		RelevanceScore: 0.82,
	}
}

func answeredRunner() *fakeRunner {
	cit := testCitation()
	return &fakeRunner{
		result: agent.TurnResult{Citations: []types.Citation{cit}},
		chunks: []types.StreamChunk{
			{Type: types.ChunkCitation, Citation: &cit},
			{Type: types.ChunkContent, Content: "A node is "},
			{Type: types.ChunkContent, Content: "the basic unit."},
			{Type: types.ChunkDone},
		},
	}
}

func postChat(t *testing.T, h http.HandlerFunc, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body)))
	return rec
}

func TestHandleChat(t *testing.T) {
	t.Run("AnsweredTurn", func(t *testing.T) {
		runner := answeredRunner()
		h, st := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: "What is a ROS 2 node?"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "A node is the basic unit.", resp.Content)
		assert.NotEmpty(t, resp.SessionID)
		assert.NotEmpty(t, resp.MessageID)
		require.Len(t, resp.Citations, 1)
		assert.Equal(t, 3, resp.Citations[0].Chapter)
		assert.False(t, resp.HasSafetyDisclaimer)
		assert.Equal(t, types.QueryGlobal, resp.QueryType)

		messages, err := st.ListMessages(context.Background(), resp.SessionID, 0)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, types.RoleUser, messages[0].Role)
		assert.Equal(t, types.RoleAssistant, messages[1].Role)
		assert.Equal(t, resp.MessageID, messages[1].ID)
		assert.Len(t, messages[1].Citations, 1)
	})

	t.Run("ReusesExistingSession", func(t *testing.T) {
		runner := answeredRunner()
		h, st := newTestChatHandler(t, runner)
		session, err := st.CreateSession(context.Background(), types.PersonaBuilder, 0, "")
		require.NoError(t, err)

		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: "What is a node?", SessionID: session.ID})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, session.ID, resp.SessionID)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		h, _ := newTestChatHandler(t, answeredRunner())
		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: "hi there", SessionID: "missing"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var resp types.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "SESSION_NOT_FOUND", resp.Error)
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		h, _ := newTestChatHandler(t, answeredRunner())
		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp types.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INVALID_REQUEST", resp.Error)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		h, _ := newTestChatHandler(t, answeredRunner())
		rec := httptest.NewRecorder()
		h.HandleChat(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("OutOfScopeReturnsGuidance", func(t *testing.T) {
		runner := &fakeRunner{
			result: agent.TurnResult{IsOutOfScope: true},
			chunks: []types.StreamChunk{
				{Type: types.ChunkContent, Content: agent.OutOfScopeMessage},
				{Type: types.ChunkDone},
			},
		}
		h, _ := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: "What is the capital of France?"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, agent.OutOfScopeMessage, resp.Content)
		assert.Empty(t, resp.Citations)
	})

	t.Run("IndexFaultMapsTo503", func(t *testing.T) {
		runner := &fakeRunner{
			chunks: []types.StreamChunk{{
				Type:    types.ChunkError,
				Error:   string(svcerr.ErrorTypeIndexUnavailable),
				Message: agent.IndexUnavailableMessage,
			}},
		}
		h, _ := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: "What is a node?"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp types.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INDEX_UNAVAILABLE", resp.Error)
		assert.Equal(t, "The search index is temporarily unavailable. Please try again later.", resp.Message)
	})

	t.Run("GenerationFaultMapsTo503", func(t *testing.T) {
		runner := &fakeRunner{
			chunks: []types.StreamChunk{{
				Type:    types.ChunkError,
				Error:   string(svcerr.ErrorTypeGenerationUnavailable),
				Message: agent.ServiceUnavailableMessage,
			}},
		}
		h, _ := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: "What is a node?"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp types.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error)
		assert.Equal(t, "The AI service is temporarily unavailable. Please try again later.", resp.Message)
	})

	t.Run("RecordsRetrievalLatency", func(t *testing.T) {
		st, err := store.NewStore(&store.Config{Path: ":memory:"})
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		metrics := monitoring.NewMetrics()
		h := NewChatHandler(answeredRunner(), st, metrics, nil)

		rec := postChat(t, h.HandleChat, types.ChatRequest{Message: "What is a node?"})
		require.Equal(t, http.StatusOK, rec.Code)

		scrape := httptest.NewRecorder()
		metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, scrape.Body.String(), "chat_retrieval_duration_seconds_count 1")
	})

	t.Run("SelectionQueryPassedThrough", func(t *testing.T) {
		runner := answeredRunner()
		h, _ := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChat, types.ChatRequest{
			Message:      "Explain this passage",
			QueryType:    types.QuerySelection,
			SelectedText: "Nodes communicate over topics using a publish-subscribe pattern.",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		got := runner.lastRequest(t)
		assert.Equal(t, types.QuerySelection, got.QueryType)
		assert.NotEmpty(t, got.SelectedText)
		assert.False(t, got.PageScoped)
	})
}

func sseEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestHandleChatStream(t *testing.T) {
	t.Run("EventOrder", func(t *testing.T) {
		runner := answeredRunner()
		h, st := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChatStream, types.ChatRequest{Message: "What is a ROS 2 node?"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

		events := sseEvents(t, rec.Body.String())
		require.Len(t, events, 5)
		assert.Equal(t, "session", events[0]["type"])
		assert.NotEmpty(t, events[0]["session_id"])
		assert.NotEmpty(t, events[0]["message_id"])
		assert.Equal(t, "citation", events[1]["type"])
		assert.Equal(t, "content", events[2]["type"])
		assert.Equal(t, "A node is ", events[2]["content"])
		assert.Equal(t, "content", events[3]["type"])
		assert.Equal(t, "done", events[4]["type"])

		citation, ok := events[1]["citation"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, 0.82, citation["relevance_score"])

		// The announced message ID is the persisted assistant message.
		messages, err := st.ListMessages(context.Background(), events[0]["session_id"].(string), 0)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, events[0]["message_id"], messages[1].ID)
		assert.Equal(t, "A node is the basic unit.", messages[1].Content)
	})

	t.Run("OutOfScopeUsesShortNotice", func(t *testing.T) {
		runner := &fakeRunner{
			result: agent.TurnResult{IsOutOfScope: true},
			chunks: []types.StreamChunk{
				{Type: types.ChunkContent, Content: agent.OutOfScopeMessage},
				{Type: types.ChunkDone},
			},
		}
		h, _ := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChatStream, types.ChatRequest{Message: "What is the capital of France?"})
		require.Equal(t, http.StatusOK, rec.Code)

		events := sseEvents(t, rec.Body.String())
		require.Len(t, events, 3)
		assert.Equal(t, "content", events[1]["type"])
		assert.Equal(t, OutOfScopeStreamMessage, events[1]["content"])
		assert.Equal(t, "done", events[2]["type"])
	})

	t.Run("UpstreamFaultStreamsErrorEvent", func(t *testing.T) {
		runner := &fakeRunner{
			chunks: []types.StreamChunk{{
				Type:    types.ChunkError,
				Error:   string(svcerr.ErrorTypeGenerationUnavailable),
				Message: agent.ServiceUnavailableMessage,
			}},
		}
		h, _ := newTestChatHandler(t, runner)

		rec := postChat(t, h.HandleChatStream, types.ChatRequest{Message: "What is a node?"})
		require.Equal(t, http.StatusOK, rec.Code)

		events := sseEvents(t, rec.Body.String())
		require.Len(t, events, 2)
		assert.Equal(t, "error", events[1]["type"])
		assert.Equal(t, string(svcerr.ErrorTypeGenerationUnavailable), events[1]["error"])
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("InvalidRequestBeforeStreaming", func(t *testing.T) {
		h, _ := newTestChatHandler(t, answeredRunner())
		rec := postChat(t, h.HandleChatStream, types.ChatRequest{Message: ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})
}

func TestBuildSearchFilters(t *testing.T) {
	t.Run("NoScope", func(t *testing.T) {
		assert.Nil(t, buildSearchFilters(0, types.PersonaDefault))
		assert.Nil(t, buildSearchFilters(0, ""))
	})

	t.Run("ChapterOnly", func(t *testing.T) {
		f := buildSearchFilters(4, types.PersonaDefault)
		require.NotNil(t, f)
		require.NotNil(t, f.ChapterID)
		assert.Equal(t, 4, *f.ChapterID)
		assert.Nil(t, f.Persona)
	})

	t.Run("PersonaOnly", func(t *testing.T) {
		f := buildSearchFilters(0, types.PersonaEngineer)
		require.NotNil(t, f)
		assert.Nil(t, f.ChapterID)
		require.NotNil(t, f.Persona)
		assert.Equal(t, "Engineer", *f.Persona)
	})

	t.Run("Both", func(t *testing.T) {
		f := buildSearchFilters(2, types.PersonaExplorer)
		require.NotNil(t, f)
		require.NotNil(t, f.ChapterID)
		require.NotNil(t, f.Persona)
	})
}

func TestIsPageScoped(t *testing.T) {
	tests := []struct {
		name      string
		queryType types.QueryType
		chapter   int
		want      bool
	}{
		{"ExplicitPageQuery", types.QueryPage, 0, true},
		{"GlobalOnKnownChapter", types.QueryGlobal, 3, true},
		{"GlobalWithoutChapter", types.QueryGlobal, 0, false},
		{"SelectionIgnoresChapter", types.QuerySelection, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPageScoped(tt.queryType, tt.chapter))
		})
	}
}

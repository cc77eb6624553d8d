// Package store persists chat sessions, messages, citations, and analytics
// events in SQLite. Messages and analytics carry a 24-hour TTL enforced by
// the purge service, not by reads.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// DefaultMessageTTL is the retention window for messages and analytics.
const DefaultMessageTTL = 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id              TEXT PRIMARY KEY,
	persona         TEXT NOT NULL DEFAULT 'Default',
	current_chapter INTEGER,
	current_page    TEXT,
	created_at      DATETIME NOT NULL,
	is_active       INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id                    TEXT PRIMARY KEY,
	session_id            TEXT NOT NULL REFERENCES chat_sessions(id),
	role                  TEXT NOT NULL,
	content               TEXT NOT NULL,
	query_type            TEXT NOT NULL DEFAULT 'global',
	selected_text         TEXT,
	created_at            DATETIME NOT NULL,
	expires_at            DATETIME NOT NULL,
	has_safety_disclaimer INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_expires ON chat_messages(expires_at);

CREATE TABLE IF NOT EXISTS citations (
	id              TEXT PRIMARY KEY,
	message_id      TEXT NOT NULL REFERENCES chat_messages(id),
	chapter         INTEGER NOT NULL,
	section         TEXT NOT NULL,
	heading         TEXT NOT NULL,
	quote           TEXT NOT NULL,
	link            TEXT NOT NULL,
	relevance_score REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_citations_message ON citations(message_id);

CREATE TABLE IF NOT EXISTS analytics_events (
	id             TEXT PRIMARY KEY,
	event_type     TEXT NOT NULL,
	session_id     TEXT NOT NULL,
	message_id     TEXT NOT NULL,
	persona        TEXT NOT NULL,
	chapter        INTEGER,
	query_type     TEXT NOT NULL,
	has_citations  INTEGER,
	has_disclaimer INTEGER,
	first_token_ms INTEGER,
	total_ms       INTEGER,
	created_at     DATETIME NOT NULL,
	expires_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analytics_expires ON analytics_events(expires_at);
`

// Session is one persisted chat session.
type Session struct {
	ID             string         `db:"id"`
	Persona        types.Persona  `db:"persona"`
	CurrentChapter sql.NullInt64  `db:"current_chapter"`
	CurrentPage    sql.NullString `db:"current_page"`
	CreatedAt      time.Time      `db:"created_at"`
	IsActive       bool           `db:"is_active"`
}

// Message is one persisted conversation turn.
type Message struct {
	ID                  string            `db:"id"`
	SessionID           string            `db:"session_id"`
	Role                types.MessageRole `db:"role"`
	Content             string            `db:"content"`
	QueryType           types.QueryType   `db:"query_type"`
	SelectedText        sql.NullString    `db:"selected_text"`
	CreatedAt           time.Time         `db:"created_at"`
	ExpiresAt           time.Time         `db:"expires_at"`
	HasSafetyDisclaimer bool              `db:"has_safety_disclaimer"`
}

// CitationRow is one persisted citation attached to a message.
type CitationRow struct {
	ID             string  `db:"id"`
	MessageID      string  `db:"message_id"`
	Chapter        int     `db:"chapter"`
	Section        string  `db:"section"`
	Heading        string  `db:"heading"`
	Quote          string  `db:"quote"`
	Link           string  `db:"link"`
	RelevanceScore float64 `db:"relevance_score"`
}

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file, or ":memory:" for tests.
	Path string `json:"path"`

	// MessageTTL bounds message and analytics retention.
	MessageTTL time.Duration `json:"message_ttl"`
}

// Store wraps the relational database. Methods are safe for concurrent use;
// SQLite serializes writes internally.
type Store struct {
	db     *sqlx.DB
	config *Config
	logger *slog.Logger

	now func() time.Time
}

// NewStore opens the database and applies the schema.
func NewStore(config *Config) (*Store, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if config.MessageTTL == 0 {
		config.MessageTTL = DefaultMessageTTL
	}

	db, err := sqlx.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps in-memory databases alive and serializes
	// writes ahead of SQLite's own locking.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "store"),
		now:    time.Now,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping probes connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession persists a new session and returns it. An empty persona
// defaults to the balanced profile.
func (s *Store) CreateSession(ctx context.Context, persona types.Persona, currentChapter int, currentPage string) (*Session, error) {
	if persona == "" {
		persona = types.PersonaDefault
	}
	if !persona.Valid() {
		return nil, svcerr.Invalidf("unknown persona %q", persona)
	}

	session := &Session{
		ID:        uuid.NewString(),
		Persona:   persona,
		CreatedAt: s.now().UTC(),
		IsActive:  true,
	}
	if currentChapter > 0 {
		session.CurrentChapter = sql.NullInt64{Int64: int64(currentChapter), Valid: true}
	}
	if currentPage != "" {
		session.CurrentPage = sql.NullString{String: currentPage, Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO chat_sessions (id, persona, current_chapter, current_page, created_at, is_active)
		VALUES (:id, :persona, :current_chapter, :current_page, :created_at, :is_active)`, session)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to create session", err)
	}
	return session, nil
}

// GetSession returns a session by ID, ErrNotFound when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := s.db.GetContext(ctx, &session, `SELECT * FROM chat_sessions WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to load session", err)
	}
	return &session, nil
}

// EndSession marks a session inactive. Ending an absent or already inactive
// session is not an error.
func (s *Store) EndSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return svcerr.Wrap(svcerr.ErrorTypeStore, "failed to end session", err)
	}
	return nil
}

// SaveMessage persists a message and its citations in one transaction and
// returns the stored row.
func (s *Store) SaveMessage(ctx context.Context, sessionID string, role types.MessageRole, content string, queryType types.QueryType, selectedText string, hasSafetyDisclaimer bool, citations []types.Citation) (*Message, error) {
	return s.SaveMessageWithID(ctx, uuid.NewString(), sessionID, role, content, queryType, selectedText, hasSafetyDisclaimer, citations)
}

// SaveMessageWithID is SaveMessage with a caller-supplied message ID, for
// transports that announce the ID to the client before generation completes.
// Citations beyond the message's lifetime are purged together with it.
func (s *Store) SaveMessageWithID(ctx context.Context, id, sessionID string, role types.MessageRole, content string, queryType types.QueryType, selectedText string, hasSafetyDisclaimer bool, citations []types.Citation) (*Message, error) {
	now := s.now().UTC()
	message := &Message{
		ID:                  id,
		SessionID:           sessionID,
		Role:                role,
		Content:             content,
		QueryType:           queryType,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.config.MessageTTL),
		HasSafetyDisclaimer: hasSafetyDisclaimer,
	}
	if selectedText != "" {
		message.SelectedText = sql.NullString{String: selectedText, Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, query_type, selected_text, created_at, expires_at, has_safety_disclaimer)
		VALUES (:id, :session_id, :role, :content, :query_type, :selected_text, :created_at, :expires_at, :has_safety_disclaimer)`, message); err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to save message", err)
	}

	for _, citation := range citations {
		row := CitationRow{
			ID:             uuid.NewString(),
			MessageID:      message.ID,
			Chapter:        citation.Chapter,
			Section:        citation.Section,
			Heading:        citation.Heading,
			Quote:          citation.Quote,
			Link:           citation.Link,
			RelevanceScore: citation.RelevanceScore,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO citations (id, message_id, chapter, section, heading, quote, link, relevance_score)
			VALUES (:id, :message_id, :chapter, :section, :heading, :quote, :link, :relevance_score)`, row); err != nil {
			return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to save citation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to commit message", err)
	}
	return message, nil
}

// ListMessages returns up to limit messages of a session in chronological
// order, with their citations attached.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]types.MessageSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []Message
	err := s.db.SelectContext(ctx, &messages, `
		SELECT * FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to list messages", err)
	}

	summaries := make([]types.MessageSummary, 0, len(messages))
	for _, msg := range messages {
		citations, err := s.listCitations(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, types.MessageSummary{
			ID:                  msg.ID,
			Role:                msg.Role,
			Content:             msg.Content,
			CreatedAt:           msg.CreatedAt,
			QueryType:           msg.QueryType,
			Citations:           citations,
			HasSafetyDisclaimer: msg.HasSafetyDisclaimer,
		})
	}
	return summaries, nil
}

func (s *Store) listCitations(ctx context.Context, messageID string) ([]types.Citation, error) {
	var rows []CitationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM citations WHERE message_id = ? ORDER BY relevance_score DESC`, messageID)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to list citations", err)
	}

	citations := make([]types.Citation, 0, len(rows))
	for _, row := range rows {
		citations = append(citations, types.Citation{
			Chapter:        row.Chapter,
			Section:        row.Section,
			Heading:        row.Heading,
			Quote:          row.Quote,
			Link:           row.Link,
			RelevanceScore: row.RelevanceScore,
		})
	}
	return citations, nil
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// EventType tags an analytics event.
type EventType string

const (
	EventQueryReceived EventType = "query_received"
	EventResponseSent  EventType = "response_sent"
)

// AnalyticsEvent is one instructor-insight record. It deliberately carries no
// message text or selection content, only aggregate attributes.
type AnalyticsEvent struct {
	ID            string        `db:"id"`
	EventType     EventType     `db:"event_type"`
	SessionID     string        `db:"session_id"`
	MessageID     string        `db:"message_id"`
	Persona       string        `db:"persona"`
	Chapter       sql.NullInt64 `db:"chapter"`
	QueryType     string        `db:"query_type"`
	HasCitations  sql.NullBool  `db:"has_citations"`
	HasDisclaimer sql.NullBool  `db:"has_disclaimer"`
	FirstTokenMs  sql.NullInt64 `db:"first_token_ms"`
	TotalMs       sql.NullInt64 `db:"total_ms"`
	CreatedAt     time.Time     `db:"created_at"`
	ExpiresAt     time.Time     `db:"expires_at"`
}

// ResponseMetrics captures the latency and outcome attributes of one
// completed response.
type ResponseMetrics struct {
	HasCitations  bool
	HasDisclaimer bool
	FirstTokenMs  int64
	TotalMs       int64
}

// RecordQueryEvent stores a query_received event.
func (s *Store) RecordQueryEvent(ctx context.Context, sessionID, messageID, persona string, chapter int, queryType string) error {
	event := s.newEvent(EventQueryReceived, sessionID, messageID, persona, chapter, queryType)
	return s.insertEvent(ctx, event)
}

// RecordResponseEvent stores a response_sent event with latency metrics.
func (s *Store) RecordResponseEvent(ctx context.Context, sessionID, messageID, persona string, chapter int, queryType string, metrics ResponseMetrics) error {
	event := s.newEvent(EventResponseSent, sessionID, messageID, persona, chapter, queryType)
	event.HasCitations = sql.NullBool{Bool: metrics.HasCitations, Valid: true}
	event.HasDisclaimer = sql.NullBool{Bool: metrics.HasDisclaimer, Valid: true}
	event.FirstTokenMs = sql.NullInt64{Int64: metrics.FirstTokenMs, Valid: true}
	event.TotalMs = sql.NullInt64{Int64: metrics.TotalMs, Valid: true}
	return s.insertEvent(ctx, event)
}

func (s *Store) newEvent(eventType EventType, sessionID, messageID, persona string, chapter int, queryType string) *AnalyticsEvent {
	now := s.now().UTC()
	event := &AnalyticsEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		SessionID: sessionID,
		MessageID: messageID,
		Persona:   persona,
		QueryType: queryType,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.MessageTTL),
	}
	if chapter > 0 {
		event.Chapter = sql.NullInt64{Int64: int64(chapter), Valid: true}
	}
	return event
}

func (s *Store) insertEvent(ctx context.Context, event *AnalyticsEvent) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO analytics_events (id, event_type, session_id, message_id, persona, chapter, query_type, has_citations, has_disclaimer, first_token_ms, total_ms, created_at, expires_at)
		VALUES (:id, :event_type, :session_id, :message_id, :persona, :chapter, :query_type, :has_citations, :has_disclaimer, :first_token_ms, :total_ms, :created_at, :expires_at)`, event)
	if err != nil {
		return svcerr.Wrap(svcerr.ErrorTypeStore, "failed to record analytics event", err)
	}
	return nil
}

// EventCounts returns event totals grouped by type, for the insights
// endpoint.
func (s *Store) EventCounts(ctx context.Context) (map[EventType]int, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT event_type, COUNT(*) AS n FROM analytics_events GROUP BY event_type`)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to count analytics events", err)
	}
	defer rows.Close()

	counts := make(map[EventType]int)
	for rows.Next() {
		var eventType EventType
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, svcerr.Wrap(svcerr.ErrorTypeStore, "failed to scan analytics counts", err)
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}

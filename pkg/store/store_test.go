package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(&Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		created, err := s.CreateSession(ctx, types.PersonaBuilder, 3, "/module-1/chapter-3")
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.True(t, created.IsActive)

		got, err := s.GetSession(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, types.PersonaBuilder, got.Persona)
		assert.Equal(t, int64(3), got.CurrentChapter.Int64)
		assert.Equal(t, "/module-1/chapter-3", got.CurrentPage.String)
	})

	t.Run("EmptyPersonaDefaults", func(t *testing.T) {
		created, err := s.CreateSession(ctx, "", 0, "")
		require.NoError(t, err)
		assert.Equal(t, types.PersonaDefault, created.Persona)
		assert.False(t, created.CurrentChapter.Valid)
	})

	t.Run("UnknownPersonaRejected", func(t *testing.T) {
		_, err := s.CreateSession(ctx, types.Persona("Wizard"), 0, "")
		assert.Error(t, err)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.GetSession(ctx, "no-such-session")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("EndSession", func(t *testing.T) {
		created, err := s.CreateSession(ctx, types.PersonaDefault, 0, "")
		require.NoError(t, err)

		require.NoError(t, s.EndSession(ctx, created.ID))
		got, err := s.GetSession(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		// Idempotent.
		require.NoError(t, s.EndSession(ctx, created.ID))
	})
}

func TestMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, types.PersonaDefault, 0, "")
	require.NoError(t, err)

	t.Run("SaveWithCitations", func(t *testing.T) {
		citations := []types.Citation{
			{Chapter: 2, Section: "2.3", Heading: "Nodes", Quote: "A node is a process.", Link: "/ch2", RelevanceScore: 0.95},
			{Chapter: 5, Section: "5.1", Heading: "URDF", Quote: "URDF describes robots.", Link: "/ch5", RelevanceScore: 0.80},
		}

		msg, err := s.SaveMessage(ctx, session.ID, types.RoleAssistant,
			"A node is a process in the ROS graph.", types.QueryGlobal, "", false, citations)
		require.NoError(t, err)
		assert.True(t, msg.ExpiresAt.After(msg.CreatedAt))

		listed, err := s.ListMessages(ctx, session.ID, 10)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		require.Len(t, listed[0].Citations, 2)
		assert.Equal(t, 0.95, listed[0].Citations[0].RelevanceScore)
	})

	t.Run("ChronologicalOrder", func(t *testing.T) {
		other, err := s.CreateSession(ctx, types.PersonaDefault, 0, "")
		require.NoError(t, err)

		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			tick := base.Add(time.Duration(i) * time.Minute)
			s.now = func() time.Time { return tick }
			_, err := s.SaveMessage(ctx, other.ID, types.RoleUser,
				string(rune('a'+i)), types.QueryGlobal, "", false, nil)
			require.NoError(t, err)
		}
		s.now = time.Now

		listed, err := s.ListMessages(ctx, other.ID, 10)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, "a", listed[0].Content)
		assert.Equal(t, "c", listed[2].Content)
	})

	t.Run("SelectedTextStored", func(t *testing.T) {
		msg, err := s.SaveMessage(ctx, session.ID, types.RoleUser,
			"explain", types.QuerySelection, "ROS 2 nodes communicate over topics", true, nil)
		require.NoError(t, err)
		assert.True(t, msg.SelectedText.Valid)
		assert.True(t, msg.HasSafetyDisclaimer)
	})
}

func TestAnalytics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordQueryEvent(ctx, "sess-1", "msg-1", "Builder", 3, "page"))
	require.NoError(t, s.RecordResponseEvent(ctx, "sess-1", "msg-1", "Builder", 3, "page", ResponseMetrics{
		HasCitations:  true,
		HasDisclaimer: false,
		FirstTokenMs:  1200,
		TotalMs:       4800,
	}))

	counts, err := s.EventCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[EventQueryReceived])
	assert.Equal(t, 1, counts[EventResponseSent])
}

func TestPurgeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, types.PersonaDefault, 0, "")
	require.NoError(t, err)

	// One message written in the past, beyond TTL.
	past := time.Now().UTC().Add(-48 * time.Hour)
	s.now = func() time.Time { return past }
	_, err = s.SaveMessage(ctx, session.ID, types.RoleUser, "old", types.QueryGlobal, "", false,
		[]types.Citation{{Chapter: 1, Section: "1.1", RelevanceScore: 0.9}})
	require.NoError(t, err)
	require.NoError(t, s.RecordQueryEvent(ctx, session.ID, "msg-old", "Default", 0, "global"))

	// One fresh message.
	s.now = time.Now
	_, err = s.SaveMessage(ctx, session.ID, types.RoleUser, "fresh", types.QueryGlobal, "", false, nil)
	require.NoError(t, err)

	result, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.MessagesDeleted)
	assert.Equal(t, int64(1), result.AnalyticsDeleted)

	listed, err := s.ListMessages(ctx, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "fresh", listed[0].Content)

	// Idempotent: a second pass deletes nothing.
	again, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.MessagesDeleted)
	assert.Zero(t, again.AnalyticsDeleted)
}

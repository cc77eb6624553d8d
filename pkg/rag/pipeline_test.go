package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

type fakeSearcher struct {
	chunks []ContentChunk
	err    error

	gotFilters   *SearchFilters
	gotLimit     int
	gotThreshold float64
}

func (f *fakeSearcher) Search(ctx context.Context, queryVector []float32, filters *SearchFilters, limit int, threshold float64) ([]ContentChunk, error) {
	f.gotFilters = filters
	f.gotLimit = limit
	f.gotThreshold = threshold
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func newTestPipeline(t *testing.T, searcher *fakeSearcher) *Pipeline {
	t.Helper()
	p, err := NewPipeline(&fakeEmbedder{vector: []float32{0.1, 0.2}}, searcher, nil)
	require.NoError(t, err)
	return p
}

func TestNewPipeline(t *testing.T) {
	t.Run("NilEmbedder", func(t *testing.T) {
		_, err := NewPipeline(nil, &fakeSearcher{}, nil)
		assert.Error(t, err)
	})

	t.Run("NilSearcher", func(t *testing.T) {
		_, err := NewPipeline(&fakeEmbedder{}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("NilConfigUsesDefaults", func(t *testing.T) {
		p, err := NewPipeline(&fakeEmbedder{}, &fakeSearcher{}, nil)
		require.NoError(t, err)
		assert.Equal(t, RelevanceThreshold, p.config.RelevanceThreshold)
		assert.Equal(t, MaxCitations, p.config.MaxCitations)
	})
}

func TestPipelineQuery(t *testing.T) {
	t.Run("RelevantQueryYieldsCitations", func(t *testing.T) {
		searcher := &fakeSearcher{chunks: []ContentChunk{
			{ChapterID: 2, SectionID: "2.3", Heading: "ROS 2 Nodes",
				Text: "A node is a participant in the ROS graph.", RelevanceScore: 0.95},
		}}
		p := newTestPipeline(t, searcher)

		result, err := p.Query(context.Background(), "What is a ROS 2 node?", QueryOptions{})
		require.NoError(t, err)

		assert.False(t, result.IsOutOfScope)
		require.Len(t, result.Citations, 1)
		assert.Equal(t, 2, result.Citations[0].Chapter)
		assert.Equal(t, 0.95, result.Citations[0].RelevanceScore)
		assert.Contains(t, result.Context, "--- From Chapter 2 ---")
		assert.Contains(t, result.Context, "A node is a participant in the ROS graph.")
	})

	t.Run("OutOfScopeQuery", func(t *testing.T) {
		searcher := &fakeSearcher{chunks: []ContentChunk{
			{ChapterID: 1, SectionID: "1.1", RelevanceScore: 0.2},
			{ChapterID: 1, SectionID: "1.2", RelevanceScore: 0.3},
		}}
		p := newTestPipeline(t, searcher)

		result, err := p.Query(context.Background(), "What is the weather today?", QueryOptions{})
		require.NoError(t, err)

		assert.True(t, result.IsOutOfScope)
		assert.Empty(t, result.Citations)
		assert.Equal(t, "", result.Context)
	})

	t.Run("CitationsCappedAndOrdered", func(t *testing.T) {
		var chunks []ContentChunk
		for i := 0; i < 10; i++ {
			chunks = append(chunks, ContentChunk{
				ChapterID:      i + 1,
				SectionID:      string(rune('a' + i)),
				RelevanceScore: 0.55 + float64(i)*0.04,
			})
		}
		p := newTestPipeline(t, &fakeSearcher{chunks: chunks})

		result, err := p.Query(context.Background(), "kinematics", QueryOptions{})
		require.NoError(t, err)

		require.Len(t, result.Citations, MaxCitations)
		for i := 1; i < len(result.Citations); i++ {
			assert.GreaterOrEqual(t,
				result.Citations[i-1].RelevanceScore,
				result.Citations[i].RelevanceScore)
		}
	})

	t.Run("PageScopedLowersThresholdAndSkipsScopeCheck", func(t *testing.T) {
		chapter := 3
		searcher := &fakeSearcher{chunks: []ContentChunk{
			{ChapterID: 3, SectionID: "3.1", RelevanceScore: 0.35},
		}}
		p := newTestPipeline(t, searcher)

		result, err := p.Query(context.Background(), "explain this page",
			QueryOptions{PageScoped: true, Filters: &SearchFilters{ChapterID: &chapter}})
		require.NoError(t, err)

		assert.Equal(t, 0.3, searcher.gotThreshold)
		require.NotNil(t, searcher.gotFilters)
		assert.Equal(t, 3, *searcher.gotFilters.ChapterID)
		assert.False(t, result.IsOutOfScope)
		assert.Len(t, result.Citations, 1)
	})

	t.Run("GlobalQueryUsesDefaultThreshold", func(t *testing.T) {
		searcher := &fakeSearcher{chunks: []ContentChunk{{RelevanceScore: 0.9}}}
		p := newTestPipeline(t, searcher)

		_, err := p.Query(context.Background(), "docker", QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, RelevanceThreshold, searcher.gotThreshold)
		assert.Equal(t, MaxCitations*2, searcher.gotLimit)
	})

	t.Run("ConflictingVersionsFlagged", func(t *testing.T) {
		searcher := &fakeSearcher{chunks: []ContentChunk{
			{ChapterID: 1, SectionID: "1.2", Heading: "Setup",
				Text: "Install Python 3.8 for the exercises.", RelevanceScore: 0.9},
			{ChapterID: 7, SectionID: "7.4", Heading: "Advanced Setup",
				Text: "These examples require Python 3.10.", RelevanceScore: 0.85},
		}}
		p := newTestPipeline(t, searcher)

		result, err := p.Query(context.Background(), "which python version", QueryOptions{})
		require.NoError(t, err)

		require.Len(t, result.ConflictWarnings, 1)
		assert.Equal(t, "medium", result.ConflictWarnings[0].Severity)
		assert.Contains(t, result.ConflictWarnings[0].Description, "3.8")
		assert.Contains(t, result.ConflictWarnings[0].Description, "3.10")
	})

	t.Run("EmbedderErrorPropagates", func(t *testing.T) {
		wantErr := errors.New("embedding service down")
		p, err := NewPipeline(&fakeEmbedder{err: wantErr}, &fakeSearcher{}, nil)
		require.NoError(t, err)

		_, err = p.Query(context.Background(), "nodes", QueryOptions{})
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("SearcherErrorPropagates", func(t *testing.T) {
		wantErr := errors.New("index unavailable")
		p := newTestPipeline(t, &fakeSearcher{err: wantErr})

		_, err := p.Query(context.Background(), "nodes", QueryOptions{})
		assert.ErrorIs(t, err, wantErr)
	})
}

func TestPipelineQuerySelection(t *testing.T) {
	p := newTestPipeline(t, &fakeSearcher{})

	t.Run("SufficientSelection", func(t *testing.T) {
		selected := "ROS 2 nodes communicate by publishing typed messages to topics."
		result, err := p.QuerySelection(context.Background(), selected, "What does this mean?")
		require.NoError(t, err)

		assert.False(t, result.IsInsufficientSelection)
		assert.False(t, result.IsOutOfScope)
		assert.Contains(t, result.Context, "[Selected Text]")
		assert.Contains(t, result.Context, selected)
		assert.Empty(t, result.Citations)
	})

	t.Run("InsufficientSelection", func(t *testing.T) {
		result, err := p.QuerySelection(context.Background(), "Hi", "What does this mean?")
		require.NoError(t, err)

		assert.True(t, result.IsInsufficientSelection)
		assert.False(t, result.IsOutOfScope)
		assert.Equal(t, "", result.Context)
		assert.Empty(t, result.Citations)
	})

	t.Run("NoRetrievalPerformed", func(t *testing.T) {
		embedder := &fakeEmbedder{vector: []float32{0.1}}
		searcher := &fakeSearcher{gotLimit: -1}
		p, err := NewPipeline(embedder, searcher, nil)
		require.NoError(t, err)

		_, err = p.QuerySelection(context.Background(), "A selection long enough to pass the floor.", "why")
		require.NoError(t, err)
		assert.Zero(t, embedder.calls)
		assert.Equal(t, -1, searcher.gotLimit)
	})
}

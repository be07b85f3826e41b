package services

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/models"
)

type mockEmbedder struct {
	vec      []float32
	err      error
	dims     int
	lastText string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.lastText = text
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }

type mockGenerator struct {
	response  string
	responses []string // consumed first when set, one per call
	err       error
	calls     int
}

func (m *mockGenerator) Generate(ctx context.Context, query string, contextChunks []string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		return next, nil
	}
	return m.response, nil
}

type staticPolicies struct {
	thresholds Thresholds
}

func (s staticPolicies) Thresholds(ctx context.Context, tenantID string) Thresholds {
	return s.thresholds
}

func testConfig() *config.Config {
	return &config.Config{
		TopK:                5,
		RRFConstant:         60,
		MaxQueryLength:      4000,
		RetrievalTimeout:    500 * time.Millisecond,
		ConfidenceTopWeight: 0.7,
		ConfidenceGapWeight: 0.3,
		CitationDocCap:      2,
	}
}

func seededRegistry(t *testing.T) *index.Registry {
	t.Helper()
	r := index.NewRegistry()
	chunks := []models.Chunk{
		{
			ID: "doc-1-0000", DocumentID: "doc-1", DocumentTitle: "Refund Policy",
			TenantID: "tenant-a", SequenceIndex: 0,
			Text:      "Refunds are issued within thirty days of purchase.",
			Embedding: []float32{1, 0, 0},
		},
		{
			ID: "doc-1-0001", DocumentID: "doc-1", DocumentTitle: "Refund Policy",
			TenantID: "tenant-a", SequenceIndex: 1,
			Text:      "Shipping costs are not refunded.",
			Embedding: []float32{0.9, 0.1, 0},
		},
		{
			ID: "doc-2-0000", DocumentID: "doc-2", DocumentTitle: "Shipping Guide",
			TenantID: "tenant-a", SequenceIndex: 0,
			Text:      "Orders ship within two business days.",
			Embedding: []float32{0, 1, 0},
		},
	}
	require.NoError(t, r.Swap("tenant-a", chunks))
	return r
}

func newTestOrchestrator(t *testing.T, reg *index.Registry, embedder *mockEmbedder, generator *mockGenerator, thresholds Thresholds) *QueryOrchestrator {
	t.Helper()
	return NewQueryOrchestrator(
		testConfig(), reg, staticPolicies{thresholds},
		embedder, generator, nil,
		NewAnswerCache(nil, 0), nil,
	)
}

func TestAnswerQueryHappyPath(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{vec: []float32{1, 0, 0}, dims: 3}
	generator := &mockGenerator{response: "Refunds are issued within thirty days."}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.1, Low: 0.05})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "what is the refund policy for a purchase")
	require.NoError(t, err)

	assert.Equal(t, "Refunds are issued within thirty days.", envelope.ResponseText)
	assert.False(t, envelope.RequiresHuman)
	assert.NotEmpty(t, envelope.Citations)
	assert.Greater(t, envelope.Confidence, 0.0)
	assert.Equal(t, 1, generator.calls)
}

func TestAnswerQueryMissingTenantIsRejected(t *testing.T) {
	qo := newTestOrchestrator(t, index.NewRegistry(), &mockEmbedder{}, &mockGenerator{}, Thresholds{High: 0.8, Low: 0.5})

	_, err := qo.AnswerQuery(context.Background(), "", "any question")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTenantIsolation)
}

func TestAnswerQueryEmptyQueryIsRejected(t *testing.T) {
	qo := newTestOrchestrator(t, index.NewRegistry(), &mockEmbedder{}, &mockGenerator{}, Thresholds{High: 0.8, Low: 0.5})

	_, err := qo.AnswerQuery(context.Background(), "tenant-a", "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAnswerQueryEmptyIndexReturnsFallback(t *testing.T) {
	generator := &mockGenerator{response: "should not be called"}
	qo := newTestOrchestrator(t, index.NewRegistry(), &mockEmbedder{vec: []float32{1, 0, 0}}, generator, Thresholds{High: 0.8, Low: 0.5})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "anything at all")
	require.NoError(t, err)

	assert.Equal(t, FallbackResponse, envelope.ResponseText)
	assert.Zero(t, envelope.Confidence)
	assert.True(t, envelope.RequiresHuman)
	assert.Empty(t, envelope.Citations)
	assert.Zero(t, generator.calls)
}

func TestAnswerQueryEmbeddingFailureDegradesToSparse(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{err: models.ErrEmbeddingUnavailable}
	generator := &mockGenerator{response: "sparse-only answer"}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.9, Low: 0.01})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "refund purchase")
	require.NoError(t, err)

	// Sparse retrieval alone still found the refund chunks.
	assert.Equal(t, "sparse-only answer", envelope.ResponseText)
	assert.NotEmpty(t, envelope.Citations)
}

func TestAnswerQueryGenerationFailureReturnsCitationsOnly(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{vec: []float32{1, 0, 0}, dims: 3}
	generator := &mockGenerator{err: models.ErrGenerationUnavailable}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.1, Low: 0.05})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "refund purchase policy")
	require.NoError(t, err)

	assert.Equal(t, GenerationFallbackResponse, envelope.ResponseText)
	assert.True(t, envelope.RequiresHuman)
	assert.NotEmpty(t, envelope.Citations)
}

func TestAnswerQueryLowConfidenceSkipsGeneration(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{vec: []float32{1, 0, 0}, dims: 3}
	generator := &mockGenerator{response: "never used"}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.99, Low: 0.99})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "refund purchase")
	require.NoError(t, err)

	assert.Equal(t, FallbackResponse, envelope.ResponseText)
	assert.True(t, envelope.RequiresHuman)
	assert.Empty(t, envelope.Citations)
	assert.Zero(t, generator.calls)
}

func TestAnswerQueryTruncatesOversizedQuery(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{vec: []float32{1, 0, 0}, dims: 3}
	generator := &mockGenerator{response: "answer"}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.1, Low: 0.05})

	longQuery := "refund purchase " + strings.Repeat("x", 5000)
	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", longQuery)
	require.NoError(t, err)

	assert.True(t, envelope.Truncated)
}

func TestAnswerQueryExpandsWhenNothingFound(t *testing.T) {
	reg := seededRegistry(t)
	// Orthogonal to every indexed vector, and "reimbursement" matches no
	// indexed term: both retrieval legs come back empty.
	embedder := &mockEmbedder{vec: []float32{0, 0, 1}, dims: 3}
	generator := &mockGenerator{responses: []string{
		"refund policy for a purchase\nmoney returned after buying",
		"expanded answer",
	}}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.9, Low: 0.01})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "reimbursement")
	require.NoError(t, err)

	// One call produced the reformulations, one the answer.
	assert.Equal(t, 2, generator.calls)
	assert.Equal(t, "expanded answer", envelope.ResponseText)
	assert.NotEmpty(t, envelope.Citations)
	assert.Greater(t, envelope.Confidence, 0.0)
}

func TestAnswerQueryExpansionFailureFallsBack(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{vec: []float32{0, 0, 1}, dims: 3}
	generator := &mockGenerator{err: models.ErrGenerationUnavailable}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.9, Low: 0.05})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "reimbursement")
	require.NoError(t, err)

	assert.Equal(t, 1, generator.calls)
	assert.Equal(t, FallbackResponse, envelope.ResponseText)
	assert.True(t, envelope.RequiresHuman)
	assert.Empty(t, envelope.Citations)
}

func TestAnswerQueryNoResultsWithZeroLowThreshold(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{vec: []float32{0, 0, 1}, dims: 3}
	generator := &mockGenerator{err: models.ErrGenerationUnavailable}
	// Low of zero: confidence 0 is not below the band, so the empty-result
	// rule in the assembler has to carry the fallback on its own.
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.5, Low: 0.0})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "reimbursement")
	require.NoError(t, err)

	assert.Equal(t, FallbackResponse, envelope.ResponseText)
	assert.True(t, envelope.RequiresHuman)
	assert.Empty(t, envelope.Citations)
	assert.Zero(t, envelope.Confidence)
}

func TestAnswerQueryTruncationKeepsValidUTF8(t *testing.T) {
	reg := seededRegistry(t)
	embedder := &mockEmbedder{vec: []float32{1, 0, 0}, dims: 3}
	generator := &mockGenerator{response: "answer"}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.1, Low: 0.05})

	// Odd-length ASCII prefix puts the byte cut in the middle of a rune.
	longQuery := "refund purchase q" + strings.Repeat("é", 3000)
	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", longQuery)
	require.NoError(t, err)

	assert.True(t, envelope.Truncated)
	assert.True(t, utf8.ValidString(embedder.lastText))
	assert.LessOrEqual(t, len(embedder.lastText), 4000)
}

func TestReingestionKeepsRankingStable(t *testing.T) {
	chunker := NewChunkingService(&config.Config{MaxChunkSize: 200, ChunkOverlap: 40, MinChunkSize: 50})
	reg := index.NewRegistry()
	text := "Refunds are issued within thirty days of purchase.\n\n" +
		strings.Repeat("Shipping costs are never refunded for international orders. ", 8)

	first := chunker.ChunkDocument("tenant-a", "doc-1", "Refund Policy", text)
	require.NoError(t, reg.ReplaceDocument("tenant-a", "doc-1", first))

	sr := NewSparseRetriever()
	before := FuseResults(sr.Retrieve(reg.Snapshot("tenant-a"), "refund purchase", 5), nil, 60)
	require.NotEmpty(t, before)

	// Re-ingesting unchanged text must leave the ranking untouched: chunk
	// boundaries and IDs derive from the text and document ID alone.
	second := chunker.ChunkDocument("tenant-a", "doc-1", "Refund Policy", text)
	require.NoError(t, reg.ReplaceDocument("tenant-a", "doc-1", second))
	after := FuseResults(sr.Retrieve(reg.Snapshot("tenant-a"), "refund purchase", 5), nil, 60)

	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].Chunk.ID, after[i].Chunk.ID)
		assert.Equal(t, before[i].FusedScore, after[i].FusedScore)
	}
}

func TestAnswerQueryDimensionMismatchDegrades(t *testing.T) {
	reg := seededRegistry(t)
	// Index holds 3-dimensional vectors; the embedder now returns 2.
	embedder := &mockEmbedder{vec: []float32{1, 0}, dims: 2}
	generator := &mockGenerator{response: "sparse answer"}
	qo := newTestOrchestrator(t, reg, embedder, generator, Thresholds{High: 0.9, Low: 0.01})

	envelope, err := qo.AnswerQuery(context.Background(), "tenant-a", "refund purchase")
	require.NoError(t, err)

	// The request survives on the sparse leg.
	assert.Equal(t, "sparse answer", envelope.ResponseText)
	assert.NotEmpty(t, envelope.Citations)
}

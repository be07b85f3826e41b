package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/models"
)

func snapshotWith(texts ...string) *index.Snapshot {
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ID:            chunkIDAt(i),
			DocumentID:    "doc-1",
			TenantID:      "tenant-a",
			Text:          text,
			SequenceIndex: i,
		}
	}
	return &index.Snapshot{TenantID: "tenant-a", Chunks: chunks}
}

func chunkIDAt(i int) string {
	return "doc-1-000" + string(rune('0'+i))
}

func TestSparseRetrieveRanksTermMatches(t *testing.T) {
	sr := NewSparseRetriever()
	snap := snapshotWith(
		"refund policy applies within thirty days of purchase",
		"shipping times vary by region and carrier",
		"the refund form must name the original purchase and refund reason",
	)

	results := sr.Retrieve(snap, "refund purchase", 5)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].SparseScore, results[i].SparseScore)
	}
	// The shipping chunk shares no query terms and must not appear.
	for _, res := range results {
		assert.NotEqual(t, chunkIDAt(1), res.Chunk.ID)
	}
}

func TestSparseRetrieveEmptyQueryOrIndex(t *testing.T) {
	sr := NewSparseRetriever()

	assert.Empty(t, sr.Retrieve(snapshotWith("some text"), "   ", 5))
	assert.Empty(t, sr.Retrieve(&index.Snapshot{TenantID: "tenant-a"}, "refund", 5))
}

func TestSparseRetrieveNoOverlapReturnsNothing(t *testing.T) {
	sr := NewSparseRetriever()
	snap := snapshotWith("alpha beta gamma", "delta epsilon zeta")

	assert.Empty(t, sr.Retrieve(snap, "unrelated words entirely", 5))
}

func TestSparseRetrieveRespectsTopK(t *testing.T) {
	sr := NewSparseRetriever()
	snap := snapshotWith(
		"refund one", "refund two", "refund three", "refund four", "refund five",
	)

	results := sr.Retrieve(snap, "refund", 3)
	assert.Len(t, results, 3)
}

func TestSparseRetrieveDeterministic(t *testing.T) {
	sr := NewSparseRetriever()
	snap := snapshotWith("refund policy", "refund policy", "refund policy")

	first := sr.Retrieve(snap, "refund", 5)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, sr.Retrieve(snap, "refund", 5))
	}
	// Identical texts tie on score; sequence index settles the order.
	require.Len(t, first, 3)
	assert.Equal(t, 0, first[0].Chunk.SequenceIndex)
	assert.Equal(t, 1, first[1].Chunk.SequenceIndex)
}

func TestTokenizeNormalizes(t *testing.T) {
	tokens := tokenize("Hello, WORLD! v2.0-beta")
	assert.Equal(t, []string{"hello", "world", "v2", "0", "beta"}, tokens)
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnichannel-rag-platform/models"
)

func resultFor(docID, chunkID string, seq int, fused float64) models.RetrievalResult {
	return models.RetrievalResult{
		Chunk: models.Chunk{
			ID:            chunkID,
			DocumentID:    docID,
			DocumentTitle: "Title of " + docID,
			TenantID:      "tenant-a",
			SequenceIndex: seq,
		},
		FusedScore: fused,
	}
}

func TestAssembleHighConfidenceAnswersAutonomously(t *testing.T) {
	aa := NewAnswerAssembler(5, 2)
	fused := []models.RetrievalResult{resultFor("doc-1", "doc-1-0000", 0, 0.03)}

	envelope := aa.Assemble(fused, 0.9, Thresholds{High: 0.8, Low: 0.5}, "the answer")

	assert.Equal(t, "the answer", envelope.ResponseText)
	assert.False(t, envelope.RequiresHuman)
	require.Len(t, envelope.Citations, 1)
	assert.Equal(t, "doc-1-0000", envelope.Citations[0].ChunkID)
	assert.Equal(t, "Title of doc-1", envelope.Citations[0].DocumentTitle)
	assert.Equal(t, 0.03, envelope.Citations[0].RelevanceScore)
}

func TestAssembleBoundaryBelongsToHigherBand(t *testing.T) {
	aa := NewAnswerAssembler(5, 2)
	fused := []models.RetrievalResult{resultFor("doc-1", "doc-1-0000", 0, 0.03)}
	thresholds := Thresholds{High: 0.8, Low: 0.5}

	atHigh := aa.Assemble(fused, 0.8, thresholds, "answer")
	assert.False(t, atHigh.RequiresHuman)

	atLow := aa.Assemble(fused, 0.5, thresholds, "answer")
	assert.True(t, atLow.RequiresHuman)
	assert.Equal(t, "answer", atLow.ResponseText)
}

func TestAssembleMediumConfidenceFlagsForReview(t *testing.T) {
	aa := NewAnswerAssembler(5, 2)
	fused := []models.RetrievalResult{resultFor("doc-1", "doc-1-0000", 0, 0.03)}

	envelope := aa.Assemble(fused, 0.6, Thresholds{High: 0.8, Low: 0.5}, "tentative answer")

	assert.True(t, envelope.RequiresHuman)
	assert.Equal(t, "tentative answer", envelope.ResponseText)
	assert.NotEmpty(t, envelope.Citations)
}

func TestAssembleLowConfidenceReturnsFallback(t *testing.T) {
	aa := NewAnswerAssembler(5, 2)
	fused := []models.RetrievalResult{resultFor("doc-1", "doc-1-0000", 0, 0.03)}

	envelope := aa.Assemble(fused, 0.2, Thresholds{High: 0.8, Low: 0.5}, "should be discarded")

	assert.Equal(t, FallbackResponse, envelope.ResponseText)
	assert.True(t, envelope.RequiresHuman)
	assert.Empty(t, envelope.Citations)
	assert.Equal(t, 0.2, envelope.Confidence)
}

func TestAssembleNoResultsAlwaysFallsBack(t *testing.T) {
	aa := NewAnswerAssembler(5, 2)

	// A zero low threshold must not let an empty retrieval through as an
	// empty answer: confidence 0 is not below 0, so the band check alone
	// would pass it.
	envelope := aa.Assemble(nil, 0.0, Thresholds{High: 0.5, Low: 0.0}, "")

	assert.Equal(t, FallbackResponse, envelope.ResponseText)
	assert.True(t, envelope.RequiresHuman)
	assert.Empty(t, envelope.Citations)

	envelope = aa.Assemble([]models.RetrievalResult{}, 0.9, Thresholds{High: 0.8, Low: 0.5}, "unsupported answer")
	assert.Equal(t, FallbackResponse, envelope.ResponseText)
	assert.True(t, envelope.RequiresHuman)
}

func TestAssembleCapsCitationsPerDocument(t *testing.T) {
	aa := NewAnswerAssembler(5, 2)
	fused := []models.RetrievalResult{
		resultFor("doc-1", "doc-1-0000", 0, 0.05),
		resultFor("doc-1", "doc-1-0001", 1, 0.04),
		resultFor("doc-1", "doc-1-0002", 2, 0.03),
		resultFor("doc-2", "doc-2-0000", 0, 0.02),
	}

	envelope := aa.Assemble(fused, 0.9, Thresholds{High: 0.8, Low: 0.5}, "answer")

	require.Len(t, envelope.Citations, 3)
	assert.Equal(t, "doc-1-0000", envelope.Citations[0].ChunkID)
	assert.Equal(t, "doc-1-0001", envelope.Citations[1].ChunkID)
	assert.Equal(t, "doc-2-0000", envelope.Citations[2].ChunkID)
}

func TestAssembleCapsTotalCitations(t *testing.T) {
	aa := NewAnswerAssembler(2, 2)
	fused := []models.RetrievalResult{
		resultFor("doc-1", "doc-1-0000", 0, 0.05),
		resultFor("doc-2", "doc-2-0000", 0, 0.04),
		resultFor("doc-3", "doc-3-0000", 0, 0.03),
	}

	envelope := aa.Assemble(fused, 0.9, Thresholds{High: 0.8, Low: 0.5}, "answer")
	assert.Len(t, envelope.Citations, 2)
}

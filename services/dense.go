package services

import (
	"fmt"
	"math"
	"sort"

	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/models"
)

// DenseRetriever ranks chunks by cosine similarity between the query
// embedding and stored chunk embeddings.
type DenseRetriever struct{}

func NewDenseRetriever() *DenseRetriever {
	return &DenseRetriever{}
}

// Retrieve returns up to topK chunks by cosine similarity. A query vector
// whose dimensionality disagrees with the snapshot fails with
// ErrDimensionMismatch rather than silently scoring garbage. Chunks without
// embeddings are skipped.
func (dr *DenseRetriever) Retrieve(snap *index.Snapshot, queryVec []float32, topK int) ([]models.RetrievalResult, error) {
	if len(queryVec) == 0 || snap.Empty() {
		return nil, nil
	}
	if snap.Dimensions > 0 && len(queryVec) != snap.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			models.ErrDimensionMismatch, len(queryVec), snap.Dimensions)
	}

	var results []models.RetrievalResult
	for _, chunk := range snap.Chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(queryVec, chunk.Embedding)
		if score <= 0 {
			continue
		}
		results = append(results, models.RetrievalResult{Chunk: chunk, DenseScore: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DenseScore != results[j].DenseScore {
			return results[i].DenseScore > results[j].DenseScore
		}
		if results[i].Chunk.SequenceIndex != results[j].Chunk.SequenceIndex {
			return results[i].Chunk.SequenceIndex < results[j].Chunk.SequenceIndex
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package services

import (
	"sort"

	"omnichannel-rag-platform/models"
)

// DefaultRRFConstant dampens the weight gap between adjacent ranks.
const DefaultRRFConstant = 60

// FuseResults merges sparse and dense rankings with reciprocal rank fusion.
// Each list contributes 1/(k+rank) per chunk, rank starting at 1, so a chunk
// found by both retrievers outranks one found by a single retriever at a
// similar position. Raw retriever scores never mix; only ranks matter.
//
// Ordering is fully deterministic. Fused score ties break on higher dense
// score, then lower sequence index, then chunk ID.
func FuseResults(sparse, dense []models.RetrievalResult, k int) []models.RetrievalResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	merged := make(map[string]*models.RetrievalResult)

	for rank, res := range sparse {
		entry := &models.RetrievalResult{Chunk: res.Chunk, SparseScore: res.SparseScore}
		entry.FusedScore = 1.0 / float64(k+rank+1)
		merged[res.Chunk.ID] = entry
	}

	for rank, res := range dense {
		if entry, ok := merged[res.Chunk.ID]; ok {
			entry.DenseScore = res.DenseScore
			entry.FusedScore += 1.0 / float64(k+rank+1)
		} else {
			entry := &models.RetrievalResult{Chunk: res.Chunk, DenseScore: res.DenseScore}
			entry.FusedScore = 1.0 / float64(k+rank+1)
			merged[res.Chunk.ID] = entry
		}
	}

	fused := make([]models.RetrievalResult, 0, len(merged))
	for _, entry := range merged {
		fused = append(fused, *entry)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		if fused[i].DenseScore != fused[j].DenseScore {
			return fused[i].DenseScore > fused[j].DenseScore
		}
		if fused[i].Chunk.SequenceIndex != fused[j].Chunk.SequenceIndex {
			return fused[i].Chunk.SequenceIndex < fused[j].Chunk.SequenceIndex
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})

	return fused
}

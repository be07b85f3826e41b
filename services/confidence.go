package services

import (
	"omnichannel-rag-platform/models"
)

// ConfidenceScorer maps a fused ranking to a calibrated [0,1] confidence.
//
// The score blends two signals: how close the top fused score sits to the
// maximum achievable RRF score (rank 1 in both lists), and how far the top
// result separates from the kth. A retrieval that both retrievers agree on
// and that clearly beats the rest of the field scores near 1; an empty
// ranking scores exactly 0.
type ConfidenceScorer struct {
	topWeight float64
	gapWeight float64
	rrfK      int
}

func NewConfidenceScorer(topWeight, gapWeight float64, rrfK int) *ConfidenceScorer {
	if rrfK <= 0 {
		rrfK = DefaultRRFConstant
	}
	return &ConfidenceScorer{topWeight: topWeight, gapWeight: gapWeight, rrfK: rrfK}
}

// Score is monotonic in the top fused score: with the gap held fixed, a
// higher top score never yields lower confidence.
func (cs *ConfidenceScorer) Score(fused []models.RetrievalResult) float64 {
	if len(fused) == 0 {
		return 0
	}

	top := fused[0].FusedScore
	if top <= 0 {
		return 0
	}

	// Rank 1 in both lists gives 2/(k+1).
	maxAchievable := 2.0 / float64(cs.rrfK+1)
	strength := top / maxAchievable
	if strength > 1 {
		strength = 1
	}

	kth := fused[len(fused)-1].FusedScore
	gap := (top - kth) / top
	if gap < 0 {
		gap = 0
	} else if gap > 1 {
		gap = 1
	}

	confidence := cs.topWeight*strength + cs.gapWeight*gap
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"omnichannel-rag-platform/models"
)

func fusedResults(scores ...float64) []models.RetrievalResult {
	results := make([]models.RetrievalResult, len(scores))
	for i, s := range scores {
		results[i] = models.RetrievalResult{Chunk: chunk(string(rune('a'+i)), i), FusedScore: s}
	}
	return results
}

func TestConfidenceEmptyResultsScoreZero(t *testing.T) {
	scorer := NewConfidenceScorer(0.7, 0.3, 60)

	assert.Zero(t, scorer.Score(nil))
	assert.Zero(t, scorer.Score([]models.RetrievalResult{}))
}

func TestConfidenceZeroTopScore(t *testing.T) {
	scorer := NewConfidenceScorer(0.7, 0.3, 60)

	assert.Zero(t, scorer.Score(fusedResults(0)))
}

func TestConfidenceBounded(t *testing.T) {
	scorer := NewConfidenceScorer(0.7, 0.3, 60)

	maxTop := 2.0 / 61.0
	c := scorer.Score(fusedResults(maxTop, 0.0001))
	assert.LessOrEqual(t, c, 1.0)
	assert.Greater(t, c, 0.9)

	c = scorer.Score(fusedResults(0.0001, 0.00009))
	assert.GreaterOrEqual(t, c, 0.0)
}

func TestConfidenceMonotonicInTopScore(t *testing.T) {
	scorer := NewConfidenceScorer(0.7, 0.3, 60)

	// Fixed gap ratio, increasing top score: confidence must not decrease.
	prev := -1.0
	for _, top := range []float64{0.001, 0.005, 0.01, 0.02, 0.03} {
		c := scorer.Score(fusedResults(top, top/2))
		assert.GreaterOrEqual(t, c, prev, "top=%v", top)
		prev = c
	}
}

func TestConfidenceRewardsSeparation(t *testing.T) {
	scorer := NewConfidenceScorer(0.7, 0.3, 60)

	top := 1.0 / 61.0
	clearWinner := scorer.Score(fusedResults(top, top/10))
	crowdedField := scorer.Score(fusedResults(top, top*0.99))

	assert.Greater(t, clearWinner, crowdedField)
}

func TestConfidenceSingleResult(t *testing.T) {
	scorer := NewConfidenceScorer(0.7, 0.3, 60)

	// A single result has zero gap to itself; only strength contributes.
	top := 2.0 / 61.0
	c := scorer.Score(fusedResults(top))
	assert.InDelta(t, 0.7, c, 1e-9)
}

package services

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/models"
)

// SparseRetriever scores chunks with BM25 over the tenant snapshot. The
// corpus statistics are recomputed per query against the immutable snapshot,
// so a concurrent index swap can never skew a ranking mid-flight.
type SparseRetriever struct {
	k1 float64
	b  float64
}

func NewSparseRetriever() *SparseRetriever {
	return &SparseRetriever{k1: 1.5, b: 0.75}
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

func tokenize(text string) []string {
	return filterEmpty(tokenSplit.Split(strings.ToLower(text), -1))
}

// Retrieve returns up to topK chunks ranked by BM25 score. Zero-score chunks
// are excluded. Ties break on lower sequence index, then chunk ID, keeping
// the ranking deterministic for identical inputs.
func (sr *SparseRetriever) Retrieve(snap *index.Snapshot, query string, topK int) []models.RetrievalResult {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || snap.Empty() {
		return nil
	}

	docTokens := make([][]string, len(snap.Chunks))
	totalLen := 0
	for i, chunk := range snap.Chunks {
		docTokens[i] = tokenize(chunk.Text)
		totalLen += len(docTokens[i])
	}
	avgLen := float64(totalLen) / float64(len(snap.Chunks))
	if avgLen == 0 {
		return nil
	}

	// Document frequency per query term.
	df := make(map[string]int, len(queryTerms))
	for _, tokens := range docTokens {
		seen := make(map[string]bool)
		for _, tok := range tokens {
			seen[tok] = true
		}
		for _, term := range queryTerms {
			if seen[term] {
				df[term]++
			}
		}
	}

	n := float64(len(snap.Chunks))
	idf := make(map[string]float64, len(df))
	for term, freq := range df {
		idf[term] = math.Log((n-float64(freq)+0.5)/(float64(freq)+0.5) + 1)
	}

	var results []models.RetrievalResult
	for i, chunk := range snap.Chunks {
		tokens := docTokens[i]
		if len(tokens) == 0 {
			continue
		}

		tf := make(map[string]int)
		for _, tok := range tokens {
			tf[tok]++
		}

		score := 0.0
		for _, term := range queryTerms {
			freq := float64(tf[term])
			if freq == 0 {
				continue
			}
			norm := sr.k1 * (1 - sr.b + sr.b*float64(len(tokens))/avgLen)
			score += idf[term] * (freq * (sr.k1 + 1)) / (freq + norm)
		}
		if score <= 0 {
			continue
		}

		results = append(results, models.RetrievalResult{Chunk: chunk, SparseScore: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].SparseScore != results[j].SparseScore {
			return results[i].SparseScore > results[j].SparseScore
		}
		if results[i].Chunk.SequenceIndex != results[j].Chunk.SequenceIndex {
			return results[i].Chunk.SequenceIndex < results[j].Chunk.SequenceIndex
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

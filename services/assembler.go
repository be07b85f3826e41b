package services

import (
	"omnichannel-rag-platform/models"
)

// FallbackResponse is returned when confidence falls below the low
// threshold. It is intentionally fixed so downstream channels can detect it.
const FallbackResponse = "I don't have that information in the current database."

// AnswerAssembler turns a fused ranking, a confidence score and generated
// text into the final envelope.
type AnswerAssembler struct {
	maxCitations   int
	citationDocCap int
}

func NewAnswerAssembler(maxCitations, citationDocCap int) *AnswerAssembler {
	return &AnswerAssembler{maxCitations: maxCitations, citationDocCap: citationDocCap}
}

// Assemble applies the confidence bands. Threshold boundaries are inclusive
// on the lower side: a confidence exactly at High answers autonomously, one
// exactly at Low still answers with review. No retrieval results always means
// the fallback, even when a tenant configures a low threshold of zero.
func (aa *AnswerAssembler) Assemble(fused []models.RetrievalResult, confidence float64, thresholds Thresholds, responseText string) models.AnswerEnvelope {
	if len(fused) == 0 || confidence < thresholds.Low {
		return models.AnswerEnvelope{
			ResponseText:  FallbackResponse,
			Citations:     []models.Citation{},
			Confidence:    confidence,
			RequiresHuman: true,
		}
	}

	return models.AnswerEnvelope{
		ResponseText:  responseText,
		Citations:     aa.buildCitations(fused),
		Confidence:    confidence,
		RequiresHuman: confidence < thresholds.High,
	}
}

// buildCitations walks the fused ranking in order, capping how many
// citations one document may contribute so a single long document cannot
// crowd out the rest.
func (aa *AnswerAssembler) buildCitations(fused []models.RetrievalResult) []models.Citation {
	citations := make([]models.Citation, 0, aa.maxCitations)
	perDoc := make(map[string]int)

	for _, res := range fused {
		if len(citations) >= aa.maxCitations {
			break
		}
		if perDoc[res.Chunk.DocumentID] >= aa.citationDocCap {
			continue
		}
		perDoc[res.Chunk.DocumentID]++
		citations = append(citations, models.Citation{
			ChunkID:        res.Chunk.ID,
			DocumentTitle:  res.Chunk.DocumentTitle,
			RelevanceScore: res.FusedScore,
		})
	}
	return citations
}

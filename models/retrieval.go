package models

// RetrievalResult is a candidate chunk with its per-retriever scores and the
// derived fused score. Results are transient: recomputed per query, never
// persisted.
type RetrievalResult struct {
	Chunk       Chunk   `json:"chunk"`
	SparseScore float64 `json:"sparse_score"`
	DenseScore  float64 `json:"dense_score"`
	FusedScore  float64 `json:"fused_score"`
}

// Citation references a source chunk in an answer. RelevanceScore is the
// fused RRF score, not a raw retriever score.
type Citation struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentTitle  string  `json:"document_title"`
	RelevanceScore float64 `json:"relevance_score"`
}

// AnswerEnvelope is the output of a query. RequiresHuman is set whenever
// confidence falls below the high threshold; below the low threshold the
// response is the fixed fallback message with no citations.
type AnswerEnvelope struct {
	ResponseText  string     `json:"response"`
	Citations     []Citation `json:"citations"`
	Confidence    float64    `json:"confidence"`
	RequiresHuman bool       `json:"requires_human"`
	Truncated     bool       `json:"truncated,omitempty"`
}

// QueryRequest is the body of POST /query. The tenant comes from the
// authenticated token, never from the body.
type QueryRequest struct {
	Query          string `json:"query" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// IngestRequest is the body of POST /documents.
type IngestRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title" binding:"required"`
	Text       string `json:"text" binding:"required"`
}

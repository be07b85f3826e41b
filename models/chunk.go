package models

import "time"

// Chunk is the immutable unit of retrievable knowledge. Chunks are
// denormalized (document title included) so retrieval never needs a join.
type Chunk struct {
	ID            string    `bson:"chunk_id" json:"chunk_id"`
	DocumentID    string    `bson:"document_id" json:"document_id"`
	DocumentTitle string    `bson:"document_title" json:"document_title"`
	TenantID      string    `bson:"tenant_id" json:"tenant_id"`
	Text          string    `bson:"text" json:"text"`
	SequenceIndex int       `bson:"sequence_index" json:"sequence_index"`
	Embedding     []float32 `bson:"embedding,omitempty" json:"embedding,omitempty"`
	Keywords      []string  `bson:"keywords,omitempty" json:"keywords,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

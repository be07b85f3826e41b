package models

import "time"

// Document lifecycle states. A document's chunk set is replaced wholesale
// on re-ingestion; there are no partial chunk updates.
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusIndexed    = "indexed"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID         string    `bson:"document_id" json:"document_id"`
	TenantID   string    `bson:"tenant_id" json:"tenant_id"`
	Title      string    `bson:"title" json:"title"`
	Status     string    `bson:"status" json:"status"`
	ChunkCount int       `bson:"chunk_count" json:"chunk_count"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// TenantPolicy holds per-tenant overrides for the confidence thresholds.
// Nil fields fall back to the platform defaults.
type TenantPolicy struct {
	TenantID      string   `bson:"tenant_id" json:"tenant_id"`
	HighThreshold *float64 `bson:"high_threshold,omitempty" json:"high_threshold,omitempty"`
	LowThreshold  *float64 `bson:"low_threshold,omitempty" json:"low_threshold,omitempty"`
}

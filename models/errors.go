package models

import "errors"

// Retrieval error taxonomy. Only tenant isolation violations and malformed
// input propagate to callers; everything else degrades into a fallback
// envelope inside the orchestrator.
var (
	// ErrTenantIsolation means an operation would cross tenant boundaries.
	// Fatal, never retried, always logged as a security event.
	ErrTenantIsolation = errors.New("tenant isolation violation")

	// ErrDimensionMismatch means a query embedding's dimensionality disagrees
	// with the tenant index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable means the upstream embedding provider failed
	// after bounded retries.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable means the upstream LLM failed after bounded
	// retries.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrRetrievalTimeout means a retriever exceeded its latency budget.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrDocumentNotFound is returned by document lookups.
	ErrDocumentNotFound = errors.New("document not found")
)

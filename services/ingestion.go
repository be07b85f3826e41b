package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"omnichannel-rag-platform/internal/ai"
	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/internal/telemetry"
	"omnichannel-rag-platform/models"
)

// IngestionService turns raw documents into indexed chunks. Ingestions for
// the same tenant run one at a time; different tenants proceed in parallel.
// Queries keep reading the previous snapshot until the swap completes.
type IngestionService struct {
	registry *index.Registry
	store    *index.Store
	chunker  *ChunkingService
	embedder ai.Embedder
	cache    *AnswerCache
	notifier *ReloadNotifier
	metrics  *telemetry.Metrics
}

func NewIngestionService(
	registry *index.Registry,
	store *index.Store,
	chunker *ChunkingService,
	embedder ai.Embedder,
	cache *AnswerCache,
	notifier *ReloadNotifier,
	metrics *telemetry.Metrics,
) *IngestionService {
	return &IngestionService{
		registry: registry,
		store:    store,
		chunker:  chunker,
		embedder: embedder,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
	}
}

// IngestDocument chunks, embeds, persists and publishes one document.
// Re-ingesting an existing document ID replaces its chunk set wholesale.
// Embedding failures do not abort ingestion: affected chunks are stored
// without vectors and stay reachable through sparse retrieval.
func (is *IngestionService) IngestDocument(ctx context.Context, tenantID string, req models.IngestRequest) (*models.Document, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant", models.ErrTenantIsolation)
	}
	if req.Title == "" || req.Text == "" {
		return nil, fmt.Errorf("%w: title and text are required", ErrInvalidQuery)
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.NewString()
	}

	start := time.Now()
	unlock := is.registry.LockTenant(tenantID)
	defer unlock()

	doc := models.Document{
		ID:       documentID,
		TenantID: tenantID,
		Title:    req.Title,
		Status:   models.DocumentStatusProcessing,
	}
	if err := is.store.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}

	chunks, err := is.buildChunks(ctx, tenantID, documentID, req.Title, req.Text)
	if err == nil {
		err = is.publish(ctx, tenantID, documentID, chunks)
	}
	if err != nil {
		is.metrics.RecordIngestion(tenantID, models.DocumentStatusFailed, time.Since(start).Seconds())
		if statusErr := is.store.SetDocumentStatus(ctx, tenantID, documentID, models.DocumentStatusFailed, 0, err.Error()); statusErr != nil {
			logger.Error("Failed to record ingestion failure", "tenant_id", tenantID, "document_id", documentID, "error", statusErr)
		}
		return nil, err
	}

	if err := is.store.SetDocumentStatus(ctx, tenantID, documentID, models.DocumentStatusIndexed, len(chunks), ""); err != nil {
		return nil, err
	}

	is.cache.InvalidateTenant(ctx, tenantID)
	is.notifier.Publish(ctx, tenantID)
	is.metrics.RecordIngestion(tenantID, models.DocumentStatusIndexed, time.Since(start).Seconds())
	logger.Info("Document ingested",
		"tenant_id", tenantID, "document_id", documentID, "chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds())

	doc.Status = models.DocumentStatusIndexed
	doc.ChunkCount = len(chunks)
	return &doc, nil
}

func (is *IngestionService) buildChunks(ctx context.Context, tenantID, documentID, title, text string) ([]models.Chunk, error) {
	chunks := is.chunker.ChunkDocument(tenantID, documentID, title, text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no chunks", ErrInvalidQuery)
	}

	embedFailures := 0
	for i := range chunks {
		vec, err := is.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			embedFailures++
			continue
		}
		chunks[i].Embedding = vec
	}
	if embedFailures > 0 {
		logger.Warn("Some chunks stored without embeddings, sparse-only until re-ingestion",
			"tenant_id", tenantID, "document_id", documentID,
			"failed", embedFailures, "total", len(chunks))
	}
	return chunks, nil
}

// publish persists first, then swaps the in-memory snapshot. If the swap
// validation rejects the chunks nothing was published to queries yet; the
// document is marked failed and the persisted chunks are replaced on retry.
func (is *IngestionService) publish(ctx context.Context, tenantID, documentID string, chunks []models.Chunk) error {
	if err := is.store.ReplaceChunks(ctx, tenantID, documentID, chunks); err != nil {
		return err
	}
	return is.registry.ReplaceDocument(tenantID, documentID, chunks)
}

// DeleteDocument removes a document from storage and the live index.
func (is *IngestionService) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: missing tenant", models.ErrTenantIsolation)
	}

	unlock := is.registry.LockTenant(tenantID)
	defer unlock()

	if err := is.store.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return err
	}
	if err := is.registry.RemoveDocument(tenantID, documentID); err != nil {
		return err
	}

	is.cache.InvalidateTenant(ctx, tenantID)
	is.notifier.Publish(ctx, tenantID)
	logger.Info("Document deleted", "tenant_id", tenantID, "document_id", documentID)
	return nil
}

// ReloadTenant rebuilds one tenant's snapshot from storage.
func (is *IngestionService) ReloadTenant(ctx context.Context, tenantID string) error {
	chunks, err := is.store.ChunksForTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	return is.registry.Swap(tenantID, chunks)
}

// HydrateAll loads every tenant's index at startup.
func (is *IngestionService) HydrateAll(ctx context.Context) error {
	tenants, err := is.store.ListTenants(ctx)
	if err != nil {
		return err
	}

	for _, tenantID := range tenants {
		if err := is.ReloadTenant(ctx, tenantID); err != nil {
			return fmt.Errorf("hydrate tenant %s: %w", tenantID, err)
		}
	}
	logger.Info("Index hydrated", "tenants", len(tenants))
	return nil
}

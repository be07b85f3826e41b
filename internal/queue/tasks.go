package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/models"
	"omnichannel-rag-platform/services"
)

const (
	TaskIngestDocument = "document:ingest"
	TaskReloadTenant   = "tenant:reload"
)

type IngestPayload struct {
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

type ReloadPayload struct {
	TenantID string `json:"tenant_id"`
}

// NewIngestTask enqueues a document ingestion. Ingestion runs on the
// critical queue: a stale index hurts every query the tenant makes.
func NewIngestTask(tenantID, documentID, title, text string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		TenantID:   tenantID,
		DocumentID: documentID,
		Title:      title,
		Text:       text,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewReloadTask rebuilds one tenant's in-memory index from storage.
func NewReloadTask(tenantID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReloadPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskReloadTenant,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor executes queued work against the ingestion service.
type TaskProcessor struct {
	ingestion *services.IngestionService
}

func NewTaskProcessor(ingestion *services.IngestionService) *TaskProcessor {
	return &TaskProcessor{ingestion: ingestion}
}

// ProcessIngest handles document:ingest tasks. Malformed payloads and
// tenant violations skip retry; transient storage failures retry with
// asynq's backoff.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing ingestion task",
		"tenant_id", payload.TenantID, "document_id", payload.DocumentID)

	_, err := p.ingestion.IngestDocument(ctx, payload.TenantID, models.IngestRequest{
		DocumentID: payload.DocumentID,
		Title:      payload.Title,
		Text:       payload.Text,
	})
	if err != nil {
		if errors.Is(err, models.ErrTenantIsolation) || errors.Is(err, services.ErrInvalidQuery) {
			logger.Error("Ingestion task rejected, not retrying",
				"tenant_id", payload.TenantID, "document_id", payload.DocumentID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// ProcessReload handles tenant:reload tasks.
func (p *TaskProcessor) ProcessReload(ctx context.Context, t *asynq.Task) error {
	var payload ReloadPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	return p.ingestion.ReloadTenant(ctx, payload.TenantID)
}

package services

import (
	"context"

	"github.com/redis/go-redis/v9"

	"omnichannel-rag-platform/internal/logger"
)

// reloadChannel carries tenant IDs whose indexes changed. The worker
// publishes after every swap; API processes subscribe and rehydrate, so all
// processes converge on the persisted index without sharing memory.
const reloadChannel = "index:reload"

// ReloadNotifier broadcasts index changes across processes. Nil-safe: a nil
// notifier (as in tests) publishes nothing.
type ReloadNotifier struct {
	rdb *redis.Client
}

func NewReloadNotifier(rdb *redis.Client) *ReloadNotifier {
	return &ReloadNotifier{rdb: rdb}
}

func (rn *ReloadNotifier) Publish(ctx context.Context, tenantID string) {
	if rn == nil || rn.rdb == nil {
		return
	}
	if err := rn.rdb.Publish(ctx, reloadChannel, tenantID).Err(); err != nil {
		logger.Warn("Failed to publish index reload", "tenant_id", tenantID, "error", err)
	}
}

// Subscribe rehydrates tenants as reload messages arrive. Blocks until ctx
// is cancelled; run it in its own goroutine.
func (rn *ReloadNotifier) Subscribe(ctx context.Context, ingestion *IngestionService) {
	if rn == nil || rn.rdb == nil {
		return
	}

	sub := rn.rdb.Subscribe(ctx, reloadChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			tenantID := msg.Payload
			if err := ingestion.ReloadTenant(ctx, tenantID); err != nil {
				logger.Error("Failed to reload tenant index", "tenant_id", tenantID, "error", err)
				continue
			}
			logger.Info("Tenant index reloaded", "tenant_id", tenantID)
		}
	}
}

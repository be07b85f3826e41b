package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/models"
)

// AnswerCache memoizes full answer envelopes in Redis, keyed per tenant so
// one tenant's cached answers can never leak into another's. A nil client
// disables caching; every method degrades to a miss.
type AnswerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAnswerCache(rdb *redis.Client, ttl time.Duration) *AnswerCache {
	return &AnswerCache{rdb: rdb, ttl: ttl}
}

func answerKey(tenantID, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("answer:%s:%s", tenantID, hex.EncodeToString(sum[:]))
}

func (ac *AnswerCache) Get(ctx context.Context, tenantID, query string) (*models.AnswerEnvelope, bool) {
	if ac == nil || ac.rdb == nil {
		return nil, false
	}

	data, err := ac.rdb.Get(ctx, answerKey(tenantID, query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Answer cache read failed", "tenant_id", tenantID, "error", err)
		}
		return nil, false
	}

	var envelope models.AnswerEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Warn("Answer cache entry corrupt, dropping", "tenant_id", tenantID, "error", err)
		ac.rdb.Del(ctx, answerKey(tenantID, query))
		return nil, false
	}
	return &envelope, true
}

func (ac *AnswerCache) Set(ctx context.Context, tenantID, query string, envelope models.AnswerEnvelope) {
	if ac == nil || ac.rdb == nil {
		return
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	if err := ac.rdb.Set(ctx, answerKey(tenantID, query), data, ac.ttl).Err(); err != nil {
		logger.Warn("Answer cache write failed", "tenant_id", tenantID, "error", err)
	}
}

// InvalidateTenant drops every cached answer for the tenant. Called after
// ingestion so stale answers never outlive an index swap by more than the
// scan.
func (ac *AnswerCache) InvalidateTenant(ctx context.Context, tenantID string) {
	if ac == nil || ac.rdb == nil {
		return
	}

	pattern := fmt.Sprintf("answer:%s:*", tenantID)
	iter := ac.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := ac.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Answer cache invalidation failed", "tenant_id", tenantID, "error", err)
			return
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warn("Answer cache scan failed", "tenant_id", tenantID, "error", err)
	}
}

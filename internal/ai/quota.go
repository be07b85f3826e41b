package ai

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrQuotaExceeded means the tenant burned through its daily token budget.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// TenantQuota tracks per-tenant daily token budgets for upstream AI calls.
type TenantQuota struct {
	TenantID        string    `bson:"tenant_id"`
	DailyTokenLimit int       `bson:"daily_token_limit"`
	TokensUsedToday int       `bson:"tokens_used_today"`
	RequestsToday   int       `bson:"requests_today"`
	LastResetDate   time.Time `bson:"last_reset_date"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

const defaultDailyTokenLimit = 100000

// QuotaManager persists quota counters in the tenant_quotas collection.
type QuotaManager struct {
	col *mongo.Collection
}

func NewQuotaManager(db *mongo.Database) *QuotaManager {
	return &QuotaManager{col: db.Collection("tenant_quotas")}
}

// Consume reserves estimatedTokens against the tenant's daily budget,
// resetting counters when the UTC day rolls over. Returns ErrQuotaExceeded
// when the reservation would cross the limit.
func (qm *QuotaManager) Consume(ctx context.Context, tenantID string, estimatedTokens int) error {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Reset if new day
	_, err := qm.col.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "last_reset_date": bson.M{"$lt": today}},
		bson.M{"$set": bson.M{
			"tokens_used_today": 0,
			"requests_today":    0,
			"last_reset_date":   today,
			"updated_at":        now,
		}},
	)
	if err != nil {
		return err
	}

	var quota TenantQuota
	err = qm.col.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&quota)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			return err
		}
		quota = TenantQuota{
			TenantID:        tenantID,
			DailyTokenLimit: defaultDailyTokenLimit,
			LastResetDate:   today,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if _, err := qm.col.InsertOne(ctx, quota); err != nil {
			return err
		}
	}

	if quota.TokensUsedToday+estimatedTokens > quota.DailyTokenLimit {
		return ErrQuotaExceeded
	}

	_, err = qm.col.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID},
		bson.M{
			"$inc": bson.M{
				"tokens_used_today": estimatedTokens,
				"requests_today":    1,
			},
			"$set": bson.M{"updated_at": now},
		},
	)
	return err
}

// Status returns the tenant's current quota counters.
func (qm *QuotaManager) Status(ctx context.Context, tenantID string) (*TenantQuota, error) {
	var quota TenantQuota
	if err := qm.col.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// SetLimit overrides the tenant's daily token limit.
func (qm *QuotaManager) SetLimit(ctx context.Context, tenantID string, dailyLimit int) error {
	now := time.Now().UTC()
	_, err := qm.col.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID},
		bson.M{"$set": bson.M{
			"daily_token_limit": dailyLimit,
			"updated_at":        now,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

package services

import (
	"context"

	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/internal/logger"
)

// Thresholds define the confidence bands for one tenant. A confidence at or
// above High answers autonomously; between Low and High it answers but flags
// for human review; below Low it returns the fallback response.
type Thresholds struct {
	High float64
	Low  float64
}

// PolicyProvider resolves the confidence thresholds for a tenant.
type PolicyProvider interface {
	Thresholds(ctx context.Context, tenantID string) Thresholds
}

// PolicyService merges platform defaults with per-tenant overrides from the
// store. Invalid overrides are ignored, not propagated.
type PolicyService struct {
	store    *index.Store
	defaults Thresholds
}

func NewPolicyService(store *index.Store, cfg *config.Config) *PolicyService {
	return &PolicyService{
		store:    store,
		defaults: Thresholds{High: cfg.ConfidenceHigh, Low: cfg.ConfidenceLow},
	}
}

func (ps *PolicyService) Thresholds(ctx context.Context, tenantID string) Thresholds {
	result := ps.defaults

	policy, err := ps.store.TenantPolicy(ctx, tenantID)
	if err != nil {
		logger.Warn("Failed to load tenant policy, using defaults", "tenant_id", tenantID, "error", err)
		return result
	}
	if policy == nil {
		return result
	}

	if policy.HighThreshold != nil && *policy.HighThreshold >= 0 && *policy.HighThreshold <= 1 {
		result.High = *policy.HighThreshold
	}
	if policy.LowThreshold != nil && *policy.LowThreshold >= 0 && *policy.LowThreshold <= 1 {
		result.Low = *policy.LowThreshold
	}

	if result.Low > result.High {
		logger.Warn("Tenant policy has low threshold above high, using defaults",
			"tenant_id", tenantID, "low", result.Low, "high", result.High)
		return ps.defaults
	}
	return result
}

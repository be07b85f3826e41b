package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"omnichannel-rag-platform/internal/ai"
	"omnichannel-rag-platform/internal/auth"
	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/middleware"
	"omnichannel-rag-platform/models"
	"omnichannel-rag-platform/utils"
)

// SetupAdminRoutes registers tenant administration: confidence threshold
// policies, daily quotas and service token issuance. All routes require the
// admin role; policy and quota routes act on the caller's own tenant.
func SetupAdminRoutes(
	router *gin.Engine,
	store *index.Store,
	quotas *ai.QuotaManager,
	rdb *redis.Client,
	authMiddleware *middleware.AuthMiddleware,
) {
	admin := router.Group("/admin")
	admin.Use(authMiddleware.RequireTenant(), middleware.RequireRole("admin"))

	admin.GET("/policy", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		policy, err := store.TenantPolicy(c.Request.Context(), tenantID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load policy", nil)
			return
		}
		if policy == nil {
			policy = &models.TenantPolicy{TenantID: tenantID}
		}
		c.JSON(http.StatusOK, policy)
	})

	admin.PUT("/policy", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req struct {
			HighThreshold *float64 `json:"high_threshold"`
			LowThreshold  *float64 `json:"low_threshold"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		for _, v := range []*float64{req.HighThreshold, req.LowThreshold} {
			if v != nil && (*v < 0 || *v > 1) {
				utils.RespondWithBadRequest(c, "Thresholds must be within [0, 1]", nil)
				return
			}
		}
		if req.HighThreshold != nil && req.LowThreshold != nil && *req.LowThreshold > *req.HighThreshold {
			utils.RespondWithBadRequest(c, "Low threshold must not exceed high threshold", nil)
			return
		}

		policy := models.TenantPolicy{
			TenantID:      tenantID,
			HighThreshold: req.HighThreshold,
			LowThreshold:  req.LowThreshold,
		}
		if err := store.UpsertTenantPolicy(c.Request.Context(), policy); err != nil {
			utils.RespondWithInternalError(c, "Failed to save policy", nil)
			return
		}

		logger.Info("Tenant policy updated", "tenant_id", tenantID)
		c.JSON(http.StatusOK, policy)
	})

	admin.GET("/quota", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		status, err := quotas.Status(c.Request.Context(), tenantID)
		if err != nil {
			utils.RespondWithNotFound(c, "No quota recorded for this tenant")
			return
		}
		c.JSON(http.StatusOK, status)
	})

	admin.PUT("/quota", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req struct {
			DailyTokenLimit int `json:"daily_token_limit" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := quotas.SetLimit(c.Request.Context(), tenantID, req.DailyTokenLimit); err != nil {
			utils.RespondWithInternalError(c, "Failed to update quota", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"daily_token_limit": req.DailyTokenLimit})
	})

	// Tokens are scoped to the issuing admin's tenant; an admin cannot mint
	// tokens for another tenant.
	admin.POST("/tokens", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req struct {
			Role string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if req.Role == "" {
			req.Role = "service"
		}

		token, err := auth.IssueTenantToken(tenantID, req.Role, rdb)
		if err != nil {
			logger.Error("Token issuance failed", "tenant_id", tenantID, "error", err)
			utils.RespondWithInternalError(c, "Failed to issue token", nil)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"token": token, "role": req.Role})
	})
}

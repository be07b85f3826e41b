package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/middleware"
	"omnichannel-rag-platform/models"
	"omnichannel-rag-platform/services"
	"omnichannel-rag-platform/utils"
)

func SetupQueryRoutes(router *gin.Engine, orchestrator *services.QueryOrchestrator, authMiddleware *middleware.AuthMiddleware) {
	query := router.Group("/query")
	query.Use(authMiddleware.RequireTenant())

	query.POST("", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)

		envelope, err := orchestrator.AnswerQuery(c.Request.Context(), tenantID, req.Query)
		if err != nil {
			if errors.Is(err, services.ErrInvalidQuery) {
				utils.RespondWithBadRequest(c, "Query must not be empty", nil)
				return
			}
			if errors.Is(err, models.ErrTenantIsolation) {
				logger.SecurityEvent("Tenant isolation violation on query",
					"tenant_id", tenantID, "ip", c.ClientIP())
				utils.RespondWithForbidden(c, "Operation not permitted for this tenant")
				return
			}
			logger.Error("Query failed", "tenant_id", tenantID, "error", err)
			utils.RespondWithInternalError(c, "Failed to answer query", nil)
			return
		}

		c.JSON(http.StatusOK, envelope)
	})
}

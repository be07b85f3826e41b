package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"omnichannel-rag-platform/internal/index"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/internal/queue"
	"omnichannel-rag-platform/middleware"
	"omnichannel-rag-platform/models"
	"omnichannel-rag-platform/services"
	"omnichannel-rag-platform/utils"
)

// SetupDocumentRoutes registers the ingestion API. Uploads are accepted
// immediately and processed by the worker; status is polled via GET.
func SetupDocumentRoutes(
	router *gin.Engine,
	store *index.Store,
	ingestion *services.IngestionService,
	asynqClient *asynq.Client,
	authMiddleware *middleware.AuthMiddleware,
) {
	docs := router.Group("/documents")
	docs.Use(authMiddleware.RequireTenant())

	docs.POST("", func(c *gin.Context) {
		var req models.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		tenantID := middleware.GetTenantID(c)
		if req.DocumentID == "" {
			req.DocumentID = uuid.NewString()
		}

		// Record the document before enqueueing so a poll right after the
		// 202 finds it in processing state.
		doc := models.Document{
			ID:       req.DocumentID,
			TenantID: tenantID,
			Title:    req.Title,
			Status:   models.DocumentStatusProcessing,
		}
		if err := store.UpsertDocument(c.Request.Context(), doc); err != nil {
			logger.Error("Failed to record document", "tenant_id", tenantID, "error", err)
			utils.RespondWithInternalError(c, "Failed to accept document", nil)
			return
		}

		task, err := queue.NewIngestTask(tenantID, req.DocumentID, req.Title, req.Text)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to accept document", nil)
			return
		}
		if _, err := asynqClient.Enqueue(task); err != nil {
			logger.Error("Failed to enqueue ingestion", "tenant_id", tenantID, "document_id", req.DocumentID, "error", err)
			utils.RespondWithInternalError(c, "Failed to queue document for processing", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"document_id": req.DocumentID,
			"status":      models.DocumentStatusProcessing,
		})
	})

	docs.GET("", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		list, err := store.ListDocuments(c.Request.Context(), tenantID)
		if err != nil {
			logger.Error("Failed to list documents", "tenant_id", tenantID, "error", err)
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": list})
	})

	docs.GET("/:id", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		doc, err := store.GetDocument(c.Request.Context(), tenantID, c.Param("id"))
		if err != nil {
			if errors.Is(err, models.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to fetch document", nil)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	docs.DELETE("/:id", func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		if err := ingestion.DeleteDocument(c.Request.Context(), tenantID, c.Param("id")); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
	})
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"omnichannel-rag-platform/utils"
)

// RequestSizeLimit rejects oversized bodies before they are read. Document
// ingestion is the only large-body route; everything else is small JSON.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size": maxSize,
					"received": c.Request.ContentLength,
				})
			c.Abort()
			return
		}
		c.Next()
	}
}

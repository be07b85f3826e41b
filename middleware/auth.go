package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"omnichannel-rag-platform/internal/auth"
	"omnichannel-rag-platform/internal/config"
	"omnichannel-rag-platform/internal/logger"
	"omnichannel-rag-platform/utils"
)

type AuthMiddleware struct {
	config *config.Config
	rdb    *redis.Client
}

func NewAuthMiddleware(cfg *config.Config, rdb *redis.Client) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		rdb:    rdb,
	}
}

// RequireTenant authenticates the request and binds the tenant scope. Every
// downstream handler reads the tenant from the context; a request can never
// act on a tenant other than the one its token names.
func (a *AuthMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(tokenString, a.rdb)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		// A tenant header that disagrees with the token is a probe, not a
		// mistake worth silently fixing.
		if header := c.GetHeader("X-Tenant-ID"); header != "" && header != claims.TenantID {
			logger.SecurityEvent("Tenant header mismatch",
				"token_tenant", claims.TenantID, "header_tenant", header,
				"path", c.FullPath(), "ip", c.ClientIP())
			utils.RespondWithForbidden(c, "Tenant mismatch")
			c.Abort()
			return
		}

		c.Set("tenant_id", claims.TenantID)
		c.Set("role", claims.Role)
		c.Set("claims", claims)

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}

// GetTenantID returns the authenticated tenant, empty when unauthenticated.
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get("tenant_id"); exists {
		if id, ok := tenantID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRole returns the token role from context.
func GetRole(c *gin.Context) string {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(string); ok {
			return r
		}
	}
	return ""
}

// RequireRole gates admin-only routes such as policy management.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != role {
			utils.RespondWithForbidden(c, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

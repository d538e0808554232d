package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"medexam-assistant-server/internal/config"
	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/utils"
)

const (
	userIDKey   = "userID"
	userRoleKey = "userRole"
)

// AuthMiddleware requires a valid access token and stores the clinician's id
// and role on the context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, reason := bearerToken(c.GetHeader("Authorization"))
		if reason != "" {
			utils.Unauthorized(c, reason)
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(token, cfg.JWTSecret)
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, claims.Role)
		c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header,
// or the reason it cannot.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.Contains(token, " ") {
		return "", "Invalid authorization header format"
	}
	return token, ""
}

// RoleAuthMiddleware admits only the listed roles. Mount it after
// AuthMiddleware.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRoleFromContext(c)
		if !ok {
			utils.Unauthorized(c, "User role not found in context")
			c.Abort()
			return
		}
		if !slices.Contains(allowedRoles, role) {
			utils.Forbidden(c, "Your role cannot access this resource")
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserIDFromContext returns the id set by AuthMiddleware.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	id, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok
}

// GetUserRoleFromContext returns the role set by AuthMiddleware.
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	role, ok := c.Get(userRoleKey)
	if !ok {
		return "", false
	}
	r, ok := role.(models.Role)
	return r, ok
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"monasterywatch/internal/config"
	"monasterywatch/internal/security"
)

const (
	ContextUserID = "current_user_id"
	ContextClaims = "access_claims"
)

// Auth validates the bearer token and stashes the caller's identity on the
// request context.
func Auth(cfg *config.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextClaims, *claims)

		c.Next()
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/agriapp/server/cache"
	"github.com/agriapp/server/config"
	"github.com/gin-gonic/gin"
)

const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
	tokenKey    = "auth_token"
)

// SessionKey is the cache key marking a token as logged in.
func SessionKey(token string) string {
	return "session:" + token
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter used by EventSource clients.
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Auth validates the JWT and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(UserIDKey, claims.UserID)
		ctx.Set(UsernameKey, claims.Username)
		ctx.Set(tokenKey, tokenStr)
		ctx.Next()
	}
}

// GetUserID returns the authenticated user's key, or "" outside Auth.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetToken returns the token Auth accepted for this request.
func GetToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

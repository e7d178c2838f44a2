package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/theset/setlist-server/pkg/jwt"
	"github.com/theset/setlist-server/pkg/redis"
)

// sessionToken pulls the app token from the auth cookie, the Authorization
// header, or a query param (the WebSocket path cannot set headers).
func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie("auth_token"); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// Middleware requires a valid session and puts user_id into the Gin context.
func Middleware(tokenStore *redis.TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Session is only live while the Spotify tokens are held.
		tokens, err := tokenStore.GetTokens(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("access_token", tokens.AccessToken)
		c.Next()
	}
}

// OptionalMiddleware resolves a user id when a valid session is presented
// but lets anonymous requests through. Read endpoints use it to annotate
// responses with per-user vote state.
func OptionalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := sessionToken(c); token != "" {
			if claims, err := jwt.ValidateToken(token); err == nil {
				c.Set("user_id", claims.UserID)
			}
		}
		c.Next()
	}
}

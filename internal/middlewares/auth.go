package middlewares

import (
	"net/http"
	"strings"

	"codearena/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey   = "userID"
	UsernameKey = "username"
)

// AuthMiddleware enforces authentication: it validates the access
// token cookie and puts the user ID into the request context.
func AuthMiddleware(tokenService *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie("access_token")
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		claims, err := tokenService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

// OptionalAuthMiddleware sets the user ID when a valid token is
// present and continues anonymously otherwise.
func OptionalAuthMiddleware(tokenService *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie("access_token")
		if err != nil || strings.TrimSpace(tokenString) == "" {
			c.Next()
			return
		}

		claims, err := tokenService.ValidateToken(tokenString)
		if err == nil && claims != nil {
			c.Set(UserIDKey, claims.UserID)
			c.Set(UsernameKey, claims.Username)
		}

		c.Next()
	}
}

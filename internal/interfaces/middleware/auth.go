package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/careflow/approvals/pkg/auth"
)

const (
	// ContextKeyUser holds the auth.UserSession of the caller.
	ContextKeyUser = "user"

	headerAuthorization = "Authorization"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"message": message,
		"code":    "UNAUTHORIZED",
		"data":    nil,
	})
}

// RequireAuth is a middleware that validates JWT tokens
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(headerAuthorization)
		if authHeader == "" {
			unauthorized(c, "No authorization token provided")
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := auth.ValidateToken(secret, parts[1])
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		c.Set(ContextKeyUser, claims.User)
		c.Next()
	}
}

// RequireRole lets through only callers holding role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextKeyUser)
		if !exists {
			unauthorized(c, "User not authenticated")
			return
		}

		user, ok := value.(auth.UserSession)
		if !ok || !user.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Forbidden",
				"message": "Requires role " + role,
				"code":    "FORBIDDEN",
				"data":    nil,
			})
			return
		}

		c.Next()
	}
}
